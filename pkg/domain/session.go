package domain

import "time"

// Session is the resumable execution state of one conversation with a bot.
type Session struct {
	ID    string `json:"id"`
	BotID string `json:"botId"`

	// CurrentNodeID is the node awaiting input, or the last visited node once finished.
	// Empty means the flow has not been started.
	CurrentNodeID string `json:"currentNodeId,omitempty"`

	// Variables holds values bound by question and code nodes.
	Variables map[string]any `json:"variables"`

	// History is an append-only audit log of the conversation.
	History []HistoryEntry `json:"history"`

	// Finished is terminal: a finished session accepts no further input.
	Finished bool `json:"isFinished"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version is incremented by stores on every save.
	Version int64 `json:"version"`
}

// HistoryEntry is one record of the conversation log.
type HistoryEntry struct {
	NodeID        string    `json:"nodeId"`
	Type          string    `json:"type"`
	Content       any       `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	FromUser      bool      `json:"fromUser"`
	AwaitingInput bool      `json:"awaitingInput,omitempty"`
}

// NewSession creates an empty, not yet started session for a bot.
func NewSession(id, botID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		BotID:     botID,
		Variables: make(map[string]any),
		History:   []HistoryEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns a copy that can be mutated without affecting the receiver.
// Variables are copied one level deep; history entries are copied by value.
func (s *Session) Snapshot() *Session {
	if s == nil {
		return nil
	}
	next := *s
	next.Variables = CopyVariables(s.Variables)
	next.History = make([]HistoryEntry, len(s.History))
	copy(next.History, s.History)
	return &next
}

// Append adds entries to the history log.
func (s *Session) Append(entries ...HistoryEntry) {
	s.History = append(s.History, entries...)
}

// CopyVariables returns a shallow copy of a variable bag, never nil.
func CopyVariables(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
