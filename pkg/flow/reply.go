package flow

import (
	"fmt"
	"reflect"

	"github.com/aretw0/chatflow/pkg/domain"
)

// DefaultPrompt is shown for a pause node without a message.
const DefaultPrompt = "Please respond"

// Message is one item shown to the user.
type Message struct {
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	NodeID        string   `json:"nodeId"`
	Options       []string `json:"options,omitempty"`
	Variable      string   `json:"variable,omitempty"`
	AwaitingInput bool     `json:"awaitingInput,omitempty"`
}

// Awaiting describes the input the session waits for.
type Awaiting struct {
	Type     domain.NodeType `json:"type"`
	NodeID   string          `json:"nodeId"`
	Variable string          `json:"variable,omitempty"`
	Options  []string        `json:"options"`
}

// Reply is the user-facing outcome of a start or respond request.
type Reply struct {
	SessionID     string         `json:"sessionId"`
	Messages      []Message      `json:"messages"`
	AwaitingInput *Awaiting      `json:"awaitingInput"`
	Finished      bool           `json:"finished"`
	Variables     map[string]any `json:"variables"`
	Notice        string         `json:"notice,omitempty"`
}

func newReply(sess *domain.Session, res *domain.RunResult, notice string) *Reply {
	r := &Reply{
		SessionID: sess.ID,
		Messages:  FormatMessages(res.Outputs, res.PausedFor),
		Finished:  sess.Finished,
		Variables: sess.Variables,
		Notice:    notice,
	}
	if p := res.PausedFor; p != nil {
		options := p.Options
		if options == nil {
			options = []string{}
		}
		r.AwaitingInput = &Awaiting{Type: p.Type, NodeID: p.NodeID, Variable: p.Variable, Options: options}
	}
	return r
}

// FormatMessages converts run outputs into display messages. Only message and
// redirect outputs are shown; the pause prompt, if any, comes last.
func FormatMessages(outputs []domain.Output, pause *domain.Pause) []Message {
	msgs := make([]Message, 0, len(outputs)+1)
	for _, o := range outputs {
		if o.Type != string(domain.NodeTypeMessage) && o.Type != string(domain.NodeTypeRedirect) {
			continue
		}
		msgs = append(msgs, Message{Type: o.Type, Content: ContentText(o.Content), NodeID: o.NodeID})
	}

	if pause != nil {
		text := pause.Message
		if text == "" {
			text = DefaultPrompt
		}
		msgs = append(msgs, Message{
			Type:          string(pause.Type),
			Content:       text,
			NodeID:        pause.NodeID,
			Options:       pause.Options,
			Variable:      pause.Variable,
			AwaitingInput: true,
		})
	}
	return msgs
}

// ContentText renders output content as text: strings verbatim, otherwise
// the prompt or message field of a structured record.
func ContentText(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case domain.QuestionAnswer:
		return c.Prompt
	case domain.ConfirmationAnswer:
		return c.Prompt
	case map[string]any:
		for _, key := range []string{"prompt", "message"} {
			if s, ok := c[key].(string); ok {
				return s
			}
		}
	}
	return fmt.Sprint(content)
}

// CleanHistory drops question and confirmation records whose structured
// content repeats an answer the user just gave for the same node.
func CleanHistory(entries []domain.HistoryEntry) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(entries))
	for i, e := range entries {
		if i > 0 && restatesAnswer(entries[i-1], e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func restatesAnswer(prev, e domain.HistoryEntry) bool {
	if e.Type != string(domain.NodeTypeQuestion) && e.Type != string(domain.NodeTypeConfirmation) {
		return false
	}
	return structured(e.Content) && prev.Type == domain.EntryUserInput && prev.NodeID == e.NodeID
}

func structured(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array, reflect.Pointer:
		return true
	}
	return false
}
