package domain

import (
	"bytes"
	"encoding/json"
)

// Graph is the conversation flow authored for one bot.
// It is never mutated by the engine and may be shared between sessions.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Edge connects two nodes. SourceHandle optionally labels the edge so that the
// engine can pick among several outgoing edges ("yes"/"no", "success"/"error").
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

type rawEdge struct {
	ID           any    `json:"id"`
	Source       any    `json:"source"`
	Target       any    `json:"target"`
	SourceHandle string `json:"sourceHandle"`
}

// UnmarshalJSON accepts string or numeric node references.
func (e *Edge) UnmarshalJSON(b []byte) error {
	var raw rawEdge
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*e = Edge{
		ID:           NormalizeID(raw.ID),
		Source:       NormalizeID(raw.Source),
		Target:       NormalizeID(raw.Target),
		SourceHandle: raw.SourceHandle,
	}
	return nil
}

// Bot is the owner of a flow graph.
type Bot struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Flow        Graph  `json:"conversationFlow"`
}
