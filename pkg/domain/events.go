package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter    EventType = "node_enter"
	EventPause        EventType = "pause"
	EventCodeExecuted EventType = "code_executed"
	EventFinish       EventType = "finish"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// NodeEvent represents entering, pausing on or finishing at a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeType NodeType `json:"node_type"`
}

// CodeEvent represents a sandbox execution.
type CodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter    func(context.Context, *NodeEvent)
	OnPause        func(context.Context, *NodeEvent)
	OnCodeExecuted func(context.Context, *CodeEvent)
	OnFinish       func(context.Context, *NodeEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:    chainNode(h.OnNodeEnter, other.OnNodeEnter),
		OnPause:        chainNode(h.OnPause, other.OnPause),
		OnCodeExecuted: chainCode(h.OnCodeExecuted, other.OnCodeExecuted),
		OnFinish:       chainNode(h.OnFinish, other.OnFinish),
	}
}

func chainNode(a, b func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *NodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainCode(a, b func(context.Context, *CodeEvent)) func(context.Context, *CodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *CodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
