package runner

import (
	"context"

	"github.com/aretw0/chatflow/pkg/flow"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents a reply to the user.
	Output(ctx context.Context, reply *flow.Reply) error

	// Input reads the answer to the node the session waits on.
	Input(ctx context.Context, awaiting *flow.Awaiting) (flow.Response, error)

	// SystemOutput presents a meta-message to the user (e.g. rejected input, session id).
	// This is distinct from content rendering.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
