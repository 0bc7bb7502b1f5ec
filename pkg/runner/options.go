package runner

import (
	"log/slog"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithBotID selects the bot a new session is started for.
func WithBotID(id string) Option {
	return func(r *Runner) {
		r.BotID = id
	}
}

// WithSessionID resumes an existing session instead of starting one.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.SessionID = id
	}
}
