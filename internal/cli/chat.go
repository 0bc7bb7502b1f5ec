package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/runner"
)

// ChatOptions configures an interactive session.
type ChatOptions struct {
	BotID     string
	SessionID string
	JSON      bool
	Quiet     bool

	// In and Out default to Stdin and Stdout.
	In  io.Reader
	Out io.Writer
}

// Chat runs one conversation against the app's engine and returns its session ID.
func (a *App) Chat(ctx context.Context, opts ChatOptions) (string, error) {
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	sanitizer := runner.NewSanitizer(a.Config.Engine.MaxInputSize)
	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(in, out, runner.WithJSONHandlerSanitizer(sanitizer))
	} else {
		textOpts := []runner.TextHandlerOption{runner.WithTextHandlerSanitizer(sanitizer)}
		if f, ok := out.(*os.File); ok && tui.IsInteractive(f) {
			textOpts = append(textOpts, runner.WithTextHandlerRenderer(tui.NewRenderer()))
			if !opts.Quiet {
				tui.PrintBanner(out, chatflow.Version)
			}
		}
		handler = runner.NewTextHandler(in, out, textOpts...)
	}

	r := runner.NewRunner(a.Engine,
		runner.WithLogger(a.Logger),
		runner.WithInputHandler(handler),
		runner.WithBotID(opts.BotID),
		runner.WithSessionID(opts.SessionID),
	)
	id, err := r.Run(ctx)
	if err != nil {
		return id, fmt.Errorf("chat session %s: %w", id, err)
	}
	return id, nil
}
