package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
)

// Service is the part of the flow orchestrator the runner drives.
type Service interface {
	Start(ctx context.Context, botID string) (*flow.Reply, error)
	Resume(ctx context.Context, sessionID string) (*flow.Reply, error)
	Respond(ctx context.Context, sessionID string, resp flow.Response) (*flow.Reply, error)
}

// Runner handles the conversation loop of one session using provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
type Runner struct {
	Service Service
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	BotID     string
	SessionID string
}

// NewRunner creates a Runner talking over Stdin/Stdout unless configured otherwise.
func NewRunner(svc Service, opts ...Option) *Runner {
	r := &Runner{Service: svc}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r
}

// Run drives the session until it finishes, input ends or ctx is cancelled.
// It returns the session ID so callers can resume later.
func (r *Runner) Run(ctx context.Context) (string, error) {
	reply, err := r.open(ctx)
	if err != nil {
		return r.SessionID, err
	}
	r.SessionID = reply.SessionID
	r.Logger.Debug("Runner: session opened", "session_id", r.SessionID, "bot_id", r.BotID)

	for {
		if err := r.Handler.Output(ctx, reply); err != nil {
			return r.SessionID, fmt.Errorf("output error: %w", err)
		}
		if reply.Finished || reply.AwaitingInput == nil {
			r.Logger.Debug("Runner: session finished", "session_id", r.SessionID)
			return r.SessionID, nil
		}

		next, err := r.answer(ctx, reply.AwaitingInput)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				_ = r.Handler.SystemOutput(context.WithoutCancel(ctx), fmt.Sprintf("Session %s saved. Resume it with --session %s", r.SessionID, r.SessionID))
				return r.SessionID, nil
			}
			return r.SessionID, err
		}
		reply = next
	}
}

func (r *Runner) open(ctx context.Context) (*flow.Reply, error) {
	if r.SessionID != "" {
		return r.Service.Resume(ctx, r.SessionID)
	}
	if r.BotID == "" {
		return nil, errors.New("runner: a bot or a session is required")
	}
	return r.Service.Start(ctx, r.BotID)
}

// answer reads input until the service accepts it.
func (r *Runner) answer(ctx context.Context, awaiting *flow.Awaiting) (*flow.Reply, error) {
	for {
		resp, err := r.Handler.Input(ctx, awaiting)
		if err != nil {
			return nil, err
		}

		reply, err := r.Service.Respond(ctx, r.SessionID, resp)
		var inputErr *domain.InputError
		if errors.As(err, &inputErr) {
			r.Logger.Debug("Runner: input rejected", "node_id", inputErr.NodeID, "err", err)
			if err := r.Handler.SystemOutput(ctx, inputErr.Reason+". Please try again."); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("respond error: %w", err)
		}
		return reply, nil
	}
}
