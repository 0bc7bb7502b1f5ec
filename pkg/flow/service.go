package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/graph"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
)

// NoticeMissingNode is reported when a session waits on a node that was
// removed from the bot's graph.
const NoticeMissingNode = "No node to respond to; session ended"

var errUnchanged = errors.New("session unchanged")

// Notifier receives the changes made to a session by each request.
type Notifier interface {
	Notify(ctx context.Context, diff *domain.SessionDiff)
}

// Observer receives orchestration events, typically for metrics.
type Observer interface {
	SessionStarted(botID string)
	SessionFinished(botID string)
	InputRejected(botID string, nodeType domain.NodeType, err error)
}

// Response is the user's answer to the node a session is waiting on.
// Nil fields are absent.
type Response struct {
	Input  any `json:"input,omitempty"`
	Option any `json:"optionIndexOrLabel,omitempty"`
}

// Service orchestrates flow sessions.
type Service struct {
	bots     ports.BotProvider
	sessions *session.Manager
	engine   *runtime.Engine
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	newID    func() string
}

// Option configures the Service.
type Option func(*Service)

// WithEngine sets the engine used to run flows.
func WithEngine(e *runtime.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithNotifier publishes session diffs after every change.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithIDGenerator overrides how session IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService creates a Service.
func NewService(bots ports.BotProvider, sessions *session.Manager, opts ...Option) *Service {
	s := &Service{
		bots:     bots,
		sessions: sessions,
		logger:   logging.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = runtime.NewEngine(runtime.WithLogger(s.logger))
	}
	return s
}

// Start creates a session for botID and runs the flow until it first pauses or finishes.
func (s *Service) Start(ctx context.Context, botID string) (*Reply, error) {
	bot, err := s.bots.Bot(ctx, botID)
	if err != nil {
		return nil, err
	}

	sess := domain.NewSession(s.newID(), bot.ID)
	res := &domain.RunResult{Finished: true, Variables: sess.Variables}
	var notice string

	if start, ok := graph.FindStartNode(bot.Flow); ok {
		res, notice, err = s.run(ctx, graph.Build(bot.Flow), sess, start.ID, nil)
		if err != nil {
			return nil, err
		}
	}
	apply(sess, res)

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Info("session started", "session_id", sess.ID, "bot_id", bot.ID, "finished", sess.Finished)
	if s.observer != nil {
		s.observer.SessionStarted(bot.ID)
		if sess.Finished {
			s.observer.SessionFinished(bot.ID)
		}
	}
	s.publish(ctx, nil, sess)

	return newReply(sess, res, notice), nil
}

// Respond feeds a user response into the node the session is waiting on.
func (s *Service) Respond(ctx context.Context, sessionID string, resp Response) (*Reply, error) {
	var (
		reply  *Reply
		before *domain.Session
		botID  string
	)

	after, err := s.sessions.Update(ctx, sessionID, func(ctx context.Context, sess *domain.Session) error {
		before = sess.Snapshot()
		botID = sess.BotID

		if sess.Finished {
			reply = &Reply{SessionID: sess.ID, Messages: []Message{}, Finished: true, Variables: sess.Variables}
			return errUnchanged
		}

		bot, err := s.bots.Bot(ctx, sess.BotID)
		if err != nil {
			return fmt.Errorf("bot for session: %w", err)
		}
		idx := graph.Build(bot.Flow)

		if sess.CurrentNodeID == "" {
			start, ok := graph.FindStartNode(bot.Flow)
			if !ok {
				sess.Finished = true
				reply = &Reply{SessionID: sess.ID, Messages: []Message{}, Finished: true, Variables: sess.Variables}
				return nil
			}
			sess.CurrentNodeID = start.ID
		}

		waiting, ok := idx.Get(sess.CurrentNodeID)
		if !ok {
			s.logger.Warn("waiting node missing from graph", "session_id", sess.ID, "node_id", sess.CurrentNodeID)
			sess.Finished = true
			reply = &Reply{SessionID: sess.ID, Messages: []Message{}, Finished: true, Variables: sess.Variables, Notice: NoticeMissingNode}
			return nil
		}

		startID, input, err := s.accept(idx, sess, waiting, resp)
		if err != nil {
			if s.observer != nil {
				s.observer.InputRejected(sess.BotID, waiting.Kind(), err)
			}
			return err
		}

		res, notice, err := s.run(ctx, idx, sess, startID, input)
		if err != nil {
			return err
		}
		apply(sess, res)
		reply = newReply(sess, res, notice)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return reply, nil
	}
	if err != nil {
		return nil, err
	}

	if after.Finished && !before.Finished && s.observer != nil {
		s.observer.SessionFinished(botID)
	}
	s.publish(ctx, before, after)
	return reply, nil
}

// accept validates resp against the waiting node, records the user's side of
// the exchange and returns where the run resumes.
func (s *Service) accept(idx *graph.Index, sess *domain.Session, waiting domain.Node, resp Response) (string, any, error) {
	now := time.Now().UTC()

	switch waiting.Data.(type) {
	case domain.BranchData:
		selector := resp.Option
		if selector == nil {
			selector = resp.Input
		}
		if selector == nil {
			return "", nil, &domain.InputError{
				NodeID: waiting.ID,
				Reason: "provide optionIndexOrLabel (index or label) to select a branch option",
				Err:    domain.ErrInputRequired,
			}
		}
		optionID, ok := graph.FindBranchOption(idx, waiting, selector)
		if !ok {
			return "", nil, &domain.InputError{
				NodeID: waiting.ID,
				Reason: fmt.Sprintf("branch option %v not recognized", selector),
				Err:    domain.ErrInvalidBranchOption,
			}
		}
		sess.Append(domain.HistoryEntry{
			NodeID:    waiting.ID,
			Type:      domain.EntryBranchSelect,
			Content:   domain.BranchSelection{SelectedOptionNodeID: optionID, Selected: selector},
			Timestamp: now,
			FromUser:  true,
		})
		return optionID, nil, nil

	case domain.QuestionData, domain.ConfirmationData:
		if resp.Input == nil {
			return "", nil, &domain.InputError{
				NodeID: waiting.ID,
				Reason: "provide input for this node",
				Err:    domain.ErrInputRequired,
			}
		}
		sess.Append(domain.HistoryEntry{
			NodeID:    waiting.ID,
			Type:      domain.EntryUserInput,
			Content:   resp.Input,
			Timestamp: now,
			FromUser:  true,
		})
		return waiting.ID, resp.Input, nil
	}

	return waiting.ID, nil, nil
}

// run invokes the engine. A step limit ends the flow with a notice instead of failing the request.
func (s *Service) run(ctx context.Context, idx *graph.Index, sess *domain.Session, startID string, input any) (*domain.RunResult, string, error) {
	res, err := s.engine.RunIndexed(ctx, idx, sess, startID, input)
	if err == nil {
		return res, "", nil
	}
	if errors.Is(err, domain.ErrStepLimit) && res != nil {
		s.logger.Warn("flow stopped by step limit", "session_id", sess.ID, "err", err)
		return res, "The conversation was stopped because the flow did not reach a stopping point.", nil
	}
	return nil, "", fmt.Errorf("flow run failed: %w", err)
}

// apply records a run's outcome in the session.
func apply(sess *domain.Session, res *domain.RunResult) {
	now := time.Now().UTC()
	for _, o := range res.Outputs {
		sess.Append(domain.HistoryEntry{NodeID: o.NodeID, Type: o.Type, Content: o.Content, Timestamp: now})
	}

	if p := res.PausedFor; p != nil {
		sess.Append(domain.HistoryEntry{
			NodeID:        p.NodeID,
			Type:          string(p.Type),
			Content:       p.Message,
			Timestamp:     now,
			AwaitingInput: true,
		})
		sess.CurrentNodeID = p.NodeID
	} else {
		sess.CurrentNodeID = res.NextNodeID
	}

	if res.Variables != nil {
		sess.Variables = res.Variables
	}
	if res.Finished || sess.CurrentNodeID == "" {
		sess.Finished = true
	}
}

func (s *Service) publish(ctx context.Context, before, after *domain.Session) {
	if s.notifier == nil || after == nil {
		return
	}
	if diff := domain.Diff(before, after); diff != nil {
		s.notifier.Notify(ctx, diff)
	}
}

// Transcript is the history of one session.
type Transcript struct {
	BotID         string                `json:"botId"`
	SessionID     string                `json:"sessionId"`
	History       []domain.HistoryEntry `json:"history"`
	CurrentNodeID string                `json:"currentNodeId,omitempty"`
	Finished      bool                  `json:"isFinished"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"lastUpdatedAt"`
}

// History returns the conversation log of a session. With clean set,
// restatements of answered prompts are elided from the view.
func (s *Service) History(ctx context.Context, sessionID string, clean bool) (*Transcript, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := sess.History
	if clean {
		history = CleanHistory(history)
	}
	return &Transcript{
		BotID:         sess.BotID,
		SessionID:     sess.ID,
		History:       history,
		CurrentNodeID: sess.CurrentNodeID,
		Finished:      sess.Finished,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
	}, nil
}

// Sessions returns the sessions of a bot, newest first.
func (s *Service) Sessions(ctx context.Context, botID string) ([]*domain.Session, error) {
	if _, err := s.bots.Bot(ctx, botID); err != nil {
		return nil, err
	}
	var ids []string
	var err error
	if lister, ok := s.sessions.Store().(ports.BotSessionLister); ok {
		ids, err = lister.ListByBot(ctx, botID)
	} else {
		ids, err = s.sessions.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	var out []*domain.Session
	for _, id := range ids {
		sess, err := s.sessions.Store().Load(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.BotID == botID {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Bot returns a bot definition.
func (s *Service) Bot(ctx context.Context, botID string) (*domain.Bot, error) {
	return s.bots.Bot(ctx, botID)
}

// Bots lists the known bot IDs.
func (s *Service) Bots(ctx context.Context) ([]string, error) {
	return s.bots.ListBots(ctx)
}

// Session loads a session.
func (s *Service) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.Load(ctx, sessionID)
}

// DeleteSession removes a session.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// Resume returns the prompt a session is waiting on without changing it.
// Finished sessions resume to an empty finished reply.
func (s *Service) Resume(ctx context.Context, sessionID string) (*Reply, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := &domain.RunResult{}
	if !sess.Finished && sess.CurrentNodeID != "" {
		bot, err := s.bots.Bot(ctx, sess.BotID)
		if err != nil {
			return nil, err
		}
		if node, ok := graph.Build(bot.Flow).Get(sess.CurrentNodeID); ok {
			res.PausedFor = pendingPause(sess, node)
		}
	}
	return newReply(sess, res, ""), nil
}

// pendingPause rebuilds the pause a session stopped at from its history.
func pendingPause(sess *domain.Session, node domain.Node) *domain.Pause {
	p := &domain.Pause{Type: node.Type, NodeID: node.ID}
	switch data := node.Data.(type) {
	case domain.QuestionData:
		p.Message = data.Message
		p.Variable = data.Variable
	case domain.ConfirmationData:
		p.Message = data.Message
	case domain.BranchData:
		p.Message = data.Message
		p.Options = append([]string(nil), data.Options...)
	default:
		return nil
	}
	for i := len(sess.History) - 1; i >= 0; i-- {
		if h := sess.History[i]; h.AwaitingInput && h.NodeID == node.ID {
			p.Message = ContentText(h.Content)
			break
		}
	}
	return p
}
