package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/graph"
	"github.com/aretw0/chatflow/pkg/sandbox"
)

// CodeExecutor runs the script of a code node.
type CodeExecutor interface {
	Execute(ctx context.Context, nodeID string, data domain.CodeData, variables map[string]any) sandbox.Result
}

// Engine is the flow state machine. It holds no per-session state: every Run
// works on a copy of the session variables and reports the outcome in a
// RunResult, leaving persistence to the caller.
type Engine struct {
	executor    CodeExecutor
	interpolate Interpolator
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxSteps    int
}

// Option configures the Engine.
type Option func(*Engine)

// WithExecutor sets the code node executor. Defaults to a sandbox.Executor.
func WithExecutor(x CodeExecutor) Option {
	return func(e *Engine) {
		e.executor = x
	}
}

// WithInterpolator sets how node text is rendered against session variables.
func WithInterpolator(i Interpolator) Option {
	return func(e *Engine) {
		e.interpolate = i
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxSteps bounds the number of nodes visited by one Run. Zero disables the guard.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// NewEngine creates a new engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		interpolate: DefaultInterpolator,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.executor == nil {
		e.executor = sandbox.New(sandbox.WithLogger(e.logger))
	}
	return e
}

// Run advances session through g starting at startNodeID. A nil input means no
// input was supplied; the first question or confirmation reached consumes it.
//
// Run stops when it must wait for input (PausedFor is set), when the flow
// reaches a terminal state (Finished is set) or when ctx is done.
func (e *Engine) Run(ctx context.Context, g domain.Graph, session *domain.Session, startNodeID string, input any) (*domain.RunResult, error) {
	return e.RunIndexed(ctx, graph.Build(g), session, startNodeID, input)
}

// RunIndexed is Run over a prebuilt index, for callers that cache indexes per bot.
func (e *Engine) RunIndexed(ctx context.Context, idx *graph.Index, session *domain.Session, startNodeID string, input any) (*domain.RunResult, error) {
	res := &domain.RunResult{
		Outputs:   []domain.Output{},
		Variables: domain.CopyVariables(session.Variables),
	}
	if session.Finished {
		res.Finished = true
		res.NextNodeID = session.CurrentNodeID
		return res, nil
	}

	r := &run{engine: e, idx: idx, session: session, res: res, input: input}

	current, ok := idx.Get(startNodeID)
	if !ok {
		e.logger.Warn("start node not found", "session_id", session.ID, "node_id", startNodeID)
		res.Finished = true
		return res, nil
	}

	for steps := 1; ; steps++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.maxSteps > 0 && steps > e.maxSteps {
			res.Finished = true
			e.emitFinish(ctx, session.ID, current)
			return res, fmt.Errorf("stopped at node %s after %d steps: %w", current.ID, e.maxSteps, domain.ErrStepLimit)
		}

		res.NextNodeID = current.ID
		e.emitEnter(ctx, session.ID, current)

		nextID, outcome := r.visit(ctx, current)
		switch outcome {
		case outcomePause:
			e.emitPause(ctx, session.ID, current)
			res.NextNodeID = ""
			return res, nil
		case outcomeFinish:
			res.Finished = true
			e.emitFinish(ctx, session.ID, current)
			return res, nil
		}

		next, ok := idx.Get(nextID)
		if !ok {
			e.logger.Debug("edge points to missing node", "session_id", session.ID, "from", current.ID, "to", nextID)
			res.NextNodeID = ""
			res.Finished = true
			e.emitFinish(ctx, session.ID, current)
			return res, nil
		}
		current = next
	}
}

type outcome int

const (
	outcomeAdvance outcome = iota
	outcomePause
	outcomeFinish
)

// run is the state of one invocation.
type run struct {
	engine  *Engine
	idx     *graph.Index
	session *domain.Session
	res     *domain.RunResult
	input   any
}

func (r *run) emit(node domain.Node, content any) {
	outType := string(node.Kind())
	r.res.Outputs = append(r.res.Outputs, domain.Output{NodeID: node.ID, Type: outType, Content: content})
}

func (r *run) render(text string) string {
	return r.engine.interpolate(text, r.res.Variables)
}

// follow returns the target of the first outgoing edge.
func (r *run) follow(node domain.Node) (string, outcome) {
	outs := graph.Outgoing(r.idx.Edges(), node.ID)
	if len(outs) == 0 {
		return "", outcomeFinish
	}
	return outs[0].Target, outcomeAdvance
}

func (r *run) visit(ctx context.Context, node domain.Node) (string, outcome) {
	switch data := node.Data.(type) {
	case domain.MessageData:
		r.emit(node, r.render(data.Message))
		return r.follow(node)

	case domain.RedirectData:
		r.emit(node, data.RedirectURL)
		return "", outcomeFinish

	case domain.QuestionData:
		if r.input == nil {
			r.res.PausedFor = &domain.Pause{
				Type:     domain.NodeTypeQuestion,
				NodeID:   node.ID,
				Message:  r.render(data.Message),
				Variable: data.Variable,
			}
			return "", outcomePause
		}
		answer := r.input
		r.input = nil
		if data.Variable != "" {
			r.res.Variables[data.Variable] = answer
		}
		r.emit(node, domain.QuestionAnswer{Prompt: r.render(data.Message), Answer: answer, Variable: data.Variable})
		return r.follow(node)

	case domain.ConfirmationData:
		if r.input == nil {
			r.res.PausedFor = &domain.Pause{
				Type:    domain.NodeTypeConfirmation,
				NodeID:  node.ID,
				Message: r.render(data.Message),
			}
			return "", outcomePause
		}
		answer := NormalizeConfirmation(r.input)
		r.input = nil
		r.emit(node, domain.ConfirmationAnswer{Prompt: r.render(data.Message), Answer: answer})
		edge, ok := graph.ResolveEdge(r.idx.Edges(), node.ID, answer)
		if !ok {
			return "", outcomeFinish
		}
		return edge.Target, outcomeAdvance

	case domain.BranchData:
		options := make([]string, len(data.Options))
		copy(options, data.Options)
		r.res.PausedFor = &domain.Pause{
			Type:    domain.NodeTypeBranch,
			NodeID:  node.ID,
			Message: r.render(data.Message),
			Options: options,
		}
		return "", outcomePause

	case domain.BranchOptionData:
		return r.follow(node)

	case domain.CodeData:
		return r.runCode(ctx, node, data)

	case domain.UnknownData:
		r.emit(node, map[string]any(data))
		return "", outcomeFinish
	}

	r.engine.logger.Warn("node has no payload", "session_id", r.session.ID, "node_id", node.ID, "type", node.Type)
	r.res.Outputs = append(r.res.Outputs, domain.Output{NodeID: node.ID, Type: domain.OutputUnknown, Content: map[string]any{}})
	return "", outcomeFinish
}

func (r *run) runCode(ctx context.Context, node domain.Node, data domain.CodeData) (string, outcome) {
	exec := r.engine.executor.Execute(ctx, node.ID, data, r.res.Variables)
	r.engine.emitCode(ctx, r.session.ID, node.ID, exec)
	now := time.Now().UTC()

	if !exec.Success {
		r.emit(node, domain.CodeOutcome{Error: exec.Error, Success: false, Timestamp: now})
		// Only an explicit error edge recovers a failed script.
		if edge, ok := graph.ResolveEdge(r.idx.Edges(), node.ID, domain.HandleError); ok && edge.SourceHandle != "" {
			return edge.Target, outcomeAdvance
		}
		return "", outcomeFinish
	}

	for k, v := range exec.Variables {
		r.res.Variables[k] = v
	}
	r.emit(node, domain.CodeOutcome{Result: exec.Result, Success: true, Timestamp: now})
	if edge, ok := graph.ResolveEdge(r.idx.Edges(), node.ID, domain.HandleSuccess); ok {
		return edge.Target, outcomeAdvance
	}
	return r.follow(node)
}

// NormalizeConfirmation renders a confirmation answer as a lowercase handle.
func NormalizeConfirmation(input any) string {
	return strings.ToLower(strings.TrimSpace(Stringify(input)))
}

// Stringify renders a user input the way it is shown in text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func (e *Engine) emitEnter(ctx context.Context, sessionID string, node domain.Node) {
	e.logger.Debug("entering node", "session_id", sessionID, "node_id", node.ID, "type", node.Type)
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, nodeEvent(domain.EventNodeEnter, sessionID, node))
	}
}

func (e *Engine) emitPause(ctx context.Context, sessionID string, node domain.Node) {
	if e.hooks.OnPause != nil {
		e.hooks.OnPause(ctx, nodeEvent(domain.EventPause, sessionID, node))
	}
}

func (e *Engine) emitFinish(ctx context.Context, sessionID string, node domain.Node) {
	e.logger.Debug("flow finished", "session_id", sessionID, "node_id", node.ID)
	if e.hooks.OnFinish != nil {
		e.hooks.OnFinish(ctx, nodeEvent(domain.EventFinish, sessionID, node))
	}
}

func (e *Engine) emitCode(ctx context.Context, sessionID, nodeID string, res sandbox.Result) {
	if e.hooks.OnCodeExecuted == nil {
		return
	}
	e.hooks.OnCodeExecuted(ctx, &domain.CodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCodeExecuted, SessionID: sessionID},
		NodeID:    nodeID,
		Duration:  res.Duration,
		Success:   res.Success,
		Error:     res.Error,
	})
}

func nodeEvent(t domain.EventType, sessionID string, node domain.Node) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: t, SessionID: sessionID},
		NodeID:    node.ID,
		NodeType:  node.Type,
	}
}
