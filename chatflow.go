package chatflow

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/sandbox"
	"github.com/aretw0/chatflow/pkg/session"
)

// Engine is the high-level entry point for the chatflow library.
// It wires bots, sessions and the flow runtime into a flow.Service.
type Engine struct {
	*flow.Service

	bots     ports.BotProvider
	store    ports.SessionStore
	locker   ports.DistributedLocker
	executor runtime.CodeExecutor
	hooks    domain.LifecycleHooks
	notifier flow.Notifier
	observer flow.Observer
	maxSteps int
	logger   *slog.Logger
	Name     string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithBotProvider injects a custom bot source, bypassing the directory loader.
func WithBotProvider(p ports.BotProvider) Option {
	return func(e *Engine) {
		e.bots = p
	}
}

// WithStore sets the session store. Defaults to an in-memory store.
func WithStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker coordinates session access across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithExecutor replaces the code node sandbox.
func WithExecutor(x runtime.CodeExecutor) Option {
	return func(e *Engine) {
		e.executor = x
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls merge.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithNotifier receives a diff after every session change.
func WithNotifier(n flow.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithObserver receives session level events.
func WithObserver(o flow.Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithMaxSteps bounds the nodes visited by one turn. Zero disables the guard.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes a new Engine.
// By default, bots are read from the JSON/YAML files in botsDir.
// If WithBotProvider is given, botsDir can be empty and only labels the engine.
func New(botsDir string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.bots == nil {
		if botsDir == "" {
			return nil, fmt.Errorf("botsDir is required when no custom bot provider is given")
		}
		absPath, err := filepath.Abs(botsDir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.bots = file.NewBotProvider(absPath)
	}
	if botsDir != "" {
		eng.Name = filepath.Base(botsDir)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("bots", eng.Name)
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.executor == nil {
		eng.executor = sandbox.New(sandbox.WithLogger(eng.logger))
	}

	rt := runtime.NewEngine(
		runtime.WithExecutor(eng.executor),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithMaxSteps(eng.maxSteps),
	)

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}

	flowOpts := []flow.Option{flow.WithEngine(rt), flow.WithLogger(eng.logger)}
	if eng.notifier != nil {
		flowOpts = append(flowOpts, flow.WithNotifier(eng.notifier))
	}
	if eng.observer != nil {
		flowOpts = append(flowOpts, flow.WithObserver(eng.observer))
	}

	eng.Service = flow.NewService(eng.bots, session.NewManager(eng.store, sessionOpts...), flowOpts...)
	return eng, nil
}

// BotProvider returns the bot source used by the engine.
func (e *Engine) BotProvider() ports.BotProvider {
	return e.bots
}

// Store returns the session store used by the engine.
func (e *Engine) Store() ports.SessionStore {
	return e.store
}
