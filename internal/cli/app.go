package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	httpAdapter "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	redisStore "github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/adapters/sqlstore"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/sandbox"
)

// App is a fully wired chatflow process: engine, store, streams and metrics.
type App struct {
	Config  *config.Config
	Engine  *chatflow.Engine
	Streams *httpAdapter.StreamManager
	Metrics *observability.Metrics
	Logger  *slog.Logger

	closers []func() error
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg config.LogConfig, debug bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.NewWithFormat(os.Stderr, level, cfg.Format), nil
}

// NewApp wires the components selected by cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{
		Config:  cfg,
		Streams: httpAdapter.NewStreamManager(logger),
		Logger:  logger,
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	app.Metrics = metrics

	store, locker, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	store, err = protectStore(store, cfg.Security)
	if err != nil {
		app.Close()
		return nil, err
	}

	executor := sandbox.New(
		sandbox.WithLogger(logger),
		sandbox.WithMaxTimeout(cfg.Sandbox.MaxTimeout),
		sandbox.WithHTTPClient(sandbox.NewHTTPClient(sandbox.HTTPConfig{
			Timeout:      cfg.Sandbox.HTTPTimeout,
			MaxBodyBytes: cfg.Sandbox.MaxBodyBytes,
			AllowedHosts: cfg.Sandbox.AllowedHosts,
		})),
	)

	opts := []chatflow.Option{
		chatflow.WithStore(store),
		chatflow.WithExecutor(executor),
		chatflow.WithLogger(logger),
		chatflow.WithMaxSteps(cfg.Engine.MaxSteps),
		chatflow.WithNotifier(app.Streams),
		chatflow.WithObserver(metrics),
		chatflow.WithLifecycleHooks(metrics.Hooks()),
		chatflow.WithLifecycleHooks(observability.LogHooks(logger)),
	}
	if locker != nil {
		opts = append(opts, chatflow.WithLocker(locker))
	}

	eng, err := chatflow.New(cfg.Bots.Dir, opts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Engine = eng
	return app, nil
}

func (a *App) openStore(ctx context.Context) (ports.SessionStore, ports.DistributedLocker, error) {
	sc := a.Config.Store
	switch sc.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil, nil

	case config.DriverFile:
		return file.NewStore(sc.Dir), nil, nil

	case config.DriverRedis:
		store := redisStore.New(sc.RedisAddr, sc.RedisPassword, sc.RedisDB,
			redisStore.WithTTL(sc.TTL),
			redisStore.WithPrefix(sc.Prefix),
		)
		a.closers = append(a.closers, store.Close)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", sc.RedisAddr, err)
		}
		var locker ports.DistributedLocker
		if sc.Lock {
			locker = redisStore.NewLocker(store.Client(), store.LockPrefix())
		}
		return store, locker, nil

	case config.DriverPostgres, config.DriverSQLite:
		driver := sqlstore.DriverPostgres
		if sc.Driver == config.DriverSQLite {
			driver = sqlstore.DriverSQLite
		}
		store, err := sqlstore.Open(ctx, driver, sc.DSN, sqlstore.WithLogger(a.Logger))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// protectStore applies PII masking then encryption, so masked values are what gets encrypted.
func protectStore(store ports.SessionStore, sec config.SecurityConfig) (ports.SessionStore, error) {
	var mws []middleware.Middleware
	if len(sec.PIIPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(sec.PIIPatterns))
	}
	if sec.EncryptionKey != "" {
		active, err := middleware.ParseKey(sec.EncryptionKey)
		if err != nil {
			return nil, err
		}
		encCfg := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range sec.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback key: %w", err)
			}
			encCfg.FallbackKeys = append(encCfg.FallbackKeys, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(encCfg))
	}
	return middleware.Chain(store, mws...), nil
}

// Handler builds the HTTP API for the app.
func (a *App) Handler() (http.Handler, error) {
	opts := []httpAdapter.Option{
		httpAdapter.WithStreams(a.Streams),
		httpAdapter.WithLogger(a.Logger),
		httpAdapter.WithRequestValidation(a.Config.Server.Validate),
		httpAdapter.WithMaxInputSize(a.Config.Engine.MaxInputSize),
		httpAdapter.WithVersion(chatflow.Version),
	}
	if a.Config.Server.Metrics {
		opts = append(opts, httpAdapter.WithMetricsHandler(a.Metrics.Handler()))
	}
	return httpAdapter.NewHandler(a.Engine, opts...)
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
