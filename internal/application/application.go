// Package application wires configuration into a running manifest Service:
// run store, event publisher, tracking client and rule profiles.
// Both the HTTP server and the CLI build their service through it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/shiptrack/internal/config"
	"github.com/JonMunkholm/shiptrack/internal/core"
	"github.com/JonMunkholm/shiptrack/internal/events"
	"github.com/JonMunkholm/shiptrack/internal/store"
	"github.com/JonMunkholm/shiptrack/internal/trackclient"
)

// publisher is an event publisher that owns resources.
type publisher interface {
	core.EventPublisher
	Close() error
}

// App holds the service and the resources behind it.
type App struct {
	Service *core.Service
	Store   core.RunStore
	Events  core.EventPublisher

	pool   *pgxpool.Pool
	events publisher
}

// Option overrides a dependency, mostly for tests and the CLI.
type Option func(*options)

type options struct {
	lookup    core.Lookup
	memory    bool
	noEvents  bool
	serviceFn []core.ServiceOption
}

// WithLookup replaces the HTTP tracking client.
func WithLookup(l core.Lookup) Option {
	return func(o *options) { o.lookup = l }
}

// WithMemoryStore ignores DATABASE_URL and keeps history in memory.
func WithMemoryStore() Option {
	return func(o *options) { o.memory = true }
}

// WithoutEvents ignores KAFKA_BROKERS.
func WithoutEvents() Option {
	return func(o *options) { o.noEvents = true }
}

// WithServiceOptions passes extra options to core.NewService.
func WithServiceOptions(opts ...core.ServiceOption) Option {
	return func(o *options) { o.serviceFn = append(o.serviceFn, opts...) }
}

// New builds the application. Close must be called to release the database
// pool and flush the event writer.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Ingest.RulesFile != "" {
		names, err := core.LoadProfilesFile(cfg.Ingest.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load rule profiles: %w", err)
		}
		logger.Info("rule profiles loaded", "file", cfg.Ingest.RulesFile, "profiles", names)
	}
	if _, ok := core.GetProfile(cfg.Ingest.MatchMode); !ok {
		return nil, fmt.Errorf("unknown match mode %q (have %s)", cfg.Ingest.MatchMode, strings.Join(core.ProfileNames(), ", "))
	}

	a := &App{}

	if cfg.Database.URL != "" && !o.memory {
		pool, err := openPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		a.Store = pg
	} else {
		a.Store = store.NewMemory()
		logger.Info("run history kept in memory")
	}

	if len(cfg.Events.Brokers) > 0 && !o.noEvents {
		k := events.NewKafka(cfg.Events.Brokers, cfg.Events.Topic, logger)
		a.events = k
		a.Events = k
		logger.Info("publishing eta events", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	} else {
		a.events = events.Nop{}
		a.Events = events.Nop{}
	}

	lookup := o.lookup
	if lookup == nil {
		lookup = trackclient.New(cfg.Tracking.Endpoint(),
			trackclient.WithTimeout(cfg.Tracking.Timeout),
			trackclient.WithMaxRetries(cfg.Tracking.MaxRetries),
			trackclient.WithAPIKey(cfg.Tracking.APIKey),
			trackclient.WithLogger(logger),
		)
	}

	svcOpts := []core.ServiceOption{
		core.WithRunStore(a.Store),
		core.WithEventPublisher(a.Events),
		core.WithRunLimiter(core.NewRunLimiter(cfg.Tracking.MaxConcurrentRuns, cfg.Tracking.MaxWaitTime)),
		core.WithServiceLogger(logger),
	}
	a.Service = core.NewService(lookup, core.ServiceConfig{
		MatchMode:        cfg.Ingest.MatchMode,
		HeaderSearchRows: cfg.Ingest.HeaderSearchRows,
		MaxFileSize:      cfg.Ingest.MaxFileSize,
		SessionTTL:       cfg.Ingest.SessionTTL,
	}, append(svcOpts, o.serviceFn...)...)

	return a, nil
}

// Close shuts down active runs, then releases the event writer and pool.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Service.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for runs: %w", err))
	}
	if err := a.events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event writer: %w", err))
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

// openPool connects to PostgreSQL with the configured pool limits.
func openPool(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		logger.Info("connected to database")
	}
	return pool, nil
}
