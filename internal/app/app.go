// Package app wires the castline components together for the CLI and the
// serve command. Every dependency is injected explicitly so tests can swap
// stores, transports, and clocks.
package app

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"castline/internal/broadcast"
	"castline/internal/config"
	"castline/internal/db"
	"castline/internal/depth"
	"castline/internal/events"
	"castline/internal/migrate"
	"castline/internal/repo"
	"castline/internal/transport"
)

type Components struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Resolver  *depth.Resolver
	Messenger transport.Messenger
	Executor  *broadcast.Executor
	Scheduler *broadcast.Scheduler
	Config    *config.Config
	Logger    *zap.Logger
}

// Build opens the workspace database, applies migrations, and assembles the
// full component graph from config.
func Build(workspace string, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	r := repo.Repo{DB: conn}
	resolver := depth.NewResolver(r, logger.Named("depth"))
	if cfg.Depth.DefaultLevel > 0 {
		resolver.DefaultLevel = cfg.Depth.DefaultLevel
	}

	gateway := transport.NewGateway(
		cfg.Gateway.URL,
		cfg.Gateway.Token,
		time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second,
		logger.Named("gateway"),
	)
	executor := broadcast.NewExecutor(r, resolver, gateway, logger.Named("executor"))
	scheduler := broadcast.NewScheduler(r, executor, gateway, logger.Named("scheduler"))
	if cfg.Scheduler.TickSeconds > 0 {
		scheduler.Interval = time.Duration(cfg.Scheduler.TickSeconds) * time.Second
	}

	return &Components{
		DB:        conn,
		Repo:      r,
		Events:    events.Writer{DB: conn},
		Resolver:  resolver,
		Messenger: gateway,
		Executor:  executor,
		Scheduler: scheduler,
		Config:    cfg,
		Logger:    logger,
	}, nil
}

func (c *Components) Close() error {
	return c.DB.Close()
}
