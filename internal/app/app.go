// Package app wires the pipeline components from configuration. Both the
// HTTP server and the command-line tool build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"booking-tracker/internal/api"
	"booking-tracker/internal/config"
	"booking-tracker/internal/database"
	"booking-tracker/internal/email"
	"booking-tracker/internal/extraction"
	"booking-tracker/internal/ratelimit"
	"booking-tracker/internal/server"
	"booking-tracker/internal/watchers"
	"booking-tracker/internal/workers"
)

// App holds the wired components
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *database.DB
	Tokens    *email.TokenManager
	Fetcher   *email.Fetcher
	Engine    *extraction.Engine
	Registrar *watchers.Registrar
	Sweeper   *workers.Sweeper
	States    *email.StateStore

	watcherClient *api.Client
	closers       []io.Closer
}

// NewLogger creates the process logger at the configured level
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Build opens the database and constructs every component
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: db, closers: []io.Closer{db}}
	logger.Info("Database initialized", "path", cfg.Database.Path)

	completer, err := extraction.NewCompleter(ctx, cfg.ExtractionConfig(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM completer: %w", err)
	}
	if c, ok := completer.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	// A nil interface leaves the registrar unable to register, which it reports per booking
	var watcherAPI watchers.WatcherAPI
	if cfg.WatcherConfigured() {
		client, err := api.NewClient(cfg.WatcherClientConfig(), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create watcher client: %w", err)
		}
		watcherAPI = client
		a.watcherClient = client
	} else {
		logger.Warn("Watcher service URL not set; watcher registration is disabled")
	}

	a.Tokens = email.NewTokenManager(cfg.OAuthConfig(), db.Users, nil, logger)
	a.Fetcher = email.NewFetcher(a.Tokens, db.Bookings, cfg.FetcherConfig(), logger)
	a.Engine = extraction.NewEngine(db.Bookings, completer, logger)
	a.Registrar = watchers.NewRegistrar(db.Bookings, db.Users, db.PriceChecks, watcherAPI, logger)
	a.Sweeper = workers.NewSweeper(db.Users, a.Fetcher, db.Bookings, a.Engine, a.Registrar, cfg.SweepConfig(), logger)
	a.States = email.NewStateStore(10 * time.Minute)

	return a, nil
}

// RouterDeps returns the HTTP API collaborators
func (a *App) RouterDeps() server.Deps {
	deps := server.Deps{
		DB:       a.DB,
		Analyzer: a.Engine,
		Watchers: a.Registrar,
		Prices:   a.Registrar,
		Mail:     a.Sweeper,
		Cooldown: ratelimit.NewCooldown(a.Config.Gmail.CheckCooldown),
		States:   a.States,
		APIKey:   a.Config.Server.APIKey,
		Logger:   a.Logger,
	}
	if a.watcherClient != nil {
		deps.WatcherHealth = a.watcherClient
	}
	if a.Config.GmailConfigured() {
		deps.Connector = a.Tokens
	} else {
		a.Logger.Warn("Gmail OAuth client not configured; the connect flow is disabled")
	}
	return deps
}

// Close releases the database and provider clients
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
