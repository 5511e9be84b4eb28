// Package app assembles the analysis service from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"replaylens/internal/capture"
	"replaylens/internal/config"
	"replaylens/internal/db"
	"replaylens/internal/events"
	"replaylens/internal/lichess"
	"replaylens/internal/logging"
	"replaylens/internal/migrate"
	"replaylens/internal/pipeline"
	"replaylens/internal/progress"
	"replaylens/internal/repo"
	"replaylens/internal/server"
	"replaylens/internal/store"
	"replaylens/internal/summary"
)

// App holds the wired service components.
type App struct {
	Cfg       *config.Config
	Log       *slog.Logger
	Lichess   *lichess.Client
	Store     *store.Store
	Progress  *progress.Tracker
	Runner    *pipeline.Runner
	Summaries *summary.Generator
	Boards    capture.URLBuilder
	Session   *capture.Session
	DB        *sql.DB
	Repo      *repo.Repo
}

// New wires the service. The archive database and the capture session
// are only opened when the config enables them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.New(cfg.Logging.Level)
	a := &App{
		Cfg:      cfg,
		Log:      log,
		Lichess:  lichess.NewClient(cfg, log),
		Store:    store.New(),
		Progress: progress.NewTracker(),
		Boards:   capture.URLBuilder{Template: cfg.Capture.BoardURL},
	}
	a.Summaries = summary.NewGenerator(cfg, log)

	runner := &pipeline.Runner{
		Games:         a.Lichess,
		Evals:         a.Lichess,
		Store:         a.Store,
		Progress:      a.Progress,
		Labels:        cfg.Analysis.Labels,
		FailureBudget: cfg.Analysis.FailureBudget,
		Log:           log,
	}

	if cfg.Archive.Enabled {
		conn, err := db.Open(db.Config{Workspace: cfg.Archive.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate archive: %w", err)
		}
		a.DB = conn
		a.Repo = &repo.Repo{DB: conn}
		runner.Archive = *a.Repo
		runner.Events = events.Writer{DB: conn}
	}

	if cfg.Capture.Enabled && cfg.Capture.ServiceURL != "" {
		sess, err := capture.Dial(ctx, cfg.Capture.ServiceURL, cfg.Capture.SessionName, log)
		if err != nil {
			// board URLs still work without the service
			log.Warn("capture service unavailable", "url", cfg.Capture.ServiceURL, "err", err)
		} else {
			a.Session = sess
		}
	}

	a.Runner = runner
	return a, nil
}

// Handler builds the HTTP API for this app.
func (a *App) Handler(basePath string) (http.Handler, error) {
	cfg := server.Config{
		BasePath:  basePath,
		Runner:    a.Runner,
		Store:     a.Store,
		Progress:  a.Progress,
		Summaries: a.Summaries,
		Boards:    a.Boards,
		Auth:      server.AuthConfig{JWTSecret: a.Cfg.Server.AuthSecret},
		Log:       a.Log,
	}
	if a.Session != nil {
		cfg.Capture = a.Session
	}
	if a.Repo != nil {
		cfg.History = *a.Repo
	}
	return server.New(cfg)
}

// Close releases the capture session and archive handle.
func (a *App) Close() {
	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			a.Log.Warn("closing capture session", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
