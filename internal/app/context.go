// Package app wires the database, config, and services for one workspace.
package app

import (
	"database/sql"
	"log/slog"
	"os"

	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/gateway"
	"talentline/internal/ingest"
	"talentline/internal/migrate"
	"talentline/internal/orchestrator"
	"talentline/internal/repo"
)

// App holds one workspace's wired services. Close the app when done.
type App struct {
	DB      *sql.DB
	Cfg     *config.Config
	Repo    repo.Repo
	Gateway *gateway.Gateway
	Ingest  ingest.Ingestor
	Orch    *orchestrator.Orchestrator
	Logger  *slog.Logger
}

// Open loads the workspace config, opens and migrates the database, and
// builds the service graph. Config falls back to defaults when
// talentline.yml is missing.
func Open(workspace string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
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
	gw := gateway.New(cfg.Gateway, logger)
	orch := orchestrator.New(r, gw, cfg, logger)
	return &App{
		DB:      conn,
		Cfg:     cfg,
		Repo:    r,
		Gateway: gw,
		Ingest:  ingest.New(r, orch.Seq, gw, logger),
		Orch:    orch,
		Logger:  logger,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
