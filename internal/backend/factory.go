package backend

import (
	"context"
	"fmt"
	"log/slog"

	applog "budgetledger/internal/log"
	"budgetledger/internal/storage"
	"budgetledger/internal/storage/memory"
	"budgetledger/internal/storage/postgres"
)

// Factory opens the engine named by a Config, running migrations first for
// the SQL engines.
type Factory struct {
	logger *slog.Logger
}

var _ Opener = (*Factory)(nil)

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger.With(applog.FieldComponent, applog.ComponentBackend)}
}

func (f *Factory) Open(ctx context.Context, cfg Config) (*Opened, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		opened *Opened
		err    error
	)
	switch cfg.Kind {
	case SQLite:
		opened, err = f.openSQLite(cfg)
	case Postgres:
		opened, err = f.openPostgres(ctx, cfg)
	default:
		opened = f.openMemory(cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := opened.Backend.Ping(ctx); err != nil {
		_ = opened.Close()
		return nil, fmt.Errorf("%s backend not reachable: %w", cfg.Kind, err)
	}
	return opened, nil
}

func (f *Factory) openSQLite(cfg Config) (*Opened, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	f.logger.Info("Opened SQLite store", "db_path", cfg.SQLiteDBPath)
	return &Opened{Backend: repo, Close: repo.Close}, nil
}

func (f *Factory) openPostgres(ctx context.Context, cfg Config) (*Opened, error) {
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	f.logger.Info("Opened Postgres store")
	store := postgres.New(pool)
	return &Opened{Backend: store, Close: store.Close}, nil
}

func (f *Factory) openMemory(cfg Config) *Opened {
	dir := cfg.SeedDir
	if dir == "" {
		dir = "data"
	}
	store := memory.NewFromFiles(dir)
	f.logger.Info("Opened in-memory store, data is lost on exit", "seed_dir", dir)
	return &Opened{Backend: store, Close: func() error { return nil }}
}
