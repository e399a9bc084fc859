package backend

import (
	"fmt"

	"budgetledger/internal/config"
)

// Config carries the settings of every engine; only those of Kind are read.
type Config struct {
	Kind Kind

	SQLiteDBPath string
	DatabaseURL  string
	// SeedDir holds seed_owners.txt for the memory engine.
	SeedDir string
}

// ConfigFrom extracts the storage settings from the application config.
func ConfigFrom(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	cfg := Config{
		Kind:         Kind(app.DataBackend),
		SQLiteDBPath: app.SQLiteDBPath,
		DatabaseURL:  app.DatabaseURL,
		SeedDir:      app.DataDir,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Kind {
	case Memory:
		return nil
	case SQLite:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("sqlite backend needs SQLITE_DB_PATH")
		}
	case Postgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("postgres backend needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown backend %q (want one of %v)", c.Kind, Kinds)
	}
	return nil
}
