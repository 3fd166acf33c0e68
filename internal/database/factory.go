package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ecorpus-go/internal/config"
)

// NewDatabaseFromConfig opens the SQLite database described by cfg.
// public sets the anonymous access level given to new scenes.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, public bool) (*SQLiteDatabase, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path required for sqlite database")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := []Option{WithPublic(public)}
	if cfg.BusyTimeoutMS > 0 {
		opts = append(opts, WithBusyTimeout(time.Duration(cfg.BusyTimeoutMS)*time.Millisecond))
	}
	if cfg.MigrationsPath != "" {
		opts = append(opts, WithMigrationsPath(cfg.MigrationsPath))
	}
	return NewSQLiteDatabase(cfg.Path, nil, nil, opts...)
}
