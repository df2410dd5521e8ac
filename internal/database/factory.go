package database

import (
	"fmt"
	"os"
	"path/filepath"

	"fswatcher/internal/config"
	"fswatcher/internal/mirror"
)

// NewDatabaseFromConfig opens the state database selected by cfg.Type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock mirror.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteDatabase(cfg.Path, clock)
	case "memory":
		return NewSQLiteDatabase(MemoryPath, clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
