package database

import (
	"fmt"
	"os"
	"path/filepath"

	"almaseo-go/internal/config"
)

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database config type.
// File databases are named after the site ID.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, siteID string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, siteID+".db"))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
