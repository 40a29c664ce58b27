package database

import (
	"fmt"
	"path/filepath"

	"dds-go/internal/config"
	"dds-go/internal/dds"
)

// NewDatabaseFromConfig creates a Database implementation based on the
// database config type. A "memory" database gets the current schema applied
// immediately; a "sqlite" database is checked against the migration status
// by the caller.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (dds.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite database requires data_dir to be set")
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "dds.db"))
	case "memory":
		db, err := OpenConnection(":memory:")
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec(Schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
		return NewSQLiteDatabaseFromDB(db), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
