package store

import (
	"fmt"

	"github.com/wireterm/wireterm/server/internal/config"
)

// Open selects and opens the configured storage backend.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Database.Type {
	case "sqlite":
		return NewSQLite(cfg.Database.SQLitePath)
	case "mysql":
		return NewMySQL(cfg.Database.MySQLURL)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}
