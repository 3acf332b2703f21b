package storage

import (
	"fmt"
	"log/slog"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/database"
	"github.com/tabletop-racing/racecontrol/internal/storage/memory"
	"github.com/tabletop-racing/racecontrol/internal/storage/postgres"
	sqlitestorage "github.com/tabletop-racing/racecontrol/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		pg := cfg.Postgres
		return postgres.New(database.Postgres{
			Host:         pg.Host,
			Port:         pg.Port,
			User:         pg.Username,
			Password:     pg.Password,
			Database:     pg.Database,
			SSLMode:      pg.SSLMode,
			MaxOpenConns: pg.MaxOpenConns,
		}, logger), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpPath:     cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, logger)
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
