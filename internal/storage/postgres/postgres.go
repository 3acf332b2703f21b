// Package postgres records runs in PostgreSQL through the GORM backend.
package postgres

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tabletop-racing/racecontrol/internal/database"
	gormstorage "github.com/tabletop-racing/racecontrol/internal/storage/gorm"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// ErrNotInitialized is returned by record calls made before Init succeeded.
var ErrNotInitialized = errors.New("postgres backend not initialized")

// Backend connects lazily in Init and then delegates to the GORM backend.
type Backend struct {
	conn   database.Postgres
	logger *slog.Logger
	gorm   *gormstorage.Backend
}

// New creates a Postgres backend for conn. No connection is made until Init.
func New(conn database.Postgres, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{conn: conn, logger: logger}
}

// Init connects, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.conn)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.logger.Info("Connected to postgres", "host", b.conn.Host, "database", b.conn.Database)

	g := gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.logger})
	if err := g.Init(); err != nil {
		return err
	}
	b.gorm = g
	return nil
}

// Close writes pending records and stops the writer.
func (b *Backend) Close() error {
	if b.gorm == nil {
		return nil
	}
	return b.gorm.Close()
}

func (b *Backend) StartRun(run *core.Run) error {
	if b.gorm == nil {
		return ErrNotInitialized
	}
	return b.gorm.StartRun(run)
}

func (b *Backend) EndRun(result *core.RunResult) error {
	if b.gorm == nil {
		return ErrNotInitialized
	}
	return b.gorm.EndRun(result)
}

func (b *Backend) RecordLap(lap *core.Lap) error {
	if b.gorm == nil {
		return ErrNotInitialized
	}
	return b.gorm.RecordLap(lap)
}

func (b *Backend) RecordFrame(frame *core.FrameTiming) error {
	if b.gorm == nil {
		return ErrNotInitialized
	}
	return b.gorm.RecordFrame(frame)
}
