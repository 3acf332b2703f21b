// Package gormstorage implements storage.Backend on any GORM dialect. Runs are
// inserted synchronously so they get their ID; laps and frame timings are
// queued and written in batches by a background goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tabletop-racing/racecontrol/internal/model"
	"github.com/tabletop-racing/racecontrol/internal/model/convert"
	"github.com/tabletop-racing/racecontrol/internal/queue"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Defaults for Dependencies.
const (
	DefaultFlushInterval = 2 * time.Second
	DefaultBatchSize     = 500
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
	// BatchSize caps the rows written per transaction.
	BatchSize int
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps Dependencies

	laps   *queue.Queue[model.Lap]
	frames *queue.Queue[model.FrameTiming]

	// writeMu serializes batch writes between the writer goroutine and
	// EndRun/Close.
	writeMu sync.Mutex

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	return &Backend{
		deps:   deps,
		laps:   queue.New[model.Lap](),
		frames: queue.New[model.FrameTiming](),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("no database connection")
	}

	b.deps.Logger.Info("Migrating schema")
	if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
		<-b.done
	})
	return b.flush()
}

// StartRun inserts the run and assigns its ID.
func (b *Backend) StartRun(run *core.Run) error {
	row, err := convert.CoreToRun(*run)
	if err != nil {
		return err
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	run.ID = row.ID
	return nil
}

// RecordLap queues a lap boundary.
func (b *Backend) RecordLap(lap *core.Lap) error {
	b.laps.Push(convert.CoreToLap(*lap))
	return nil
}

// RecordFrame queues a frame timing record.
func (b *Backend) RecordFrame(frame *core.FrameTiming) error {
	b.frames.Push(convert.CoreToFrameTiming(*frame))
	return nil
}

// EndRun writes the run's queued records and closes the run row.
func (b *Backend) EndRun(result *core.RunResult) error {
	flushErr := b.flush()

	row := model.Run{ID: result.RunID}
	convert.ApplyResult(&row, *result)
	err := b.deps.DB.Model(&row).
		Select("end_time", "end_reason", "lap_count", "best_lap_ms").
		Updates(&row).Error
	if err != nil {
		err = fmt.Errorf("failed to close run %d: %w", result.RunID, err)
	}
	return errors.Join(flushErr, err)
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.flush(); err != nil {
				b.deps.Logger.Error("Failed to write queued records", "error", err)
			}
		}
	}
}

func (b *Backend) flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	return errors.Join(
		writeQueue(b.deps.DB, b.laps, b.deps.BatchSize, "laps"),
		writeQueue(b.deps.DB, b.frames, b.deps.BatchSize, "frame timings"),
	)
}

// writeQueue writes the queue out in transactions of at most batch rows. A
// failed batch goes back to the head of the queue and stops the write.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], batch int, name string) error {
	for q.Len() > 0 {
		items := q.Take(batch)
		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&items).Error
		})
		if err != nil {
			q.Requeue(items)
			return fmt.Errorf("failed to write %d %s: %w", len(items), name, err)
		}
	}
	return nil
}
