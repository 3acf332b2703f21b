package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/dispatcher"
	"github.com/tabletop-racing/racecontrol/internal/influx"
	"github.com/tabletop-racing/racecontrol/internal/storage"
	"github.com/tabletop-racing/racecontrol/internal/worker"
)

// recorder bundles the run storage, its event dispatcher and the optional
// InfluxDB frame timing sink.
type recorder struct {
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher
	influx     *influx.Manager
	logger     *slog.Logger
}

func newRecorder(ctx context.Context, logger *slog.Logger, zlog zerolog.Logger) (*recorder, error) {
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	logger.Info("Storage backend initialized", "type", storageCfg.Type)

	r := &recorder{backend: backend, logger: logger}

	var sinks []worker.FrameSink
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		r.influx = influx.NewManager(influxCfg, zlog, influxBackupPath())
		if err := r.influx.Connect(ctx); err != nil {
			logger.Warn("InfluxDB unavailable, frame timing is only summarised", "error", err)
		}
		logger.Info("Frame timing sink ready", "mode", r.influx.Mode())
		sinks = append(sinks, r.influx)
	}

	r.dispatcher, err = dispatcher.New(logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	worker.NewManager(worker.Dependencies{
		Logger:   logger,
		Scenario: ActiveRun,
		Sinks:    sinks,
	}, backend).RegisterHandlers(r.dispatcher)
	logger.Debug("Worker handlers registered with dispatcher")

	return r, nil
}

// Dispatcher returns the dispatcher the session records through.
func (r *recorder) Dispatcher() *dispatcher.Dispatcher {
	return r.dispatcher
}

// Close drains pending events and then closes the sinks and the backend.
func (r *recorder) Close() error {
	r.dispatcher.Close()

	var errs []error
	if r.influx != nil {
		errs = append(errs, r.influx.Close())
	}
	errs = append(errs, r.backend.Close())
	if err := errors.Join(errs...); err != nil {
		r.logger.Warn("Recorder shutdown incomplete", "error", err)
		return err
	}
	return nil
}
