// Package influx writes per-frame scheduler timings to InfluxDB, falling back
// to a gzipped line protocol file when the server cannot be reached.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

const (
	// Measurement is the measurement name of frame timing points.
	Measurement = "frame_timing"
	// SummaryEvery is the number of frames averaged per summary log line.
	SummaryEvery = 100

	defaultRetention = 90 * 24 * time.Hour
)

// Output modes reported by Manager.Mode.
const (
	ModeOff    = "off"
	ModeServer = "server"
	ModeBackup = "backup"
)

// ErrNoSink is returned by WritePoint before Connect found a destination.
var ErrNoSink = errors.New("influx: no server or backup file")

// pointWriter is where points end up.
type pointWriter interface {
	write(p *influxdb2_write.Point) error
	close() error
	mode() string
}

// Manager sends frame timings to InfluxDB or its backup file.
type Manager struct {
	cfg        config.InfluxConfig
	log        zerolog.Logger
	backupPath string

	mu      sync.Mutex
	out     pointWriter
	summary summary
}

// NewManager creates a manager. Nothing is written until Connect succeeds.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &Manager{cfg: cfg, log: log, backupPath: backupPath}
}

// Connect pings the server and prepares the org and bucket. When the server
// does not answer, points go to the backup file instead and Connect succeeds.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	client := influxdb2.NewClientWithOptions(m.cfg.URL, m.cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(500).SetFlushInterval(1000))

	if ok, err := client.Ping(ctx); err != nil || !ok {
		client.Close()
		backup, err := openBackup(m.backupPath)
		if err != nil {
			return err
		}
		m.setOutput(backup)
		m.log.Warn().Str("backupPath", m.backupPath).Msg("InfluxDB unreachable, writing frame timing to backup file")
		return nil
	}

	if err := m.ensureBucket(ctx, client); err != nil {
		client.Close()
		return err
	}
	m.setOutput(newServerWriter(client, m.cfg, m.log))
	m.log.Info().Str("url", m.cfg.URL).Str("bucket", m.cfg.Bucket).Msg("InfluxDB connected")
	return nil
}

func (m *Manager) setOutput(w pointWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = w
}

// ensureBucket creates the org and the bucket when missing.
func (m *Manager) ensureBucket(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Creating InfluxDB organization")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("failed to create organization %s: %w", m.cfg.Org, err)
		}
	}

	buckets := client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.log.Info().Str("bucket", m.cfg.Bucket).Dur("retention", m.cfg.Retention).Msg("Creating InfluxDB bucket")
	expire := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &expire,
		EverySeconds: int64(m.cfg.Retention / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// Mode reports where points currently go.
func (m *Manager) Mode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return ModeOff
	}
	return m.out.mode()
}

// WritePoint writes a single point.
func (m *Manager) WritePoint(p *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(p)
}

func (m *Manager) writeLocked(p *influxdb2_write.Point) error {
	if m.out == nil {
		return ErrNoSink
	}
	return m.out.write(p)
}

// WriteFrame records one frame timing and logs an average every
// SummaryEvery frames. Frames are still summarised when there is no output.
func (m *Manager) WriteFrame(frame core.FrameTiming) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.out != nil {
		if err := m.writeLocked(FramePoint(frame)); err != nil {
			m.log.Error().Err(err).Uint("frame", frame.Frame).Msg("Failed to write frame timing")
		}
	}

	avg, ok := m.summary.add(frame)
	if !ok {
		return
	}
	m.log.Info().
		Uint("run", avg.RunID).
		Uint("frame", avg.Frame).
		Dur("vision", avg.Vision).
		Dur("update", avg.Update).
		Dur("laps", avg.Laps).
		Dur("display", avg.Display).
		Dur("copydown", avg.CopyDown).
		Dur("total", avg.Total).
		Msg("Frame timing summary")
}

// Close flushes and closes the output. The manager is off afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return nil
	}
	err := m.out.close()
	m.out = nil
	return err
}

// FramePoint converts a frame timing into a point tagged with its run.
// Durations are written in microseconds.
func FramePoint(f core.FrameTiming) *influxdb2_write.Point {
	fields := map[string]any{"frame": int64(f.Frame)}
	for name, d := range stages(f) {
		fields[name] = d.Microseconds()
	}
	return influxdb2.NewPoint(Measurement, map[string]string{"run": fmt.Sprint(f.RunID)}, fields, f.Time)
}

func stages(f core.FrameTiming) map[string]time.Duration {
	return map[string]time.Duration{
		"vision":   f.Vision,
		"update":   f.Update,
		"laps":     f.Laps,
		"display":  f.Display,
		"copydown": f.CopyDown,
		"total":    f.Total,
	}
}

// serverWriter sends points through the non-blocking write API.
type serverWriter struct {
	client influxdb2.Client
	api    influxdb2_api.WriteAPI
}

func newServerWriter(client influxdb2.Client, cfg config.InfluxConfig, log zerolog.Logger) *serverWriter {
	api := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range api.Errors() {
			log.Error().Err(err).Str("bucket", cfg.Bucket).Msg("InfluxDB write failed")
		}
	}()
	return &serverWriter{client: client, api: api}
}

func (w *serverWriter) write(p *influxdb2_write.Point) error {
	w.api.WritePoint(p)
	return nil
}

func (w *serverWriter) close() error {
	w.api.Flush()
	w.client.Close()
	return nil
}

func (w *serverWriter) mode() string { return ModeServer }

// backupWriter appends line protocol to a gzip file.
type backupWriter struct {
	file *os.File
	gz   *gzip.Writer
}

func openBackup(path string) (*backupWriter, error) {
	if path == "" {
		return nil, errors.New("influx backup path not set")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open influx backup file: %w", err)
	}
	return &backupWriter{file: f, gz: gzip.NewWriter(f)}, nil
}

func (w *backupWriter) write(p *influxdb2_write.Point) error {
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := w.gz.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write influx backup: %w", err)
	}
	return nil
}

func (w *backupWriter) close() error {
	return errors.Join(w.gz.Close(), w.file.Close())
}

func (w *backupWriter) mode() string { return ModeBackup }

// summary accumulates stage durations over SummaryEvery frames.
type summary struct {
	n   int
	sum core.FrameTiming
}

// add returns the average and true when a window completes.
func (s *summary) add(f core.FrameTiming) (core.FrameTiming, bool) {
	s.n++
	s.sum.Vision += f.Vision
	s.sum.Update += f.Update
	s.sum.Laps += f.Laps
	s.sum.Display += f.Display
	s.sum.CopyDown += f.CopyDown
	s.sum.Total += f.Total
	if s.n < SummaryEvery {
		return core.FrameTiming{}, false
	}

	n := time.Duration(s.n)
	avg := core.FrameTiming{
		RunID:    f.RunID,
		Frame:    f.Frame,
		Time:     f.Time,
		Vision:   s.sum.Vision / n,
		Update:   s.sum.Update / n,
		Laps:     s.sum.Laps / n,
		Display:  s.sum.Display / n,
		CopyDown: s.sum.CopyDown / n,
		Total:    s.sum.Total / n,
	}
	*s = summary{}
	return avg, true
}
