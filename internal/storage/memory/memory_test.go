package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/geo"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

var start = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func startRun(t *testing.T, b *Backend) *core.Run {
	t.Helper()
	run := &core.Run{
		MapName:   "map oval",
		StartTime: start,
		Track:     core.Track{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 30, Y: 40}},
		Cars:      []core.CarSelection{{ID: "Car1", Kind: core.KindTruck, Strategy: "manual"}},
	}
	require.NoError(t, b.StartRun(run))
	return run
}

func TestStartRun_AssignsIncreasingIDs(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	first := startRun(t, b)
	second := startRun(t, b)

	assert.Equal(t, uint(1), first.ID)
	assert.Equal(t, uint(2), second.ID)
}

func TestRecord_NoRun(t *testing.T) {
	b := New(config.MemoryConfig{})

	assert.ErrorIs(t, b.RecordLap(&core.Lap{}), ErrNoRun)
	assert.ErrorIs(t, b.RecordFrame(&core.FrameTiming{}), ErrNoRun)
	assert.ErrorIs(t, b.EndRun(&core.RunResult{}), ErrNoRun)
}

func TestEndRun_ExportsJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	run := startRun(t, b)

	laps := []time.Duration{0, 12 * time.Second, 21 * time.Second}
	for i, elapsed := range laps {
		require.NoError(t, b.RecordLap(&core.Lap{RunID: run.ID, Number: i, Elapsed: elapsed}))
	}
	require.NoError(t, b.RecordFrame(&core.FrameTiming{
		RunID: run.ID, Frame: 7, Vision: 2 * time.Millisecond, Total: 5 * time.Millisecond,
	}))

	require.NoError(t, b.EndRun(&core.RunResult{
		RunID:   run.ID,
		EndTime: start.Add(time.Minute),
		Reason:  "race complete",
		Laps:    laps,
	}))

	path := b.LastExportPath()
	assert.Equal(t, filepath.Join(dir, "map_oval_20240115_103000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var export RunExport
	require.NoError(t, json.Unmarshal(data, &export))

	assert.Equal(t, "map oval", export.MapName)
	assert.Equal(t, "race complete", export.EndReason)
	assert.Equal(t, geo.TrackToWKT(run.Track), export.Track)
	assert.InDelta(t, 120.0, export.TrackLength, 1e-9)
	assert.Equal(t, run.Cars, export.Cars)
	assert.Len(t, export.Laps, 3)
	assert.Equal(t, []float64{12000, 9000}, export.LapTimesMs)
	require.NotNil(t, export.BestLapMs)
	assert.InDelta(t, 9000.0, *export.BestLapMs, 1e-9)
	assert.Equal(t, [][]int64{{7, 2000, 0, 0, 0, 0, 5000}}, export.Frames)

	// The run is closed.
	assert.ErrorIs(t, b.RecordLap(&core.Lap{}), ErrNoRun)
}

func TestEndRun_Gzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	run := startRun(t, b)

	require.NoError(t, b.EndRun(&core.RunResult{RunID: run.ID, Reason: "quit"}))

	path := b.LastExportPath()
	assert.Equal(t, ".gz", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export RunExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, "quit", export.EndReason)
	assert.Empty(t, export.LapTimesMs)
	assert.Nil(t, export.BestLapMs)
}

func TestEndRun_WrongRun(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	run := startRun(t, b)

	assert.ErrorIs(t, b.EndRun(&core.RunResult{RunID: run.ID + 1}), ErrNoRun)
	assert.Empty(t, b.LastExportPath())
}
