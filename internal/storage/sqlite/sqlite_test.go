package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/internal/database"
	"github.com/tabletop-racing/racecontrol/internal/model"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

func testRun() *core.Run {
	return &core.Run{
		MapName:   "map_oval",
		StartTime: time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC),
		Track:     core.Track{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}},
	}
}

func TestEndRun_DumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	b, err := New(Config{DumpPath: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	run := testRun()
	require.NoError(t, b.StartRun(run))
	require.NoError(t, b.RecordLap(&core.Lap{RunID: run.ID, Number: 0}))
	require.NoError(t, b.EndRun(&core.RunResult{RunID: run.ID, EndTime: time.Now(), Reason: "quit"}))

	assert.FileExists(t, path)

	disk, err := database.OpenSQLite(path)
	require.NoError(t, err)
	var laps int64
	require.NoError(t, disk.Model(&model.Lap{}).Count(&laps).Error)
	assert.Equal(t, int64(1), laps)

	var row model.Run
	require.NoError(t, disk.First(&row, run.ID).Error)
	assert.Equal(t, "quit", row.EndReason)
}

func TestNoDumpPath(t *testing.T) {
	b, err := New(Config{DumpInterval: time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	run := testRun()
	require.NoError(t, b.StartRun(run))
	require.NoError(t, b.EndRun(&core.RunResult{RunID: run.ID}))
	assert.NoError(t, b.Close())
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.StartRun(testRun()))

	assert.Eventually(t, func() bool {
		return fileExists(path)
	}, time.Second, 5*time.Millisecond)
}

func TestClose_Twice(t *testing.T) {
	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
