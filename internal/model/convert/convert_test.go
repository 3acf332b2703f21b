package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

func TestCoreToRun(t *testing.T) {
	start := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	run := core.Run{
		ID:        4,
		MapName:   "map_oval",
		StartTime: start,
		Track:     core.Track{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 30, Y: 40}},
		Cars: []core.CarSelection{
			{ID: "Car1", Colour: "red", Kind: core.KindCar, Strategy: "follow-waypoints"},
		},
	}

	row, err := CoreToRun(run)
	require.NoError(t, err)

	assert.Equal(t, uint(4), row.ID)
	assert.Equal(t, "map_oval", row.MapName)
	assert.Equal(t, start, row.StartTime)
	assert.InDelta(t, 120.0, row.TrackLength, 1e-9)
	assert.JSONEq(t, `[{"id":"Car1","colour":"red","kind":"car","strategy":"follow-waypoints"}]`, string(row.Cars))

	back, err := RunToCore(row)
	require.NoError(t, err)
	assert.Equal(t, run, back)
}

func TestCoreToRun_NoCars(t *testing.T) {
	row, err := CoreToRun(core.Run{MapName: "map_user"})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(row.Cars))
	assert.Zero(t, row.TrackLength)
}

func TestApplyResult(t *testing.T) {
	row, err := CoreToRun(core.Run{MapName: "map_oval"})
	require.NoError(t, err)

	end := time.Date(2024, 6, 1, 14, 5, 0, 0, time.UTC)
	ApplyResult(&row, core.RunResult{
		EndTime: end,
		Reason:  "race complete",
		Laps:    []time.Duration{0, 12 * time.Second, 21500 * time.Millisecond, 33 * time.Second},
	})

	assert.True(t, row.EndTime.Valid)
	assert.Equal(t, end, row.EndTime.Time)
	assert.Equal(t, "race complete", row.EndReason)
	assert.Equal(t, 3, row.LapCount)
	require.True(t, row.BestLapMs.Valid)
	assert.InDelta(t, 9500.0, row.BestLapMs.Float64, 1e-9)
}

func TestApplyResult_OnlyLapZero(t *testing.T) {
	row, err := CoreToRun(core.Run{})
	require.NoError(t, err)

	ApplyResult(&row, core.RunResult{Reason: "quit", Laps: []time.Duration{0}})

	assert.False(t, row.EndTime.Valid)
	assert.Equal(t, 0, row.LapCount)
	assert.False(t, row.BestLapMs.Valid)
}

func TestCoreToLap(t *testing.T) {
	at := time.Date(2024, 6, 1, 14, 0, 12, 0, time.UTC)
	lap := CoreToLap(core.Lap{RunID: 2, Number: 1, Elapsed: 12250 * time.Millisecond, Time: at})

	assert.Equal(t, uint(2), lap.RunID)
	assert.Equal(t, 1, lap.Number)
	assert.InDelta(t, 12250.0, lap.ElapsedMs, 1e-9)
	assert.Equal(t, at, lap.Time)
}

func TestCoreToFrameTiming(t *testing.T) {
	ft := CoreToFrameTiming(core.FrameTiming{
		RunID:    2,
		Frame:    17,
		Vision:   3 * time.Millisecond,
		Update:   20 * time.Microsecond,
		Laps:     time.Microsecond,
		Display:  4 * time.Millisecond,
		CopyDown: 50 * time.Microsecond,
		Total:    7071 * time.Microsecond,
	})

	assert.Equal(t, uint(17), ft.Frame)
	assert.Equal(t, int64(3000), ft.VisionUs)
	assert.Equal(t, int64(20), ft.UpdateUs)
	assert.Equal(t, int64(1), ft.LapsUs)
	assert.Equal(t, int64(4000), ft.DisplayUs)
	assert.Equal(t, int64(50), ft.CopyDownUs)
	assert.Equal(t, int64(7071), ft.TotalUs)
}
