// Package convert maps run records between pkg/core and the GORM models.
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/tabletop-racing/racecontrol/internal/geo"
	"github.com/tabletop-racing/racecontrol/internal/model"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// CoreToRun converts a run to its database row. The track is stored as a
// closed loop.
func CoreToRun(r core.Run) (model.Run, error) {
	cars, err := carsToJSON(r.Cars)
	if err != nil {
		return model.Run{}, err
	}
	return model.Run{
		ID:          r.ID,
		MapName:     r.MapName,
		StartTime:   r.StartTime,
		Track:       geo.LoopLineString(r.Track),
		TrackLength: geo.LoopLength(r.Track),
		Cars:        cars,
	}, nil
}

// ApplyResult fills the closing columns of a run row.
func ApplyResult(row *model.Run, res core.RunResult) {
	row.EndTime = sql.NullTime{Time: res.EndTime, Valid: !res.EndTime.IsZero()}
	row.EndReason = res.Reason

	// Lap 0 is the start marker.
	row.LapCount = max(len(res.Laps)-1, 0)
	row.BestLapMs = sql.NullFloat64{}
	for i := 1; i < len(res.Laps); i++ {
		lap := durationMs(res.Laps[i] - res.Laps[i-1])
		if !row.BestLapMs.Valid || lap < row.BestLapMs.Float64 {
			row.BestLapMs = sql.NullFloat64{Float64: lap, Valid: true}
		}
	}
}

// CoreToLap converts a lap boundary.
func CoreToLap(l core.Lap) model.Lap {
	return model.Lap{
		RunID:     l.RunID,
		Number:    l.Number,
		ElapsedMs: durationMs(l.Elapsed),
		Time:      l.Time,
	}
}

// CoreToFrameTiming converts a frame timing record.
func CoreToFrameTiming(f core.FrameTiming) model.FrameTiming {
	return model.FrameTiming{
		RunID:      f.RunID,
		Frame:      f.Frame,
		Time:       f.Time,
		VisionUs:   f.Vision.Microseconds(),
		UpdateUs:   f.Update.Microseconds(),
		LapsUs:     f.Laps.Microseconds(),
		DisplayUs:  f.Display.Microseconds(),
		CopyDownUs: f.CopyDown.Microseconds(),
		TotalUs:    f.Total.Microseconds(),
	}
}

// RunToCore converts a stored run back, reopening the track loop.
func RunToCore(row model.Run) (core.Run, error) {
	var cars []core.CarSelection
	if len(row.Cars) > 0 {
		if err := json.Unmarshal(row.Cars, &cars); err != nil {
			return core.Run{}, fmt.Errorf("decoding cars of run %d: %w", row.ID, err)
		}
	}

	var track core.Track
	seq := row.Track.Coordinates()
	// The stored loop repeats the first waypoint at the end.
	for i := 0; i < seq.Length()-1; i++ {
		xy := seq.GetXY(i)
		track = append(track, core.Waypoint{X: xy.X, Y: xy.Y})
	}

	return core.Run{
		ID:        row.ID,
		MapName:   row.MapName,
		StartTime: row.StartTime,
		Track:     track,
		Cars:      cars,
	}, nil
}

func carsToJSON(cars []core.CarSelection) (datatypes.JSON, error) {
	if len(cars) == 0 {
		return datatypes.JSON("[]"), nil
	}
	data, err := json.Marshal(cars)
	if err != nil {
		return nil, fmt.Errorf("encoding cars: %w", err)
	}
	return datatypes.JSON(data), nil
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
