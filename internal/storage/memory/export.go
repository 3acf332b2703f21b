package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tabletop-racing/racecontrol/internal/geo"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// RunExport is the root JSON structure of an exported run.
type RunExport struct {
	RunID       uint                `json:"runId"`
	MapName     string              `json:"mapName"`
	StartTime   time.Time           `json:"startTime"`
	EndTime     time.Time           `json:"endTime"`
	EndReason   string              `json:"endReason"`
	Track       string              `json:"track"`
	TrackLength float64             `json:"trackLength"`
	Cars        []core.CarSelection `json:"cars"`
	Laps        []LapJSON           `json:"laps"`
	LapTimesMs  []float64           `json:"lapTimesMs"`
	BestLapMs   *float64            `json:"bestLapMs,omitempty"`
	// Frames holds [frame, visionUs, updateUs, lapsUs, displayUs, copyDownUs, totalUs].
	Frames [][]int64 `json:"frames"`
}

// LapJSON is one lap boundary.
type LapJSON struct {
	Number    int     `json:"number"`
	ElapsedMs float64 `json:"elapsedMs"`
}

// exportJSON writes the run data to a JSON file, gzipped if configured.
func (b *Backend) exportJSON(result core.RunResult) error {
	export := b.buildExport(result)

	// Build filename
	mapName := strings.ReplaceAll(b.run.MapName, " ", "_")
	mapName = strings.ReplaceAll(mapName, ":", "_")
	timestamp := b.run.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", mapName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", mapName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	write := writeJSON
	if b.cfg.CompressOutput {
		write = writeGzipJSON
	}
	if err := write(outputPath, export); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport(result core.RunResult) RunExport {
	export := RunExport{
		RunID:       b.run.ID,
		MapName:     b.run.MapName,
		StartTime:   b.run.StartTime,
		EndTime:     result.EndTime,
		EndReason:   result.Reason,
		Track:       geo.TrackToWKT(b.run.Track),
		TrackLength: geo.LoopLength(b.run.Track),
		Cars:        b.run.Cars,
		Laps:        make([]LapJSON, 0, len(b.laps)),
		LapTimesMs:  make([]float64, 0),
		Frames:      make([][]int64, 0, len(b.frames)),
	}
	if export.Cars == nil {
		export.Cars = []core.CarSelection{}
	}

	for _, l := range b.laps {
		export.Laps = append(export.Laps, LapJSON{Number: l.Number, ElapsedMs: ms(l.Elapsed)})
	}

	// Lap 0 is the start marker.
	for i := 1; i < len(result.Laps); i++ {
		lap := ms(result.Laps[i] - result.Laps[i-1])
		export.LapTimesMs = append(export.LapTimesMs, lap)
		if export.BestLapMs == nil || lap < *export.BestLapMs {
			best := lap
			export.BestLapMs = &best
		}
	}

	for _, f := range b.frames {
		export.Frames = append(export.Frames, []int64{
			int64(f.Frame),
			f.Vision.Microseconds(),
			f.Update.Microseconds(),
			f.Laps.Microseconds(),
			f.Display.Microseconds(),
			f.CopyDown.Microseconds(),
			f.Total.Microseconds(),
		})
	}

	return export
}

func writeJSON(path string, data RunExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data RunExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
