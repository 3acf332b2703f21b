package track

import (
	"bufio"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// LoadMaps reads every map folder under dir. A folder holds one .png image,
// whose file name is the map name, and one .txt waypoint file in image pixels.
// Waypoints are rescaled to the display dimensions. The user-defined map needs
// no waypoint file.
func LoadMaps(dir string, display core.Dimensions) ([]core.Map, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read maps directory: %w", err)
	}

	var maps []core.Map
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m, ok, err := loadMapFolder(filepath.Join(dir, entry.Name()), display)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", entry.Name(), err)
		}
		if ok {
			maps = append(maps, m)
		}
	}

	if len(maps) == 0 {
		return nil, fmt.Errorf("no maps in %s", dir)
	}

	sort.Slice(maps, func(i, j int) bool { return maps[i].Name < maps[j].Name })
	return maps, nil
}

func loadMapFolder(folder string, display core.Dimensions) (core.Map, bool, error) {
	files, err := os.ReadDir(folder)
	if err != nil {
		return core.Map{}, false, err
	}

	var m core.Map
	var img image.Config
	var waypointFile string
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f.Name())) {
		case ".png":
			m.ImagePath = filepath.Join(folder, f.Name())
			m.Name = strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			if img, err = decodeImageConfig(m.ImagePath); err != nil {
				return core.Map{}, false, err
			}
		case ".txt":
			waypointFile = filepath.Join(folder, f.Name())
		}
	}

	if m.ImagePath == "" {
		return core.Map{}, false, nil
	}
	m.Dimensions = display

	if waypointFile == "" {
		if m.Name == core.UserMapName {
			m.Waypoints = core.Track{}
			return m, true, nil
		}
		return core.Map{}, false, nil
	}

	f, err := os.Open(waypointFile)
	if err != nil {
		return core.Map{}, false, err
	}
	defer f.Close()

	raw, err := ParseWaypoints(f)
	if err != nil {
		return core.Map{}, false, err
	}
	m.Waypoints = Rescale(raw, core.Dimensions{Width: img.Width, Height: img.Height}, display)
	return m, true, nil
}

func decodeImageConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return image.Config{}, fmt.Errorf("image %s has zero size", path)
	}
	return cfg, nil
}

// ParseWaypoints reads whitespace-delimited integer "x y" pairs, one per line.
// Blank lines are skipped; extra columns are ignored.
func ParseWaypoints(r io.Reader) (core.Track, error) {
	track := core.Track{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected x and y", line)
		}
		x, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid x %q: %w", line, fields[0], err)
		}
		y, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid y %q: %w", line, fields[1], err)
		}
		track = append(track, core.Waypoint{X: float64(x), Y: float64(y)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waypoints: %w", err)
	}
	return track, nil
}

// Rescale maps image-space waypoints onto the display, truncating to whole
// pixels.
func Rescale(track core.Track, from, to core.Dimensions) core.Track {
	xScale := float64(to.Width) / float64(from.Width)
	yScale := float64(to.Height) / float64(from.Height)

	scaled := make(core.Track, len(track))
	for i, wp := range track {
		scaled[i] = core.Waypoint{
			X: float64(int(wp.X * xScale)),
			Y: float64(int(wp.Y * yScale)),
		}
	}
	return scaled
}

// Find returns the map with the given name.
func Find(maps []core.Map, name string) (core.Map, bool) {
	for _, m := range maps {
		if m.Name == name {
			return m, true
		}
	}
	return core.Map{}, false
}
