// Package roster reads the car roster file.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Column names of the roster file.
const (
	ColumnID     = "Bluetooth SSID"
	ColumnColour = "Colour"
)

// Load reads the roster at path.
func Load(path string) ([]core.CarInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a roster with a header row naming at least the ID and colour
// columns, in any order. Rows with an empty ID are skipped.
func Parse(r io.Reader) ([]core.CarInfo, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("roster is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading roster header: %w", err)
	}

	idCol, colourCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case ColumnID:
			idCol = i
		case ColumnColour:
			colourCol = i
		}
	}
	if idCol < 0 || colourCol < 0 {
		return nil, fmt.Errorf("roster header must contain %q and %q", ColumnID, ColumnColour)
	}

	var cars []core.CarInfo
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading roster: %w", err)
		}
		if idCol >= len(rec) || strings.TrimSpace(rec[idCol]) == "" {
			continue
		}
		car := core.CarInfo{ID: strings.TrimSpace(rec[idCol])}
		if colourCol < len(rec) {
			car.Colour = strings.TrimSpace(rec[colourCol])
		}
		cars = append(cars, car)
	}
	return cars, nil
}

// Find returns the roster entry with the given ID.
func Find(cars []core.CarInfo, id string) (core.CarInfo, bool) {
	for _, c := range cars {
		if c.ID == id {
			return c, true
		}
	}
	return core.CarInfo{}, false
}
