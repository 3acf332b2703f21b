package track

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

var display = core.Dimensions{Width: 1024, Height: 728}

func writeMap(t *testing.T, dir, name string, w, h int, waypoints string) {
	t.Helper()
	folder := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(folder, 0755))

	f, err := os.Create(filepath.Join(folder, name+".png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())

	if waypoints != "" {
		require.NoError(t, os.WriteFile(filepath.Join(folder, "waypoints.txt"), []byte(waypoints), 0644))
	}
}

func TestParseWaypoints(t *testing.T) {
	got, err := ParseWaypoints(strings.NewReader("10 20\n\n30 40 extra\n"))
	require.NoError(t, err)
	assert.Equal(t, core.Track{{X: 10, Y: 20}, {X: 30, Y: 40}}, got)
}

func TestParseWaypoints_Invalid(t *testing.T) {
	_, err := ParseWaypoints(strings.NewReader("10\n"))
	require.Error(t, err)

	_, err = ParseWaypoints(strings.NewReader("a 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestRescale_Truncates(t *testing.T) {
	got := Rescale(core.Track{{X: 100, Y: 100}, {X: 3, Y: 3}},
		core.Dimensions{Width: 512, Height: 364}, display)
	assert.Equal(t, core.Track{{X: 200, Y: 200}, {X: 6, Y: 6}}, got)

	got = Rescale(core.Track{{X: 1, Y: 1}}, core.Dimensions{Width: 3, Height: 3}, core.Dimensions{Width: 4, Height: 5})
	assert.Equal(t, core.Track{{X: 1, Y: 1}}, got)
}

func TestLoadMaps(t *testing.T) {
	dir := t.TempDir()
	writeMap(t, dir, "map_oval", 512, 364, "100 100\n200 50\n")
	writeMap(t, dir, core.UserMapName, 1024, 728, "")
	writeMap(t, dir, "map_noway", 100, 100, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0644))

	maps, err := LoadMaps(dir, display)
	require.NoError(t, err)
	require.Len(t, maps, 2)

	oval, ok := Find(maps, "map_oval")
	require.True(t, ok)
	assert.Equal(t, core.Track{{X: 200, Y: 200}, {X: 400, Y: 100}}, oval.Waypoints)
	assert.Equal(t, display, oval.Dimensions)

	user, ok := Find(maps, core.UserMapName)
	require.True(t, ok)
	assert.Empty(t, user.Waypoints)

	_, ok = Find(maps, "map_noway")
	assert.False(t, ok)
}

func TestLoadMaps_Empty(t *testing.T) {
	_, err := LoadMaps(t.TempDir(), display)
	require.Error(t, err)

	_, err = LoadMaps(filepath.Join(t.TempDir(), "missing"), display)
	require.Error(t, err)
}
