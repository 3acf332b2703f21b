package geo

import (
	"fmt"

	"github.com/tabletop-racing/racecontrol/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// LoopLineString closes a track into a ring-shaped line string. Tracks with
// fewer than two waypoints produce an empty line string.
func LoopLineString(track core.Track) geom.LineString {
	if len(track) < 2 {
		return geom.LineString{}
	}

	flat := make([]float64, 0, (len(track)+1)*2)
	for _, wp := range track {
		flat = append(flat, wp.X, wp.Y)
	}
	flat = append(flat, track[0].X, track[0].Y)

	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

// LoopLength is the length of one lap of the track in display pixels.
func LoopLength(track core.Track) float64 {
	return LoopLineString(track).Length()
}

// TrackToWKT encodes a track as an open WKT LINESTRING, preserving order.
func TrackToWKT(track core.Track) string {
	if len(track) == 0 {
		return geom.LineString{}.AsText()
	}
	flat := make([]float64, 0, len(track)*2)
	for _, wp := range track {
		flat = append(flat, wp.X, wp.Y)
	}
	if len(track) == 1 {
		return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: track[0].X, Y: track[0].Y}, Type: geom.DimXY}).AsText()
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)).AsText()
}

// TrackFromWKT decodes a track written by TrackToWKT.
func TrackFromWKT(wkt string) (core.Track, error) {
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse track WKT: %w", err)
	}

	switch g.Type() {
	case geom.TypePoint:
		xy, ok := g.MustAsPoint().XY()
		if !ok {
			return core.Track{}, nil
		}
		return core.Track{{X: xy.X, Y: xy.Y}}, nil
	case geom.TypeLineString:
		seq := g.MustAsLineString().Coordinates()
		track := make(core.Track, seq.Length())
		for i := range track {
			xy := seq.GetXY(i)
			track[i] = core.Waypoint{X: xy.X, Y: xy.Y}
		}
		return track, nil
	default:
		return nil, fmt.Errorf("unexpected track geometry type %s", g.Type())
	}
}
