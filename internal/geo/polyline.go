// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geo

import "math"

// ProjectOntoSegment returns the point of segment a→b closest to p and the
// segment parameter t in [0,1].
//
// The projection is done in a local equirectangular frame centred on the
// segment (longitude scaled by the cosine of the mean latitude). At walking
// scale this is indistinguishable from the spherical answer.
func ProjectOntoSegment(p, a, b Coordinate) (Coordinate, float64) {
	k := math.Cos(toRad((a.Lat + b.Lat) / 2))

	abx := (b.Lng - a.Lng) * k
	aby := b.Lat - a.Lat
	apx := (p.Lng - a.Lng) * k
	apy := p.Lat - a.Lat

	den := abx*abx + aby*aby
	if den == 0 {
		return a, 0
	}

	t := (apx*abx + apy*aby) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return Coordinate{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}, t
}

// Length is the total great-circle length of a polyline in metres.
func (p Projector) Length(line []Coordinate) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += p.Distance(line[i-1], line[i])
	}
	return total
}

// Reverse returns a reversed copy of line.
func Reverse(line []Coordinate) []Coordinate {
	out := make([]Coordinate, len(line))
	for i, c := range line {
		out[len(line)-1-i] = c
	}
	return out
}

// Clone returns a copy of line; nil stays nil.
func Clone(line []Coordinate) []Coordinate {
	if line == nil {
		return nil
	}
	out := make([]Coordinate, len(line))
	copy(out, line)
	return out
}
