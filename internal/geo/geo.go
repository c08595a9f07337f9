// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geo holds the spherical geometry used by the tracker: the forward
// geodesic (destination point), great-circle distance and initial bearing,
// and projection of a point onto a polyline segment.
//
// All functions are total over finite input. Latitude/longitude range
// validation is the caller's job.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadius is the default sphere radius in metres (WGS-84 equatorial).
const EarthRadius = 6378137.0

// Coordinate is an immutable latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the coordinate as "lat, lng" with five decimals, the same
// text the reverse geocoder falls back to.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Lat, c.Lng)
}

// ParseCoordinate parses "lat,lng" (whitespace around parts is ignored).
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: want \"lat,lng\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	return Coordinate{Lat: lat, Lng: lng}, nil
}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// NormalizeDegrees wraps an angle into [0,360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// -1e-15 + 360 rounds to 360 in float64
	if d >= 360 {
		d = 0
	}
	return d
}

// Projector computes positions on a sphere of a fixed radius.
// The zero value is not usable; use NewProjector or Default.
type Projector struct {
	radius float64
}

// NewProjector returns a projector for a sphere of the given radius in metres.
// A non-positive radius falls back to EarthRadius.
func NewProjector(radius float64) Projector {
	if radius <= 0 {
		radius = EarthRadius
	}
	return Projector{radius: radius}
}

// Default is the projector on the EarthRadius sphere.
var Default = NewProjector(EarthRadius)

// Radius returns the sphere radius in metres.
func (p Projector) Radius() float64 { return p.radius }

// Destination returns the point reached from start after travelling
// distance metres along the great circle with the given initial bearing
// (degrees clockwise from north).
func (p Projector) Destination(start Coordinate, distance, bearing float64) Coordinate {
	lat1 := toRad(start.Lat)
	lon1 := toRad(start.Lng)
	brg := toRad(bearing)
	ang := distance / p.radius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) +
		math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Coordinate{Lat: toDeg(lat2), Lng: toDeg(lon2)}
}

// Distance is the haversine great-circle distance in metres.
func (p Projector) Distance(a, b Coordinate) float64 {
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	dPhi := toRad(b.Lat - a.Lat)
	dLambda := toRad(b.Lng - a.Lng)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return p.radius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing is the initial great-circle bearing from a to b in [0,360).
func (p Projector) Bearing(a, b Coordinate) float64 {
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	dLambda := toRad(b.Lng - a.Lng)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return NormalizeDegrees(toDeg(math.Atan2(y, x)))
}

// Destination projects on the default sphere.
func Destination(start Coordinate, distance, bearing float64) Coordinate {
	return Default.Destination(start, distance, bearing)
}

// Distance measures on the default sphere.
func Distance(a, b Coordinate) float64 { return Default.Distance(a, b) }

// Bearing measures on the default sphere.
func Bearing(a, b Coordinate) float64 { return Default.Bearing(a, b) }
