package gps

import (
	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
)

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56.0000"
	Date       string  `json:"date"`        // e.g. "06/12/25"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void)
	Quality    string  `json:"quality,omitempty"`
	Satellites int64   `json:"satellites,omitempty"`
	HDOP       float64 `json:"hdop,omitempty"`
}

// Valid reports whether the receiver considered the fix usable.
func (f Fix) Valid() bool {
	return f.Validity == "A" && !(f.Latitude == 0 && f.Longitude == 0)
}

// Coordinate returns the fix position.
func (f Fix) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: f.Latitude, Lng: f.Longitude}
}
