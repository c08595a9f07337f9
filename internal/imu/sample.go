package imu

import (
	"math"
	"time"
)

// Sample is one accelerometer reading including gravity, in m/s².
// Axes are pointers because some platforms deliver null axes; such samples
// are dropped by the step detector.
type Sample struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`

	// Time is when the sample was taken. A zero Time means "now" to
	// whoever stamps it on arrival.
	Time time.Time `json:"time"`
}

// NewSample builds a complete sample.
func NewSample(x, y, z float64, at time.Time) Sample {
	return Sample{X: &x, Y: &y, Z: &z, Time: at}
}

// Complete reports whether all three axes are present.
func (s Sample) Complete() bool {
	return s.X != nil && s.Y != nil && s.Z != nil
}

// Magnitude returns |a|. ok is false if any axis is missing.
func (s Sample) Magnitude() (mag float64, ok bool) {
	if !s.Complete() {
		return 0, false
	}
	x, y, z := *s.X, *s.Y, *s.Z
	return math.Sqrt(x*x + y*y + z*z), true
}

// SampleSource is anything that can provide acceleration samples over time.
type SampleSource interface {
	NextSample() (Sample, error)
}
