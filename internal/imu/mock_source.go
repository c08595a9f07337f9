// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"time"
)

type mockSource struct {
	start    time.Time
	now      func() time.Time
	cadence  float64 // steps per second
	peak     float64 // m/s² swing around gravity at heel strike
	baseline float64
}

// NewMockSource returns an accelerometer that looks like a walker at
// roughly 1.8 steps/s with the phone held flat.
func NewMockSource() SampleSource {
	return &mockSource{
		start:    time.Now(),
		now:      time.Now,
		cadence:  1.8,
		peak:     3.0,
		baseline: DefaultGravity,
	}
}

func (m *mockSource) NextSample() (Sample, error) {
	t := m.now()
	elapsed := t.Sub(m.start).Seconds()

	// a sharp bump once per step, mostly on the vertical axis
	phase := math.Mod(elapsed*m.cadence, 1)
	bump := m.peak * math.Exp(-math.Pow((phase-0.5)/0.08, 2))

	x := 0.3 * math.Sin(elapsed*2*math.Pi*m.cadence/2)
	y := 0.2 * math.Cos(elapsed*2*math.Pi*m.cadence)
	z := m.baseline + bump
	return NewSample(x, y, z, t), nil
}
