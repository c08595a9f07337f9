// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
)

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock compass that sweeps slowly around a base
// heading with some sensor wobble.
func NewMockSource() Source {
	return &mockSource{start: time.Now(), now: time.Now}
}

func (m *mockSource) Next() (float64, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	return geo.NormalizeDegrees(elapsed*3 + 4*math.Sin(elapsed*5)), nil
}
