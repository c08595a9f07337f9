// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
)

// DefaultSmoothingFactor is the fraction of the remaining angular error
// removed on every tick.
const DefaultSmoothingFactor = 0.05

// State is the estimator's heading state. All angles are in [0,360).
type State struct {
	RawHeading        float64 `json:"raw_heading"`
	CalibrationOffset float64 `json:"calibration_offset"`
	ManualRotation    float64 `json:"manual_rotation"`
	SmoothedHeading   float64 `json:"smoothed_heading"`
	Locked            bool    `json:"locked"`
}

// Source is anything that can provide raw compass angles over time:
// a mock source, an MQTT subscription, a replay file.
type Source interface {
	Next() (float64, error)
}

// SmoothHeading moves current toward target by factor of the signed shortest
// angular difference, so 350→10 passes through 0 and never through 180.
// The result is in [0,360).
func SmoothHeading(current, target, factor float64) float64 {
	delta := ShortestDelta(current, target)
	return geo.NormalizeDegrees(current + delta*factor)
}

// ShortestDelta is target-current wrapped into [-180,180].
func ShortestDelta(current, target float64) float64 {
	delta := geo.NormalizeDegrees(target) - geo.NormalizeDegrees(current)
	if delta > 180 {
		delta -= 360
	}
	if delta < -180 {
		delta += 360
	}
	return delta
}

// Estimator owns the heading state. It is not safe for concurrent use; the
// navigation loop calls it from a single goroutine.
type Estimator struct {
	factor float64
	state  State
}

// NewEstimator returns an estimator with the given smoothing factor.
// Factors outside (0,1] fall back to DefaultSmoothingFactor.
func NewEstimator(factor float64) *Estimator {
	if factor <= 0 || factor > 1 {
		factor = DefaultSmoothingFactor
	}
	return &Estimator{factor: factor}
}

// SetRaw records the latest compass angle. Smoothing happens on Tick.
func (e *Estimator) SetRaw(deg float64) {
	e.state.RawHeading = geo.NormalizeDegrees(deg)
}

// Tick advances the smoothed heading one step toward raw+calibration.
func (e *Estimator) Tick() {
	target := geo.NormalizeDegrees(e.state.RawHeading + e.state.CalibrationOffset)
	e.state.SmoothedHeading = SmoothHeading(e.state.SmoothedHeading, target, e.factor)
}

// Calibrate makes the current raw heading read as 0, assuming the user is
// facing the intended forward direction.
func (e *Estimator) Calibrate() {
	e.state.CalibrationOffset = geo.NormalizeDegrees(-e.state.RawHeading)
}

// Rotate adds a manual rotation delta (e.g. a map twist gesture).
func (e *Estimator) Rotate(delta float64) {
	e.state.ManualRotation = geo.NormalizeDegrees(e.state.ManualRotation + delta)
}

// SetLocked engages or releases the course lock. While locked the bearing
// is the manual rotation alone. Engaging folds the live bearing into the
// manual rotation and re-zeroes the compass path so neither edge jumps.
func (e *Estimator) SetLocked(locked bool) {
	if locked == e.state.Locked {
		return
	}
	if locked {
		e.state.ManualRotation = e.Bearing()
		e.state.CalibrationOffset = geo.NormalizeDegrees(-e.state.RawHeading)
		e.state.SmoothedHeading = 0
	}
	e.state.Locked = locked
}

// Bearing is the composed heading used for rendering and free-mode movement.
func (e *Estimator) Bearing() float64 {
	if e.state.Locked {
		return e.state.ManualRotation
	}
	return geo.NormalizeDegrees(e.state.SmoothedHeading + e.state.ManualRotation)
}

// State returns a copy of the heading state.
func (e *Estimator) State() State { return e.state }

// Reset clears calibration, rotation, lock and smoothing. The latest raw
// heading is kept since it reflects the sensor, not user intent.
func (e *Estimator) Reset() {
	e.state = State{RawHeading: e.state.RawHeading}
}
