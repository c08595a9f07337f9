package imu

import (
	"math"
	"time"
)

// Step detector defaults.
const (
	DefaultGravity         = 9.8
	DefaultMotionThreshold = 1.2
	DefaultDebounce        = 500 * time.Millisecond
)

// StepConfig holds the fixed detector tuning. Values are not adapted at run time.
type StepConfig struct {
	Gravity         float64       // m/s²
	MotionThreshold float64       // minimum |‖a‖ - g| to count as a step
	Debounce        time.Duration // minimum spacing of accepted steps
}

// DefaultStepConfig returns the documented defaults.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		Gravity:         DefaultGravity,
		MotionThreshold: DefaultMotionThreshold,
		Debounce:        DefaultDebounce,
	}
}

// StepDetector turns an acceleration stream into debounced step events.
// It owns the last-step timestamp and is not safe for concurrent use.
type StepDetector struct {
	cfg      StepConfig
	lastStep time.Time
	hasStep  bool
}

// NewStepDetector returns a detector with the given tuning.
func NewStepDetector(cfg StepConfig) *StepDetector {
	return &StepDetector{cfg: cfg}
}

// Feed processes one sample and reports whether it produced a step.
// Incomplete samples are ignored without touching state.
func (d *StepDetector) Feed(s Sample) bool {
	mag, ok := s.Magnitude()
	if !ok {
		return false
	}
	if math.Abs(mag-d.cfg.Gravity) <= d.cfg.MotionThreshold {
		return false
	}
	if d.hasStep && s.Time.Sub(d.lastStep) < d.cfg.Debounce {
		return false
	}
	d.lastStep = s.Time
	d.hasStep = true
	return true
}

// LastStep returns the time of the last accepted step.
func (d *StepDetector) LastStep() (time.Time, bool) {
	return d.lastStep, d.hasStep
}

// Reset forgets the last accepted step.
func (d *StepDetector) Reset() {
	d.lastStep = time.Time{}
	d.hasStep = false
}
