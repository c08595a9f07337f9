package imu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestSampleMagnitude(t *testing.T) {
	mag, ok := NewSample(3, 4, 12, t0).Magnitude()
	require.True(t, ok)
	assert.InDelta(t, 13, mag, 1e-12)

	one := 1.0
	_, ok = Sample{X: &one, Y: nil, Z: &one}.Magnitude()
	assert.False(t, ok)
	assert.False(t, Sample{}.Complete())
}

func TestStepDetectorThreshold(t *testing.T) {
	tests := []struct {
		name string
		s    Sample
		want bool
	}{
		{"at rest", NewSample(0, 0, 9.8, at(0)), false},
		{"just under threshold", NewSample(0, 0, 10.99, at(0)), false},
		{"heel strike", NewSample(0, 0, 12.5, at(0)), true},
		{"free fall side", NewSample(0, 0, 7.0, at(0)), true},
		{"missing axis", Sample{Time: at(0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewStepDetector(DefaultStepConfig())
			assert.Equal(t, tt.want, d.Feed(tt.s))
		})
	}
}

func TestStepDetectorDebounce(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())

	assert.True(t, d.Feed(NewSample(0, 0, 12, at(0))))
	assert.False(t, d.Feed(NewSample(0, 0, 12, at(499))), "second qualifying sample inside 500ms")
	assert.True(t, d.Feed(NewSample(0, 0, 12, at(500))))
	assert.False(t, d.Feed(NewSample(0, 0, 12, at(900))))
	assert.True(t, d.Feed(NewSample(0, 0, 12, at(1200))))

	last, ok := d.LastStep()
	require.True(t, ok)
	assert.Equal(t, at(1200), last)
}

func TestStepDetectorRejectedSampleKeepsState(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	require.True(t, d.Feed(NewSample(0, 0, 12, at(0))))

	z := 12.0
	assert.False(t, d.Feed(Sample{Z: &z, Time: at(800)}))
	last, _ := d.LastStep()
	assert.Equal(t, at(0), last, "an incomplete sample must not move the debounce window")

	assert.False(t, d.Feed(NewSample(0, 0, 9.8, at(900))))
	last, _ = d.LastStep()
	assert.Equal(t, at(0), last)
}

func TestStepDetectorReset(t *testing.T) {
	d := NewStepDetector(DefaultStepConfig())
	require.True(t, d.Feed(NewSample(0, 0, 12, at(0))))
	d.Reset()
	_, ok := d.LastStep()
	assert.False(t, ok)
	assert.True(t, d.Feed(NewSample(0, 0, 12, at(10))))
}

func TestMockSourceProducesSteps(t *testing.T) {
	now := t0
	src := &mockSource{start: t0, now: func() time.Time { return now }, cadence: 1.8, peak: 3.0, baseline: DefaultGravity}
	d := NewStepDetector(DefaultStepConfig())

	steps := 0
	for i := 0; i < 500; i++ { // 10 s at 50 Hz
		now = now.Add(20 * time.Millisecond)
		s, err := src.NextSample()
		require.NoError(t, err)
		if d.Feed(s) {
			steps++
		}
	}
	assert.InDelta(t, 18, steps, 2)
}
