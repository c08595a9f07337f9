package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
)

type fixedCompass float64

func (c fixedCompass) Next() (float64, error) { return float64(c), nil }

type fixedAccel struct{}

func (fixedAccel) NextSample() (imu.Sample, error) {
	return imu.NewSample(0, 0, imu.DefaultGravity, time.Now()), nil
}

func TestProduceSensors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		headings []float64
		samples  int
	)
	done := make(chan error, 1)
	go func() {
		done <- produceSensors(ctx, time.Millisecond, fixedCompass(90), fixedAccel{},
			func(r CompassReading) error {
				mu.Lock()
				defer mu.Unlock()
				headings = append(headings, r.Heading)
				if len(headings) == 3 {
					cancel()
				}
				return nil
			},
			func(imu.Sample) error {
				mu.Lock()
				samples++
				mu.Unlock()
				return nil
			},
		)
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(headings), 3)
	assert.Equal(t, 90.0, headings[0])
	assert.GreaterOrEqual(t, samples, 3)
}
