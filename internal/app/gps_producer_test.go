package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pedestrian_tracker/internal/gps"
)

func TestStreamFixes(t *testing.T) {
	input := strings.Join([]string{
		"garbage from boot",
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"",
		"$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D",
	}, "\r\n")

	var got []gps.Fix
	err := streamFixes(strings.NewReader(input), func(f gps.Fix) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2, "bad checksum is skipped")

	assert.Equal(t, "A", got[0].Validity)
	assert.Equal(t, int64(8), got[0].Satellites)
	assert.InDelta(t, 48.1173, got[0].Latitude, 1e-6)
	assert.Equal(t, "V", got[1].Validity)
	assert.False(t, got[1].Valid())
}

func TestStreamFixesPublishErrorContinues(t *testing.T) {
	input := "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\n" +
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\n"

	calls := 0
	err := streamFixes(strings.NewReader(input), func(gps.Fix) error {
		calls++
		return errors.New("broker gone")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
