package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 16*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
# tracker settings
MQTT_BROKER = tcp://broker:1883
TOPIC_COMMAND=walk/cmd
STEP_LENGTH_M=0.7
STEP_DEBOUNCE_MS=400
DEFAULT_LAT=48.1173
DEFAULT_LON=11.5167
DROP_STALE_RESULTS=false
WEB_SERVER_PORT=9090
`))
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "walk/cmd", cfg.TopicCommand)
	assert.Equal(t, 9090, cfg.WebServerPort)

	ec := cfg.Engine()
	assert.InDelta(t, 0.7, ec.StepLength, 1e-12)
	assert.Equal(t, 400*time.Millisecond, ec.Step.Debounce)
	assert.InDelta(t, 48.1173, ec.DefaultPosition.Lat, 1e-12)
	assert.False(t, ec.DropStaleResults)
	assert.Equal(t, nav.DefaultConfig().WalkingWindow, ec.WalkingWindow)
}

func TestDefaultEngineMatchesNavDefaults(t *testing.T) {
	assert.Equal(t, nav.DefaultConfig(), Default().Engine())
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no equals":     "MQTT_BROKER",
		"unknown key":   "SPEED_OF_LIGHT=1",
		"bad int":       "GPS_BAUD_RATE=fast",
		"bad float":     "GRAVITY=down",
		"bad bool":      "DROP_STALE_RESULTS=maybe",
		"out of range":  "SMOOTHING_FACTOR=1.5",
		"bad latitude":  "DEFAULT_LAT=91",
		"bad url":       "ROUTER_URL=not a url",
		"empty broker":  "MQTT_BROKER=",
		"negative port": "WEB_SERVER_PORT=-1",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("SESSION_DB_PATH=/tmp/walks.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/walks.db", cfg.SessionDBPath)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
