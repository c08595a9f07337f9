package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string `validate:"required"`
	MQTTClientIDTracker string `validate:"required"`
	MQTTClientIDGPS     string `validate:"required"`
	MQTTClientIDSensors string `validate:"required"`
	MQTTClientIDWeb     string `validate:"required"`
	MQTTClientIDConsole string `validate:"required"`

	// Topics
	TopicCompass  string `validate:"required"`
	TopicAccel    string `validate:"required"`
	TopicGPS      string `validate:"required"`
	TopicCommand  string `validate:"required"`
	TopicSnapshot string `validate:"required"`
	TopicEvents   string `validate:"required"`

	// GPS
	GPSSerialPort string `validate:"required"`
	GPSBaudRate   int    `validate:"gt=0"`

	// Tracking
	TickIntervalMS   int     `validate:"gt=0"`
	SmoothingFactor  float64 `validate:"gt=0,lte=1"`
	Gravity          float64 `validate:"gt=0"`
	MotionThreshold  float64 `validate:"gt=0"`
	StepDebounceMS   int     `validate:"gte=0"`
	StepLengthM      float64 `validate:"gt=0"`
	EarthRadiusM     float64 `validate:"gt=0"`
	DefaultLat       float64 `validate:"gte=-90,lte=90"`
	DefaultLon       float64 `validate:"gte=-180,lte=180"`
	DropStaleResults bool

	// OSM services
	GeocoderURL   string `validate:"required,url"`
	RouterURL     string `validate:"required,url"`
	HTTPTimeoutMS int    `validate:"gt=0"`
	UserAgent     string `validate:"required"`
	Language      string

	// Web Server
	WebServerPort int `validate:"gt=0,lte=65535"`

	// Storage
	SessionDBPath string `validate:"required"`

	// Sensor producer
	SensorSampleIntervalMS int `validate:"gt=0"`
}

// Default returns a configuration with every key at its documented default.
func Default() *Config {
	return &Config{
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDTracker: "pdr-tracker",
		MQTTClientIDGPS:     "pdr-gps-producer",
		MQTTClientIDSensors: "pdr-sensor-producer",
		MQTTClientIDWeb:     "pdr-web",
		MQTTClientIDConsole: "pdr-console",

		TopicCompass:  "pdr/sensors/compass",
		TopicAccel:    "pdr/sensors/accel",
		TopicGPS:      "pdr/gps",
		TopicCommand:  "pdr/command",
		TopicSnapshot: "pdr/snapshot",
		TopicEvents:   "pdr/events",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		TickIntervalMS:   16,
		SmoothingFactor:  0.05,
		Gravity:          imu.DefaultGravity,
		MotionThreshold:  imu.DefaultMotionThreshold,
		StepDebounceMS:   int(imu.DefaultDebounce / time.Millisecond),
		StepLengthM:      nav.DefaultStepLength,
		EarthRadiusM:     geo.EarthRadius,
		DefaultLat:       nav.DefaultPosition.Lat,
		DefaultLon:       nav.DefaultPosition.Lng,
		DropStaleResults: true,

		GeocoderURL:   "https://nominatim.openstreetmap.org",
		RouterURL:     "https://routing.openstreetmap.de/routed-foot",
		HTTPTimeoutMS: 10000,
		UserAgent:     "pedestrian-tracker/1.0",
		Language:      "en",

		WebServerPort: 8080,
		SessionDBPath: "sessions.db",

		SensorSampleIntervalMS: 20,
	}
}

// Package-level singleton. Other packages use InitGlobal to set it and Get to
// read it; configOnce makes repeated InitGlobal calls no-ops.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct. Keys missing
// from the file keep their defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Default.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_TRACKER":
		c.MQTTClientIDTracker = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_SENSORS":
		c.MQTTClientIDSensors = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_COMPASS":
		c.TopicCompass = value
	case "TOPIC_ACCEL":
		c.TopicAccel = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value
	case "TOPIC_SNAPSHOT":
		c.TopicSnapshot = value
	case "TOPIC_EVENTS":
		c.TopicEvents = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value)

	// Tracking
	case "TICK_INTERVAL_MS":
		c.TickIntervalMS, err = parseInt(key, value)
	case "SMOOTHING_FACTOR":
		c.SmoothingFactor, err = parseFloat(key, value)
	case "GRAVITY":
		c.Gravity, err = parseFloat(key, value)
	case "MOTION_THRESHOLD":
		c.MotionThreshold, err = parseFloat(key, value)
	case "STEP_DEBOUNCE_MS":
		c.StepDebounceMS, err = parseInt(key, value)
	case "STEP_LENGTH_M":
		c.StepLengthM, err = parseFloat(key, value)
	case "EARTH_RADIUS_M":
		c.EarthRadiusM, err = parseFloat(key, value)
	case "DEFAULT_LAT":
		c.DefaultLat, err = parseFloat(key, value)
	case "DEFAULT_LON":
		c.DefaultLon, err = parseFloat(key, value)
	case "DROP_STALE_RESULTS":
		c.DropStaleResults, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}

	// OSM services
	case "GEOCODER_URL":
		c.GeocoderURL = value
	case "ROUTER_URL":
		c.RouterURL = value
	case "HTTP_TIMEOUT_MS":
		c.HTTPTimeoutMS, err = parseInt(key, value)
	case "USER_AGENT":
		c.UserAgent = value
	case "LANGUAGE":
		c.Language = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Storage
	case "SESSION_DB_PATH":
		c.SessionDBPath = value

	case "SENSOR_SAMPLE_INTERVAL_MS":
		c.SensorSampleIntervalMS, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks field constraints declared in the struct tags.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Engine converts the tracking keys into a navigation engine configuration.
func (c *Config) Engine() nav.Config {
	return nav.Config{
		StepLength: c.StepLengthM,
		Step: imu.StepConfig{
			Gravity:         c.Gravity,
			MotionThreshold: c.MotionThreshold,
			Debounce:        time.Duration(c.StepDebounceMS) * time.Millisecond,
		},
		SmoothingFactor:  c.SmoothingFactor,
		EarthRadius:      c.EarthRadiusM,
		DefaultPosition:  geo.Coordinate{Lat: c.DefaultLat, Lng: c.DefaultLon},
		DropStaleResults: c.DropStaleResults,
		WalkingWindow:    nav.DefaultConfig().WalkingWindow,
	}
}

// TickInterval is the heading smoothing period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// HTTPTimeout bounds each geocoding or routing request.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
