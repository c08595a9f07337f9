// Package scenario loads scripted walks from YAML and replays them through the
// navigation loop on a synthetic clock.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

// Point is a coordinate with an optional label.
type Point struct {
	Lat   float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng   float64 `yaml:"lng" validate:"gte=-180,lte=180"`
	Label string  `yaml:"label"`
}

// Coordinate drops the label.
func (p Point) Coordinate() geo.Coordinate { return geo.Coordinate{Lat: p.Lat, Lng: p.Lng} }

// Accel is one accelerometer reading; missing axes make the sample invalid.
type Accel struct {
	X *float64 `yaml:"x"`
	Y *float64 `yaml:"y"`
	Z *float64 `yaml:"z"`
}

// Steps expands into Count step impulses IntervalMS apart, the first at the
// event time.
type Steps struct {
	Count      int     `yaml:"count" validate:"gt=0"`
	IntervalMS int     `yaml:"interval_ms" validate:"gt=0"`
	Peak       float64 `yaml:"peak" validate:"gte=0"`
}

// Command mirrors nav.Command in YAML form.
type Command struct {
	Type   string   `yaml:"type" validate:"required"`
	Lat    *float64 `yaml:"lat"`
	Lng    *float64 `yaml:"lng"`
	Label  string   `yaml:"label"`
	Text   string   `yaml:"text"`
	From   string   `yaml:"from"`
	To     string   `yaml:"to"`
	Delta  float64  `yaml:"delta"`
	Locked bool     `yaml:"locked"`

	// ExpectError marks commands that are supposed to be rejected.
	ExpectError bool `yaml:"expect_error"`
}

func (c Command) toNav() nav.Command {
	return nav.Command{
		Type:   c.Type,
		Lat:    c.Lat,
		Lng:    c.Lng,
		Label:  c.Label,
		Text:   c.Text,
		From:   c.From,
		To:     c.To,
		Delta:  c.Delta,
		Locked: c.Locked,
	}
}

// Event is one timed input. Exactly one of the payload fields is set.
type Event struct {
	AtMS    int      `yaml:"at_ms" validate:"gte=0"`
	Compass *float64 `yaml:"compass"`
	Accel   *Accel   `yaml:"accel"`
	Fix     *Point   `yaml:"fix"`
	Steps   *Steps   `yaml:"steps"`
	Command *Command `yaml:"command"`
}

func (e Event) payloads() int {
	n := 0
	if e.Compass != nil {
		n++
	}
	if e.Accel != nil {
		n++
	}
	if e.Fix != nil {
		n++
	}
	if e.Steps != nil {
		n++
	}
	if e.Command != nil {
		n++
	}
	return n
}

// Expect is checked against the final snapshot.
type Expect struct {
	Mode         string   `yaml:"mode" validate:"omitempty,oneof=PLANNING TRACKING BACKTRACK"`
	Steps        *int     `yaml:"steps" validate:"omitempty,gte=0"`
	WalkedPath   *int     `yaml:"walked_points" validate:"omitempty,gte=0"`
	Position     *Point   `yaml:"position"`
	Heading      *float64 `yaml:"heading"`
	ToleranceM   float64  `yaml:"tolerance_m" validate:"gte=0"`
	ToleranceDeg float64  `yaml:"tolerance_deg" validate:"gte=0"`
}

// Scenario is a scripted walk.
type Scenario struct {
	Name        string  `yaml:"name" validate:"required"`
	Description string  `yaml:"description"`
	Start       *Point  `yaml:"start"`
	Destination *Point  `yaml:"destination"`
	Route       []Point `yaml:"route" validate:"omitempty,dive"`
	TickMS      int     `yaml:"tick_ms" validate:"gte=0"`
	Events      []Event `yaml:"events" validate:"dive"`
	Expect      *Expect `yaml:"expect"`
}

// DefaultTickMS matches the display refresh the heading smoothing was tuned for.
const DefaultTickMS = 16

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario. Events are sorted by time; events
// at the same time keep file order.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := validator.New().Struct(sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	for i, e := range sc.Events {
		if n := e.payloads(); n != 1 {
			return nil, fmt.Errorf("event %d at %dms: want exactly one of compass, accel, fix, steps, command; got %d", i, e.AtMS, n)
		}
	}
	if len(sc.Route) > 0 && sc.Destination == nil {
		return nil, errors.New("route given without destination")
	}
	if sc.TickMS == 0 {
		sc.TickMS = DefaultTickMS
	}
	sort.SliceStable(sc.Events, func(i, j int) bool { return sc.Events[i].AtMS < sc.Events[j].AtMS })
	return &sc, nil
}
