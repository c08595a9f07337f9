package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

func TestFormatSnapshot(t *testing.T) {
	s := sampleSnapshot()
	assert.Equal(t,
		"[SNAP]  TRACKING  HDG= 42.00  STEPS=  12  WALKED=    9.1m  POS=55.753900,37.620800",
		formatSnapshot(s))

	s.PlannedRoute = []geo.Coordinate{{}, {}}
	s.RemainingRoute = 250
	s.Destination = &nav.Place{Label: "Museum"}
	assert.Contains(t, formatSnapshot(s), "REMAINING=250.0m  TO=Museum")
}

func TestFormatEvent(t *testing.T) {
	assert.Equal(t, "[EVT ]  rerouted", formatEvent(nav.Event{Type: nav.EventRerouted}))
	assert.Equal(t, "[EVT ]  command_failed (c9): start: no destination",
		formatEvent(nav.Event{Type: nav.EventCommandFailed, CommandID: "c9", Message: "start: no destination"}))
}
