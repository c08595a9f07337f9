package nav

import (
	"time"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/orientation"
)

// Snapshot is a read-only copy of the engine state for presentation layers.
// Slices are copies and never nil.
type Snapshot struct {
	Mode           Mode              `json:"mode"`
	Position       geo.Coordinate    `json:"position"`
	Heading        float64           `json:"heading"`
	HeadingState   orientation.State `json:"heading_state"`
	RotationMode   RotationMode      `json:"rotation_mode"`
	WalkedPath     []geo.Coordinate  `json:"walked_path"`
	PlannedRoute   []geo.Coordinate  `json:"planned_route"`
	Steps          int               `json:"steps"`
	DistanceWalked float64           `json:"distance_walked_m"`
	RemainingRoute float64           `json:"remaining_route_m"`
	IsWalking      bool              `json:"is_walking"`
	Origin         *Place            `json:"origin,omitempty"`
	Destination    *Place            `json:"destination,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	Generation     uint64            `json:"generation"`
	Time           time.Time         `json:"time"`
}

// Snapshot captures the engine state as of now.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Mode:           e.mode,
		Position:       e.position,
		Heading:        e.heading.Bearing(),
		HeadingState:   e.heading.State(),
		RotationMode:   e.rotationMode,
		WalkedPath:     copyPath(e.walked),
		PlannedRoute:   copyPath(e.planned),
		Steps:          e.stepCount,
		DistanceWalked: float64(e.stepCount) * e.cfg.StepLength,
		RemainingRoute: e.tracker.Remaining(e.position, e.planned),
		IsWalking:      !e.lastStepAt.IsZero() && now.Sub(e.lastStepAt) < e.cfg.WalkingWindow,
		SessionID:      e.sessionID,
		Generation:     e.generation,
		Time:           now,
	}
	if e.origin != nil {
		o := *e.origin
		s.Origin = &o
	}
	if e.destination != nil {
		d := *e.destination
		s.Destination = &d
	}
	return s
}

func copyPath(p []geo.Coordinate) []geo.Coordinate {
	out := make([]geo.Coordinate, len(p))
	copy(out, p)
	return out
}
