package nav

import (
	"context"
	"fmt"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
)

// Command types accepted by Execute.
const (
	CmdStart          = "start"
	CmdStop           = "stop"
	CmdReturn         = "return"
	CmdReset          = "reset"
	CmdCalibrate      = "calibrate"
	CmdRotate         = "rotate"
	CmdLock           = "lock"
	CmdToggleRotation = "toggle_rotation"
	CmdSetOrigin      = "set_origin"
	CmdSetDestination = "set_destination"
	CmdPlanRoute      = "plan_route"
	CmdCorrect        = "correct"
	CmdCorrectAddress = "correct_address"
)

// Command is the wire form of an engine command, as received over MQTT or
// the web API.
type Command struct {
	ID     string   `json:"id,omitempty"`
	Type   string   `json:"type"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
	Label  string   `json:"label,omitempty"`
	Text   string   `json:"text,omitempty"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
	Delta  float64  `json:"delta,omitempty"`
	Locked bool     `json:"locked,omitempty"`
}

func (c Command) coordinate() (geo.Coordinate, error) {
	if c.Lat == nil || c.Lng == nil {
		return geo.Coordinate{}, fmt.Errorf("%s: lat and lng are required", c.Type)
	}
	return geo.Coordinate{Lat: *c.Lat, Lng: *c.Lng}, nil
}

// Execute dispatches a wire command to the matching Loop method.
func (l *Loop) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdStart:
		return l.Start(ctx)
	case CmdStop:
		return l.Stop(ctx)
	case CmdReturn:
		return l.Return(ctx)
	case CmdReset:
		return l.Reset(ctx)
	case CmdCalibrate:
		return l.Calibrate(ctx)
	case CmdRotate:
		return l.Rotate(ctx, cmd.Delta)
	case CmdLock:
		return l.SetLocked(ctx, cmd.Locked)
	case CmdToggleRotation:
		return l.ToggleRotationMode(ctx)
	case CmdSetOrigin:
		c, err := cmd.coordinate()
		if err != nil {
			return err
		}
		return l.SetOrigin(ctx, c, cmd.Label)
	case CmdSetDestination:
		c, err := cmd.coordinate()
		if err != nil {
			return err
		}
		return l.SetDestination(ctx, c, cmd.Label)
	case CmdPlanRoute:
		return l.PlanRoute(ctx, cmd.From, cmd.To)
	case CmdCorrect:
		c, err := cmd.coordinate()
		if err != nil {
			return err
		}
		return l.Correct(ctx, c)
	case CmdCorrectAddress:
		return l.CorrectAddress(ctx, cmd.Text)
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}
