package nav

import "fmt"

// Mode is the tracking mode. There is a single mode per engine and it only
// changes through explicit commands.
type Mode int

const (
	Planning  Mode = iota // sensors do not move the walker; GPS may seed position
	Tracking              // steps advance position and extend the walked path
	Backtrack             // stopped; steps still advance, return/reset pending
)

func (m Mode) String() string {
	switch m {
	case Planning:
		return "PLANNING"
	case Tracking:
		return "TRACKING"
	case Backtrack:
		return "BACKTRACK"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Stepping reports whether step events move the walker in this mode.
func (m Mode) Stepping() bool {
	return m == Tracking || m == Backtrack
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PLANNING":
		*m = Planning
	case "TRACKING":
		*m = Tracking
	case "BACKTRACK":
		*m = Backtrack
	default:
		return fmt.Errorf("unknown mode %q", string(b))
	}
	return nil
}

// RotationMode is how a presentation layer orients the map.
type RotationMode string

const (
	NorthUp RotationMode = "NORTH_UP"
	HeadsUp RotationMode = "HEADS_UP"
)
