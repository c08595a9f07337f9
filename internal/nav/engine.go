// Package nav is the dead-reckoning engine: the tracking-mode state machine,
// step registration, route snapping and position correction, plus the
// single-goroutine Loop that feeds it sensor events and collaborator results.
package nav

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
	"github.com/relabs-tech/pedestrian_tracker/internal/monitoring"
	"github.com/relabs-tech/pedestrian_tracker/internal/orientation"
	"github.com/relabs-tech/pedestrian_tracker/internal/route"
)

var (
	// ErrNoDestination is returned by Start when no destination is set.
	ErrNoDestination = errors.New("no destination set")
	// ErrInvalidTransition is returned when a command is not valid in the current mode.
	ErrInvalidTransition = errors.New("invalid mode transition")
	// ErrNotFound is a geocoding lookup failure.
	ErrNotFound = errors.New("location not found")
	// ErrNoRoute is a routing lookup failure.
	ErrNoRoute = errors.New("no route found")
	// ErrStaleResult is returned when a lookup finished after the engine moved on.
	ErrStaleResult = errors.New("result superseded by a newer command")
)

// DefaultStepLength is the average walking step in metres.
const DefaultStepLength = 0.76

// DefaultPosition is used before any fix or pick (Red Square, Moscow).
var DefaultPosition = geo.Coordinate{Lat: 55.7539, Lng: 37.6208}

// Config is the engine tuning.
type Config struct {
	StepLength       float64
	Step             imu.StepConfig
	SmoothingFactor  float64
	EarthRadius      float64
	DefaultPosition  geo.Coordinate
	DropStaleResults bool
	// WalkingWindow is how long after the last step the walker counts as walking.
	WalkingWindow time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		StepLength:       DefaultStepLength,
		Step:             imu.DefaultStepConfig(),
		SmoothingFactor:  orientation.DefaultSmoothingFactor,
		EarthRadius:      geo.EarthRadius,
		DefaultPosition:  DefaultPosition,
		DropStaleResults: true,
		WalkingWindow:    2 * time.Second,
	}
}

// Place is a coordinate with a human label (address or "lat, lng").
type Place struct {
	Coord geo.Coordinate `json:"coord"`
	Label string         `json:"label"`
}

// RouteRequest asks the routing collaborator for a new route. Generation ties
// the eventual answer to the engine state it was issued from.
type RouteRequest struct {
	From       geo.Coordinate
	To         geo.Coordinate
	Generation uint64
}

// Walk is a finished tracking session, handed to the archive on reset.
type Walk struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Steps        int
	StepLength   float64
	Origin       *Place
	Destination  *Place
	WalkedPath   []geo.Coordinate
	PlannedRoute []geo.Coordinate
}

// Engine owns all tracking state. It is not safe for concurrent use: every
// method must be called from the goroutine running the Loop (or a test).
type Engine struct {
	cfg     Config
	proj    geo.Projector
	heading *orientation.Estimator
	steps   *imu.StepDetector
	tracker route.Tracker

	mode         Mode
	position     geo.Coordinate
	walked       []geo.Coordinate
	planned      []geo.Coordinate
	stepCount    int
	origin       *Place
	destination  *Place
	rotationMode RotationMode
	lastStepAt   time.Time

	sessionID string
	startedAt time.Time

	// generation is bumped whenever a pending lookup's answer could no
	// longer be applied consistently: start, return, correction, reset.
	generation uint64
}

// NewEngine returns an engine in PLANNING at cfg.DefaultPosition.
func NewEngine(cfg Config) *Engine {
	proj := geo.NewProjector(cfg.EarthRadius)
	return &Engine{
		cfg:          cfg,
		proj:         proj,
		heading:      orientation.NewEstimator(cfg.SmoothingFactor),
		steps:        imu.NewStepDetector(cfg.Step),
		tracker:      route.NewTracker(proj),
		mode:         Planning,
		position:     cfg.DefaultPosition,
		walked:       []geo.Coordinate{},
		planned:      []geo.Coordinate{},
		rotationMode: NorthUp,
	}
}

// Mode returns the current tracking mode.
func (e *Engine) Mode() Mode { return e.mode }

// Position returns the current position.
func (e *Engine) Position() geo.Coordinate { return e.position }

// Generation returns the current request generation.
func (e *Engine) Generation() uint64 { return e.generation }

// Destination returns the current destination, if any.
func (e *Engine) Destination() (Place, bool) {
	if e.destination == nil {
		return Place{}, false
	}
	return *e.destination, true
}

// ---- sensor ports ----

// HandleCompass records a raw compass angle.
func (e *Engine) HandleCompass(deg float64) {
	e.heading.SetRaw(deg)
}

// Tick runs one fixed-rate smoothing step.
func (e *Engine) Tick() {
	e.heading.Tick()
}

// HandleMotion feeds one acceleration sample. Outside TRACKING/BACKTRACK the
// sample is discarded without touching detector state. Reports whether a
// step was registered.
func (e *Engine) HandleMotion(s imu.Sample) bool {
	if !e.mode.Stepping() {
		return false
	}
	if !e.steps.Feed(s) {
		return false
	}
	e.registerStep(s.Time)
	return true
}

func (e *Engine) registerStep(at time.Time) {
	var next geo.Coordinate
	if len(e.planned) >= 2 {
		next = e.tracker.Advance(e.position, e.planned, e.cfg.StepLength)
	} else {
		next = e.proj.Destination(e.position, e.cfg.StepLength, e.heading.Bearing())
	}
	e.position = next
	e.walked = append(e.walked, next)
	e.stepCount++
	e.lastStepAt = at
}

// ApplyFix seeds position from an absolute fix. Fixes are only honoured in
// PLANNING before an origin has been pinned.
func (e *Engine) ApplyFix(c geo.Coordinate) bool {
	if e.mode != Planning || e.origin != nil {
		return false
	}
	e.position = c
	return true
}

// ---- heading commands ----

// Calibrate zeroes the heading on the current compass reading.
func (e *Engine) Calibrate() { e.heading.Calibrate() }

// Rotate adds a manual rotation delta in degrees.
func (e *Engine) Rotate(delta float64) { e.heading.Rotate(delta) }

// SetLocked engages or releases the course lock.
func (e *Engine) SetLocked(locked bool) { e.heading.SetLocked(locked) }

// ToggleRotationMode flips between north-up and heads-up presentation.
func (e *Engine) ToggleRotationMode() {
	if e.rotationMode == NorthUp {
		e.rotationMode = HeadsUp
	} else {
		e.rotationMode = NorthUp
	}
}

// ---- planning commands ----

// SetOrigin pins the start point. GPS no longer seeds position afterwards.
// Moving the origin drops the planned route and any plan still in flight.
func (e *Engine) SetOrigin(p Place) error {
	if e.mode != Planning {
		return ErrInvalidTransition
	}
	if e.origin == nil || e.origin.Coord != p.Coord {
		e.dropPlan()
	}
	e.origin = &p
	e.position = p.Coord
	return nil
}

// SetDestination sets the walk's destination. A new destination coordinate
// drops the planned route and any plan still in flight; relabelling the same
// point keeps them.
func (e *Engine) SetDestination(p Place) error {
	if e.mode != Planning {
		return ErrInvalidTransition
	}
	if e.destination == nil || e.destination.Coord != p.Coord {
		e.dropPlan()
	}
	e.destination = &p
	return nil
}

func (e *Engine) dropPlan() {
	e.planned = []geo.Coordinate{}
	e.generation++
}

// ApplyPlan installs the result of a route-planning lookup issued at
// generation gen. origin may be nil when the plan started from the current
// position.
func (e *Engine) ApplyPlan(gen uint64, origin *Place, dest Place, planned []geo.Coordinate) error {
	if e.stale(gen) {
		return ErrStaleResult
	}
	if e.mode != Planning {
		return ErrInvalidTransition
	}
	if origin != nil {
		o := *origin
		e.origin = &o
		e.position = o.Coord
	}
	e.destination = &dest
	e.planned = geo.Clone(planned)
	return nil
}

// ApplyRoute replaces the planned route with a reroute answer issued at gen.
func (e *Engine) ApplyRoute(gen uint64, planned []geo.Coordinate) error {
	if e.stale(gen) {
		return ErrStaleResult
	}
	e.planned = geo.Clone(planned)
	return nil
}

func (e *Engine) stale(gen uint64) bool {
	if gen == e.generation {
		return false
	}
	if !e.cfg.DropStaleResults {
		monitoring.Logf("nav: applying result from generation %d at %d", gen, e.generation)
		return false
	}
	monitoring.Logf("nav: dropping result from generation %d, engine at %d", gen, e.generation)
	return true
}

// ---- mode transitions ----

// Start moves PLANNING → TRACKING. The walked path restarts at the current
// position.
func (e *Engine) Start(now time.Time) error {
	if e.mode != Planning {
		return ErrInvalidTransition
	}
	if e.destination == nil {
		return ErrNoDestination
	}
	e.mode = Tracking
	e.walked = []geo.Coordinate{e.position}
	e.sessionID = uuid.NewString()
	e.startedAt = now
	e.generation++
	monitoring.Logf("nav: session %s started at %s", e.sessionID, e.position)
	return nil
}

// Stop moves TRACKING → BACKTRACK.
func (e *Engine) Stop() error {
	if e.mode != Tracking {
		return ErrInvalidTransition
	}
	e.mode = Backtrack
	return nil
}

// Return moves BACKTRACK → TRACKING, retracing the walked path: the planned
// route becomes the reversed trace and the destination its starting point.
func (e *Engine) Return() error {
	if e.mode != Backtrack {
		return ErrInvalidTransition
	}
	back := geo.Reverse(e.walked)

	label := "START"
	if e.origin != nil && e.origin.Label != "" {
		label = e.origin.Label
	}
	target := e.position
	if len(back) > 0 {
		target = back[len(back)-1]
	}

	e.planned = back
	e.walked = []geo.Coordinate{e.position}
	e.destination = &Place{Coord: target, Label: label}
	e.mode = Tracking
	e.generation++
	return nil
}

// Reset returns to PLANNING from any mode, clearing route, trace, step count,
// heading offsets, origin and destination. If a session was in progress it is
// returned for archiving.
func (e *Engine) Reset(now time.Time) (Walk, bool) {
	var walk Walk
	finished := e.mode.Stepping()
	if finished {
		walk = Walk{
			ID:           e.sessionID,
			StartedAt:    e.startedAt,
			FinishedAt:   now,
			Steps:        e.stepCount,
			StepLength:   e.cfg.StepLength,
			Origin:       e.origin,
			Destination:  e.destination,
			WalkedPath:   geo.Clone(e.walked),
			PlannedRoute: geo.Clone(e.planned),
		}
	}

	e.mode = Planning
	e.planned = []geo.Coordinate{}
	e.walked = []geo.Coordinate{}
	e.stepCount = 0
	e.origin = nil
	e.destination = nil
	e.rotationMode = NorthUp
	e.lastStepAt = time.Time{}
	e.sessionID = ""
	e.startedAt = time.Time{}
	e.heading.Reset()
	e.steps.Reset()
	e.generation++
	return walk, finished
}

// ---- correction ----

// Correct re-seeds the position from an authoritative coordinate and rewrites
// the trace. With a planned route the walked path becomes the route prefix up
// to the vertex nearest c, so the trail snaps onto the route instead of
// drawing a jump. Without one, c is appended.
//
// While planning there is no trace yet: only the position moves.
//
// If the walker is tracking toward a destination the returned request should
// be sent to the router; its answer goes to ApplyRoute.
func (e *Engine) Correct(c geo.Coordinate) *RouteRequest {
	e.position = c
	switch {
	case !e.mode.Stepping():
		// no trace outside a walk
	case len(e.planned) > 0:
		k := e.tracker.NearestVertex(c, e.planned)
		e.walked = geo.Clone(e.planned[:k+1])
	default:
		e.walked = append(e.walked, c)
	}
	e.generation++

	if !e.mode.Stepping() || e.destination == nil {
		return nil
	}
	return &RouteRequest{From: c, To: e.destination.Coord, Generation: e.generation}
}
