package nav

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
	"github.com/relabs-tech/pedestrian_tracker/internal/monitoring"
)

// Geocoder resolves addresses. Geocode returns an error wrapping ErrNotFound
// when nothing matches.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Place, error)
	ReverseGeocode(ctx context.Context, c geo.Coordinate) (string, error)
}

// Router plans walking routes. It returns an error wrapping ErrNoRoute when
// no route exists.
type Router interface {
	Route(ctx context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error)
}

// Archiver stores finished walks.
type Archiver interface {
	SaveWalk(ctx context.Context, w Walk) error
}

// Event reports something that happened outside a caller's request, such as
// a reroute finishing or failing.
type Event struct {
	Type      string    `json:"type"`
	CommandID string    `json:"command_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// Event types.
const (
	EventRerouted      = "rerouted"
	EventRerouteFailed = "reroute_failed"
	EventRerouteStale  = "reroute_stale"
	EventArchived      = "archived"
	EventArchiveFailed = "archive_failed"
	EventCommandFailed = "command_failed"
	EventCommandOK     = "command_ok"
)

// LoopOptions wires a Loop to its collaborators. Any collaborator may be nil;
// operations that need a missing one fail or are skipped.
type LoopOptions struct {
	Geocoder Geocoder
	Router   Router
	Archiver Archiver

	// Ticks drives heading smoothing. Production passes a time.Ticker
	// channel; tests pass a channel they feed by hand.
	Ticks <-chan time.Time

	// Now stamps commands and samples without their own time. Defaults to time.Now.
	Now func() time.Time

	// OnSnapshot and OnEvent run on the loop goroutine, never concurrently
	// with each other or with engine updates.
	OnSnapshot func(Snapshot)
	OnEvent    func(Event)
}

// Loop runs an Engine on a single goroutine. Sensor samples, smoothing ticks,
// commands and collaborator answers are all queued and applied one at a time,
// so engine state needs no locking. Collaborator calls happen outside the
// loop; only their results are queued back.
type Loop struct {
	engine *Engine
	opts   LoopOptions
	ops    chan func()

	mu     sync.Mutex
	runCtx context.Context
	async  sync.WaitGroup
}

// NewLoop wraps engine. Call Run to start processing.
func NewLoop(engine *Engine, opts LoopOptions) *Loop {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loop{
		engine: engine,
		opts:   opts,
		ops:    make(chan func(), 64),
		runCtx: context.Background(),
	}
}

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.runCtx = ctx
	l.mu.Unlock()

	ticks := l.opts.Ticks
	l.publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			l.engine.Tick()
			l.publish()
		case op := <-l.ops:
			op()
		}
	}
}

// Wait blocks until all reroute and archive calls started so far have
// finished and queued their results.
func (l *Loop) Wait() { l.async.Wait() }

func (l *Loop) background() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runCtx
}

func (l *Loop) publish() {
	if l.opts.OnSnapshot != nil {
		l.opts.OnSnapshot(l.engine.Snapshot(l.opts.Now()))
	}
}

func (l *Loop) emit(typ, msg string) {
	if l.opts.OnEvent != nil {
		l.opts.OnEvent(Event{Type: typ, Message: msg, Time: l.opts.Now()})
	}
}

// emitLater queues an event from a background goroutine so OnEvent still
// runs on the loop.
func (l *Loop) emitLater(ctx context.Context, typ, msg string) {
	_ = l.post(ctx, func() { l.emit(typ, msg) })
}

func (l *Loop) post(ctx context.Context, op func()) error {
	select {
	case l.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (l *Loop) do(ctx context.Context, fn func(e *Engine) error) error {
	done := make(chan error, 1)
	err := l.post(ctx, func() {
		err := fn(l.engine)
		l.publish()
		done <- err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) goAsync(fn func(ctx context.Context)) {
	ctx := l.background()
	l.async.Add(1)
	go func() {
		defer l.async.Done()
		fn(ctx)
	}()
}

// ---- sensor ports ----

// Compass queues a raw compass angle.
func (l *Loop) Compass(ctx context.Context, deg float64) error {
	return l.post(ctx, func() { l.engine.HandleCompass(deg) })
}

// Motion queues an acceleration sample. Samples without a timestamp are
// stamped on arrival.
func (l *Loop) Motion(ctx context.Context, s imu.Sample) error {
	if s.Time.IsZero() {
		s.Time = l.opts.Now()
	}
	return l.post(ctx, func() {
		if l.engine.HandleMotion(s) {
			l.publish()
		}
	})
}

// Fix queues an absolute position fix.
func (l *Loop) Fix(ctx context.Context, c geo.Coordinate) error {
	return l.post(ctx, func() {
		if l.engine.ApplyFix(c) {
			l.publish()
		}
	})
}

// Snapshot returns the engine state as seen from the loop.
func (l *Loop) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := l.do(ctx, func(e *Engine) error {
		s = e.Snapshot(l.opts.Now())
		return nil
	})
	return s, err
}

// ---- mode commands ----

// Start begins tracking toward the current destination.
func (l *Loop) Start(ctx context.Context) error {
	return l.do(ctx, func(e *Engine) error { return e.Start(l.opts.Now()) })
}

// Stop pauses into BACKTRACK.
func (l *Loop) Stop(ctx context.Context) error {
	return l.do(ctx, func(e *Engine) error { return e.Stop() })
}

// Return retraces the walked path.
func (l *Loop) Return(ctx context.Context) error {
	return l.do(ctx, func(e *Engine) error { return e.Return() })
}

// Reset returns to PLANNING and archives the finished walk, if any.
func (l *Loop) Reset(ctx context.Context) error {
	return l.do(ctx, func(e *Engine) error {
		walk, finished := e.Reset(l.opts.Now())
		monitoring.Logf("nav: reset to %s", e.Mode())
		if finished && l.opts.Archiver != nil {
			l.archive(walk)
		}
		return nil
	})
}

func (l *Loop) archive(w Walk) {
	l.goAsync(func(ctx context.Context) {
		if err := l.opts.Archiver.SaveWalk(ctx, w); err != nil {
			monitoring.Logf("nav: archive walk %s: %v", w.ID, err)
			l.emitLater(ctx, EventArchiveFailed, err.Error())
			return
		}
		monitoring.Logf("nav: archived walk %s (%d steps)", w.ID, w.Steps)
		l.emitLater(ctx, EventArchived, w.ID)
	})
}

// ---- heading commands ----

// Calibrate zeroes the heading on the current compass reading.
func (l *Loop) Calibrate(ctx context.Context) error {
	return l.do(ctx, func(e *Engine) error { e.Calibrate(); return nil })
}

// Rotate applies a manual rotation delta.
func (l *Loop) Rotate(ctx context.Context, delta float64) error {
	return l.do(ctx, func(e *Engine) error { e.Rotate(delta); return nil })
}

// SetLocked engages or releases the course lock.
func (l *Loop) SetLocked(ctx context.Context, locked bool) error {
	return l.do(ctx, func(e *Engine) error { e.SetLocked(locked); return nil })
}

// ToggleRotationMode flips the presentation rotation mode.
func (l *Loop) ToggleRotationMode(ctx context.Context) error {
	return l.do(ctx, func(e *Engine) error { e.ToggleRotationMode(); return nil })
}

// ---- planning ----

// label reverse-geocodes c for display, falling back to "lat, lng".
func (l *Loop) label(ctx context.Context, c geo.Coordinate) string {
	if l.opts.Geocoder == nil {
		return c.String()
	}
	name, err := l.opts.Geocoder.ReverseGeocode(ctx, c)
	if err != nil || name == "" {
		if err != nil {
			monitoring.Logf("nav: reverse geocode %s: %v", c, err)
		}
		return c.String()
	}
	return name
}

// resolve turns user text into a place: "lat,lng" is taken literally and
// labelled by reverse geocoding, anything else is geocoded.
func (l *Loop) resolve(ctx context.Context, text string) (Place, error) {
	if c, err := geo.ParseCoordinate(text); err == nil {
		return Place{Coord: c, Label: l.label(ctx, c)}, nil
	}
	if l.opts.Geocoder == nil {
		return Place{}, fmt.Errorf("geocode %q: no geocoder configured: %w", text, ErrNotFound)
	}
	p, err := l.opts.Geocoder.Geocode(ctx, text)
	if err != nil {
		return Place{}, fmt.Errorf("geocode %q: %w", text, err)
	}
	return p, nil
}

// SetOrigin pins the start point ("I'm here"). An empty label is filled by
// reverse geocoding.
func (l *Loop) SetOrigin(ctx context.Context, c geo.Coordinate, label string) error {
	if label == "" {
		label = l.label(ctx, c)
	}
	return l.do(ctx, func(e *Engine) error { return e.SetOrigin(Place{Coord: c, Label: label}) })
}

// SetDestination sets the destination ("to here"). An empty label is filled
// by reverse geocoding.
func (l *Loop) SetDestination(ctx context.Context, c geo.Coordinate, label string) error {
	if label == "" {
		label = l.label(ctx, c)
	}
	return l.do(ctx, func(e *Engine) error { return e.SetDestination(Place{Coord: c, Label: label}) })
}

// PlanRoute resolves from/to and asks the router for a walking route. An
// empty from plans from the current position; otherwise from becomes the
// pinned origin. Nothing changes unless every lookup succeeds.
func (l *Loop) PlanRoute(ctx context.Context, from, to string) error {
	if to == "" {
		return ErrNoDestination
	}
	if l.opts.Router == nil {
		return fmt.Errorf("plan route: no router configured: %w", ErrNoRoute)
	}

	var (
		gen   uint64
		start geo.Coordinate
	)
	if err := l.do(ctx, func(e *Engine) error {
		gen, start = e.Generation(), e.Position()
		return nil
	}); err != nil {
		return err
	}

	var origin *Place
	if from != "" {
		p, err := l.resolve(ctx, from)
		if err != nil {
			return fmt.Errorf("plan route origin: %w", err)
		}
		origin = &p
		start = p.Coord
	}
	dest, err := l.resolve(ctx, to)
	if err != nil {
		return fmt.Errorf("plan route destination: %w", err)
	}
	planned, err := l.opts.Router.Route(ctx, start, dest.Coord)
	if err != nil {
		return fmt.Errorf("plan route: %w", err)
	}

	return l.do(ctx, func(e *Engine) error { return e.ApplyPlan(gen, origin, dest, planned) })
}

// ---- correction ----

// Correct re-seeds position from an authoritative coordinate (a confirmed
// map pick). If tracking toward a destination a reroute is started in the
// background; its answer is applied when it arrives.
func (l *Loop) Correct(ctx context.Context, c geo.Coordinate) error {
	var req *RouteRequest
	if err := l.do(ctx, func(e *Engine) error {
		req = e.Correct(c)
		monitoring.Logf("nav: corrected position to %s", c)
		return nil
	}); err != nil {
		return err
	}
	if req != nil && l.opts.Router != nil {
		l.reroute(*req)
	}
	return nil
}

// CorrectAddress resolves text and corrects to it. A failed lookup leaves the
// engine untouched and is returned to the caller.
func (l *Loop) CorrectAddress(ctx context.Context, text string) error {
	p, err := l.resolve(ctx, text)
	if err != nil {
		return fmt.Errorf("correction: %w", err)
	}
	return l.Correct(ctx, p.Coord)
}

func (l *Loop) reroute(req RouteRequest) {
	l.goAsync(func(ctx context.Context) {
		planned, err := l.opts.Router.Route(ctx, req.From, req.To)
		if err != nil {
			monitoring.Logf("nav: reroute from %s: %v", req.From, err)
			l.emitLater(ctx, EventRerouteFailed, err.Error())
			return
		}
		_ = l.post(ctx, func() {
			if err := l.engine.ApplyRoute(req.Generation, planned); err != nil {
				if errors.Is(err, ErrStaleResult) {
					l.emit(EventRerouteStale, err.Error())
				}
				return
			}
			monitoring.Logf("nav: rerouted with %d vertices", len(planned))
			l.publish()
			l.emit(EventRerouted, fmt.Sprintf("%d vertices", len(planned)))
		})
	})
}
