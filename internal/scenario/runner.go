package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
	"github.com/relabs-tech/pedestrian_tracker/internal/orientation"
)

// Epoch is the synthetic start time of every replay.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// defaultPeak is a step impulse comfortably above gravity plus threshold.
const defaultPeak = 12.5

// Options wires optional collaborators into a replay. Without a Router the
// scenario's scripted route (or a straight line) answers route requests.
type Options struct {
	Engine   nav.Config
	Geocoder nav.Geocoder
	Router   nav.Router
	Archiver nav.Archiver
	OnEvent  func(nav.Event)
}

// Result is the outcome of a replay.
type Result struct {
	Final    nav.Snapshot
	Events   []nav.Event
	Failures []string
}

// OK reports whether every expectation held.
func (r Result) OK() bool { return len(r.Failures) == 0 }

// scriptedRouter returns the scenario route for the first request and a
// straight line afterwards.
type scriptedRouter struct {
	mu    sync.Mutex
	route []geo.Coordinate
}

func (r *scriptedRouter) Route(_ context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.route) > 0 {
		out := r.route
		r.route = nil
		return out, nil
	}
	return []geo.Coordinate{from, to}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Run replays sc and checks its expectations.
func Run(ctx context.Context, sc *Scenario, opts Options) (Result, error) {
	if opts.Engine.StepLength == 0 {
		opts.Engine = nav.DefaultConfig()
	}

	var (
		res   Result
		resMu sync.Mutex
	)
	clk := &clock{now: Epoch}
	ticks := make(chan time.Time)

	router := opts.Router
	if router == nil {
		sr := &scriptedRouter{}
		for _, p := range sc.Route {
			sr.route = append(sr.route, p.Coordinate())
		}
		router = sr
	}

	loop := nav.NewLoop(nav.NewEngine(opts.Engine), nav.LoopOptions{
		Geocoder: opts.Geocoder,
		Router:   router,
		Archiver: opts.Archiver,
		Ticks:    ticks,
		Now:      clk.Now,
		OnEvent: func(e nav.Event) {
			resMu.Lock()
			res.Events = append(res.Events, e)
			resMu.Unlock()
			if opts.OnEvent != nil {
				opts.OnEvent(e)
			}
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- loop.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	if err := setup(ctx, loop, sc); err != nil {
		return res, err
	}

	tick := time.Duration(sc.TickMS) * time.Millisecond
	var nextTick time.Duration
	advance := func(to time.Duration) error {
		// drain queued sensor input so ticks land after it
		if _, err := loop.Snapshot(ctx); err != nil {
			return err
		}
		for ; nextTick <= to; nextTick += tick {
			clk.set(Epoch.Add(nextTick))
			select {
			case ticks <- Epoch.Add(nextTick):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		clk.set(Epoch.Add(to))
		return nil
	}

	for i, e := range sc.Events {
		at := time.Duration(e.AtMS) * time.Millisecond
		if err := advance(at); err != nil {
			return res, err
		}
		if err := apply(ctx, loop, e, advance); err != nil {
			return res, fmt.Errorf("event %d at %dms: %w", i, e.AtMS, err)
		}
	}
	loop.Wait()

	final, err := loop.Snapshot(ctx)
	if err != nil {
		return res, err
	}
	resMu.Lock()
	res.Final = final
	resMu.Unlock()
	if sc.Expect != nil {
		res.Failures = sc.Expect.check(final)
	}
	return res, nil
}

func setup(ctx context.Context, loop *nav.Loop, sc *Scenario) error {
	if sc.Start != nil {
		if err := loop.SetOrigin(ctx, sc.Start.Coordinate(), sc.Start.Label); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	if sc.Destination == nil {
		return nil
	}
	dest := sc.Destination.Coordinate()
	if len(sc.Route) > 0 {
		if err := loop.PlanRoute(ctx, "", fmt.Sprintf("%v,%v", dest.Lat, dest.Lng)); err != nil {
			return fmt.Errorf("route: %w", err)
		}
	}
	label := sc.Destination.Label
	if label == "" {
		label = dest.String()
	}
	if err := loop.SetDestination(ctx, dest, label); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	return nil
}

func apply(ctx context.Context, loop *nav.Loop, e Event, advance func(time.Duration) error) error {
	at := Epoch.Add(time.Duration(e.AtMS) * time.Millisecond)
	switch {
	case e.Compass != nil:
		return loop.Compass(ctx, *e.Compass)

	case e.Accel != nil:
		return loop.Motion(ctx, imu.Sample{X: e.Accel.X, Y: e.Accel.Y, Z: e.Accel.Z, Time: at})

	case e.Fix != nil:
		return loop.Fix(ctx, e.Fix.Coordinate())

	case e.Steps != nil:
		peak := e.Steps.Peak
		if peak == 0 {
			peak = defaultPeak
		}
		gap := time.Duration(e.Steps.IntervalMS) * time.Millisecond
		for i := 0; i < e.Steps.Count; i++ {
			offset := time.Duration(e.AtMS)*time.Millisecond + time.Duration(i)*gap
			if i > 0 {
				if err := advance(offset); err != nil {
					return err
				}
			}
			if err := loop.Motion(ctx, imu.NewSample(0, 0, peak, Epoch.Add(offset))); err != nil {
				return err
			}
		}
		return nil

	case e.Command != nil:
		err := loop.Execute(ctx, e.Command.toNav())
		loop.Wait()
		if e.Command.ExpectError {
			if err == nil {
				return fmt.Errorf("command %s: expected an error", e.Command.Type)
			}
			return nil
		}
		return err
	}
	return errors.New("empty event")
}

func (x *Expect) check(s nav.Snapshot) []string {
	var fails []string
	if x.Mode != "" && s.Mode.String() != x.Mode {
		fails = append(fails, fmt.Sprintf("mode: want %s, got %s", x.Mode, s.Mode))
	}
	if x.Steps != nil && s.Steps != *x.Steps {
		fails = append(fails, fmt.Sprintf("steps: want %d, got %d", *x.Steps, s.Steps))
	}
	if x.WalkedPath != nil && len(s.WalkedPath) != *x.WalkedPath {
		fails = append(fails, fmt.Sprintf("walked points: want %d, got %d", *x.WalkedPath, len(s.WalkedPath)))
	}
	if x.Position != nil {
		tol := x.ToleranceM
		if tol == 0 {
			tol = 0.5
		}
		if d := geo.Distance(x.Position.Coordinate(), s.Position); d > tol {
			fails = append(fails, fmt.Sprintf("position: want %s, got %s (%.2fm off)", x.Position.Coordinate(), s.Position, d))
		}
	}
	if x.Heading != nil {
		tol := x.ToleranceDeg
		if tol == 0 {
			tol = 1
		}
		if d := math.Abs(orientation.ShortestDelta(*x.Heading, s.Heading)); d > tol {
			fails = append(fails, fmt.Sprintf("heading: want %.1f, got %.1f", *x.Heading, s.Heading))
		}
	}
	return fails
}

// Summary renders a result in one block for the replay command.
func (r Result) Summary(name string) string {
	var b strings.Builder
	s := r.Final
	fmt.Fprintf(&b, "scenario %q: mode=%s steps=%d walked=%.1fm remaining=%.1fm heading=%.1f pos=%s\n",
		name, s.Mode, s.Steps, s.DistanceWalked, s.RemainingRoute, s.Heading, s.Position)
	for _, e := range r.Events {
		fmt.Fprintf(&b, "  event %s %s\n", e.Type, e.Message)
	}
	if r.OK() {
		b.WriteString("  PASS\n")
	} else {
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  FAIL %s\n", f)
		}
	}
	return b.String()
}
