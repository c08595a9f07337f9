package nav

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/imu"
	"github.com/relabs-tech/pedestrian_tracker/internal/orientation"
)

type fakeGeocoder struct {
	places map[string]Place
}

func (g *fakeGeocoder) Geocode(_ context.Context, q string) (Place, error) {
	p, ok := g.places[q]
	if !ok {
		return Place{}, fmt.Errorf("nominatim %q: %w", q, ErrNotFound)
	}
	return p, nil
}

func (g *fakeGeocoder) ReverseGeocode(_ context.Context, c geo.Coordinate) (string, error) {
	for _, p := range g.places {
		if p.Coord == c {
			return p.Label, nil
		}
	}
	return "", ErrNotFound
}

// fakeRouter returns a straight line. If gate is set, each call blocks
// until a value is received from it.
type fakeRouter struct {
	mu    sync.Mutex
	calls []RouteRequest
	fail  bool
	gate  chan struct{}
}

func (r *fakeRouter) Route(_ context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RouteRequest{From: from, To: to})
	fail, gate := r.fail, r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return nil, fmt.Errorf("osrm: %w", ErrNoRoute)
	}
	return []geo.Coordinate{from, to}, nil
}

func (r *fakeRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeArchiver struct {
	mu    sync.Mutex
	walks []Walk
}

func (a *fakeArchiver) SaveWalk(_ context.Context, w Walk) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.walks = append(a.walks, w)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

var (
	home   = Place{Coord: geo.Coordinate{Lat: 55.7539, Lng: 37.6208}, Label: "Red Square"}
	museum = Place{Coord: geo.Coordinate{Lat: 55.7558, Lng: 37.6176}, Label: "State Historical Museum"}
)

type harness struct {
	loop     *Loop
	router   *fakeRouter
	archiver *fakeArchiver
	events   *eventLog
	ticks    chan time.Time
	cancel   context.CancelFunc
	done     chan error

	mu        sync.Mutex
	snapshots int
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		router:   &fakeRouter{},
		archiver: &fakeArchiver{},
		events:   &eventLog{},
		ticks:    make(chan time.Time),
		done:     make(chan error, 1),
	}
	h.loop = NewLoop(NewEngine(cfg), LoopOptions{
		Geocoder: &fakeGeocoder{places: map[string]Place{
			"red square": home,
			"museum":     museum,
		}},
		Router:   h.router,
		Archiver: h.archiver,
		Ticks:    h.ticks,
		Now:      func() time.Time { return t0 },
		OnSnapshot: func(Snapshot) {
			h.mu.Lock()
			h.snapshots++
			h.mu.Unlock()
		},
		OnEvent: h.events.add,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	s, err := h.loop.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func TestLoopPlanStartAndWalk(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, h.loop.PlanRoute(ctx, "red square", "museum"))
	s := h.snapshot(t)
	assert.Equal(t, home.Coord, s.Position)
	assert.Equal(t, []geo.Coordinate{home.Coord, museum.Coord}, s.PlannedRoute)
	require.NotNil(t, s.Destination)
	assert.Equal(t, "State Historical Museum", s.Destination.Label)

	require.NoError(t, h.loop.Start(ctx))
	for i := 1; i <= 5; i++ {
		require.NoError(t, h.loop.Motion(ctx, imu.NewSample(0, 0, kick, at(time.Duration(i)*stepGap))))
	}
	s = h.snapshot(t)
	assert.Equal(t, Tracking, s.Mode)
	assert.Equal(t, 5, s.Steps)
	assert.Len(t, s.WalkedPath, 6)
	assert.InDelta(t, 5*DefaultStepLength, geo.Distance(home.Coord, s.Position), 1e-2)
}

func TestLoopPlanFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	before := h.snapshot(t)

	err := h.loop.PlanRoute(ctx, "", "atlantis")
	assert.ErrorIs(t, err, ErrNotFound)

	h.router.fail = true
	err = h.loop.PlanRoute(ctx, "red square", "museum")
	assert.ErrorIs(t, err, ErrNoRoute)

	after := h.snapshot(t)
	assert.Equal(t, before.Position, after.Position)
	assert.Nil(t, after.Origin)
	assert.Nil(t, after.Destination)
	assert.Empty(t, after.PlannedRoute)

	assert.ErrorIs(t, h.loop.PlanRoute(ctx, "", ""), ErrNoDestination)
}

func TestLoopPlanFromCoordinatesText(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	require.NoError(t, h.loop.PlanRoute(context.Background(), "", "55.7558, 37.6176"))
	s := h.snapshot(t)
	require.NotNil(t, s.Destination)
	assert.Equal(t, museum.Coord, s.Destination.Coord)
	assert.Equal(t, museum.Label, s.Destination.Label, "label comes from reverse geocoding")
}

func TestLoopStartRejectedWithoutDestination(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.ErrorIs(t, h.loop.Start(context.Background()), ErrNoDestination)
	assert.Equal(t, Planning, h.snapshot(t).Mode)
}

func TestLoopCorrectionReroutes(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.loop.PlanRoute(ctx, "red square", "museum"))
	require.NoError(t, h.loop.Start(ctx))

	fix := geo.Coordinate{Lat: 55.7545, Lng: 37.6200}
	require.NoError(t, h.loop.Correct(ctx, fix))
	h.loop.Wait()

	s := h.snapshot(t)
	assert.Equal(t, fix, s.Position)
	assert.Equal(t, []geo.Coordinate{fix, museum.Coord}, s.PlannedRoute)
	assert.Contains(t, h.events.types(), EventRerouted)
	assert.Equal(t, 2, h.router.count())
}

func TestLoopCorrectionRerouteFailureKeepsRoute(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.loop.PlanRoute(ctx, "red square", "museum"))
	require.NoError(t, h.loop.Start(ctx))

	h.router.mu.Lock()
	h.router.fail = true
	h.router.mu.Unlock()

	require.NoError(t, h.loop.Correct(ctx, home.Coord))
	h.loop.Wait()

	s := h.snapshot(t)
	assert.Equal(t, []geo.Coordinate{home.Coord, museum.Coord}, s.PlannedRoute)
	assert.Contains(t, h.events.types(), EventRerouteFailed)
}

func TestLoopCorrectAddressLookupFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	before := h.snapshot(t)

	err := h.loop.CorrectAddress(ctx, "nowhere street")
	assert.ErrorIs(t, err, ErrNotFound)

	after := h.snapshot(t)
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.WalkedPath, after.WalkedPath)
	assert.Equal(t, before.Generation, after.Generation)

	require.NoError(t, h.loop.CorrectAddress(ctx, "museum"))
	assert.Equal(t, museum.Coord, h.snapshot(t).Position)
}

func TestLoopStaleRerouteDroppedAfterReset(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.loop.PlanRoute(ctx, "red square", "museum"))
	require.NoError(t, h.loop.Start(ctx))

	gate := make(chan struct{})
	h.router.mu.Lock()
	h.router.gate = gate
	h.router.mu.Unlock()

	require.NoError(t, h.loop.Correct(ctx, home.Coord))
	require.NoError(t, h.loop.Reset(ctx))
	close(gate)
	h.loop.Wait()

	s := h.snapshot(t)
	assert.Equal(t, Planning, s.Mode)
	assert.Empty(t, s.PlannedRoute, "reroute answer arriving after reset must not resurrect a route")
	assert.Contains(t, h.events.types(), EventRerouteStale)
}

func TestLoopResetArchivesWalk(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.loop.SetDestination(ctx, museum.Coord, ""))
	require.NoError(t, h.loop.Start(ctx))
	require.NoError(t, h.loop.Motion(ctx, imu.NewSample(0, 0, kick, at(stepGap))))
	require.NoError(t, h.loop.Reset(ctx))
	h.loop.Wait()

	h.archiver.mu.Lock()
	defer h.archiver.mu.Unlock()
	require.Len(t, h.archiver.walks, 1)
	assert.Equal(t, 1, h.archiver.walks[0].Steps)
	require.NotNil(t, h.archiver.walks[0].Destination)
	assert.Equal(t, museum.Label, h.archiver.walks[0].Destination.Label)
}

func TestLoopTicksSmoothHeading(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.loop.Compass(ctx, 350))

	// the compass reading queued above is applied before any tick sent after
	// the snapshot round trip
	_ = h.snapshot(t)
	for i := 0; i < 3; i++ {
		h.ticks <- t0
	}
	want := 0.0
	for i := 0; i < 3; i++ {
		want = orientation.SmoothHeading(want, 350, DefaultConfig().SmoothingFactor)
	}
	s := h.snapshot(t)
	assert.InDelta(t, want, s.Heading, 1e-9)
	assert.Greater(t, s.Heading, 340.0, "smoothing goes through north, not through 180")
}

func TestLoopExecute(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	lat, lng := museum.Coord.Lat, museum.Coord.Lng

	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdSetDestination, Lat: &lat, Lng: &lng}))
	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdRotate, Delta: 30}))
	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdLock, Locked: true}))
	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdToggleRotation}))
	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdStart}))
	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdStop}))

	s := h.snapshot(t)
	assert.Equal(t, Backtrack, s.Mode)
	assert.Equal(t, HeadsUp, s.RotationMode)
	assert.InDelta(t, 30, s.Heading, 1e-9)

	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdReturn}))
	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdCorrect, Lat: &lat, Lng: &lng}))
	require.NoError(t, h.loop.Execute(ctx, Command{Type: CmdReset}))
	assert.Equal(t, Planning, h.snapshot(t).Mode)

	assert.Error(t, h.loop.Execute(ctx, Command{Type: CmdCorrect}))
	assert.Error(t, h.loop.Execute(ctx, Command{Type: "teleport"}))
	assert.ErrorIs(t, h.loop.Execute(ctx, Command{Type: CmdStop}), ErrInvalidTransition)
}

func TestLoopFixSeedsPositionWhilePlanning(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.loop.Fix(ctx, museum.Coord))
	assert.Equal(t, museum.Coord, h.snapshot(t).Position)

	require.NoError(t, h.loop.SetOrigin(ctx, home.Coord, ""))
	require.NoError(t, h.loop.Fix(ctx, museum.Coord))
	s := h.snapshot(t)
	assert.Equal(t, home.Coord, s.Position)
	require.NotNil(t, s.Origin)
	assert.Equal(t, home.Label, s.Origin.Label)
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	loop := NewLoop(NewEngine(DefaultConfig()), LoopOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoopCallbacksRunOnLoopGoroutine(t *testing.T) {
	// trace is shared by both callbacks without a lock; the race detector
	// flags any callback made off the loop goroutine
	var trace []string
	router := &fakeRouter{fail: true}
	loop := NewLoop(NewEngine(DefaultConfig()), LoopOptions{
		Router:     router,
		Archiver:   &fakeArchiver{},
		Now:        func() time.Time { return t0 },
		OnSnapshot: func(Snapshot) { trace = append(trace, "snapshot") },
		OnEvent:    func(e Event) { trace = append(trace, e.Type) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.NoError(t, loop.SetDestination(ctx, museum.Coord, museum.Label))
	require.NoError(t, loop.Start(ctx))
	require.NoError(t, loop.Correct(ctx, home.Coord))
	loop.Wait()
	require.NoError(t, loop.Reset(ctx))
	loop.Wait()
	_, err := loop.Snapshot(ctx)
	require.NoError(t, err)

	cancel()
	<-done
	assert.Contains(t, trace, EventRerouteFailed)
	assert.Contains(t, trace, EventArchived)
	assert.Equal(t, 1, router.count())
}
