// Package route keeps a dead-reckoned walker locked onto a planned polyline.
//
// Pure dead reckoning drifts; advancing along the known route instead keeps
// the trace clean as long as the walker roughly follows the plan. Snapping is
// to the nearest segment rather than the nearest vertex so a walker slightly
// off the line does not jump between corners.
package route

import (
	"math"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
)

// Tracker snaps and advances positions along a polyline.
type Tracker struct {
	proj geo.Projector
}

// NewTracker returns a tracker measuring on the given sphere.
func NewTracker(proj geo.Projector) Tracker {
	return Tracker{proj: proj}
}

// Snap is the result of projecting a position onto a route.
type Snap struct {
	Segment  int            // index i of the segment route[i]→route[i+1]
	T        float64        // parameter along the segment in [0,1]
	Point    geo.Coordinate // projected point
	Distance float64        // metres from the input position to Point
}

// Nearest finds the segment whose projected point is closest to pos.
// Ties go to the first segment in route order. ok is false for routes with
// fewer than two vertices.
func (tr Tracker) Nearest(pos geo.Coordinate, route []geo.Coordinate) (Snap, bool) {
	if len(route) < 2 {
		return Snap{}, false
	}

	best := Snap{Distance: math.Inf(1)}
	for i := 0; i < len(route)-1; i++ {
		p, t := geo.ProjectOntoSegment(pos, route[i], route[i+1])
		d := tr.proj.Distance(pos, p)
		if d < best.Distance {
			best = Snap{Segment: i, T: t, Point: p, Distance: d}
		}
	}
	return best, true
}

// NearestVertex returns the index of the route vertex closest to pos, or -1
// for an empty route. Ties go to the earliest vertex.
func (tr Tracker) NearestVertex(pos geo.Coordinate, route []geo.Coordinate) int {
	idx := -1
	best := math.Inf(1)
	for i, v := range route {
		if d := tr.proj.Distance(pos, v); d < best {
			best = d
			idx = i
		}
	}
	return idx
}

// Advance snaps pos onto the route and walks step metres forward along it.
// If the route ends first, the final vertex is returned and the leftover
// distance is dropped. Routes with fewer than two vertices return pos.
func (tr Tracker) Advance(pos geo.Coordinate, route []geo.Coordinate, step float64) geo.Coordinate {
	snap, ok := tr.Nearest(pos, route)
	if !ok {
		return pos
	}

	cur := snap.Point
	remaining := step
	for next := snap.Segment + 1; next < len(route); next++ {
		target := route[next]
		toNext := tr.proj.Distance(cur, target)
		if remaining <= toNext {
			return tr.proj.Destination(cur, remaining, tr.proj.Bearing(cur, target))
		}
		remaining -= toNext
		cur = target
	}
	return route[len(route)-1]
}

// Remaining is the distance in metres from pos, snapped onto the route, to
// the route's final vertex along the polyline. It is 0 for degenerate routes.
func (tr Tracker) Remaining(pos geo.Coordinate, route []geo.Coordinate) float64 {
	snap, ok := tr.Nearest(pos, route)
	if !ok {
		return 0
	}
	total := tr.proj.Distance(snap.Point, route[snap.Segment+1])
	for i := snap.Segment + 1; i < len(route)-1; i++ {
		total += tr.proj.Distance(route[i], route[i+1])
	}
	return total
}
