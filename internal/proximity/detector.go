// Package proximity finds close approaches and collisions among the bodies
// integrated on a step.
package proximity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/octree"
)

// ErrInvalidConfig is returned for a non-positive broad phase radius or a
// negative margin.
var ErrInvalidConfig = errors.New("invalid proximity configuration")

// CollisionEvent is a confirmed collision. A is always the smaller id.
type CollisionEvent struct {
	A, B             body.ID
	Position         mgl64.Vec3 // km, midpoint of the two bodies
	RelativeVelocity mgl64.Vec3 // km/s, velocity of A relative to B
	Distance         float64    // km, closest approach during the step
	Time             float64    // sim seconds
}

// Detector runs a two-phase pairwise test.
//
// The broad phase keeps pairs within BroadPhaseKm of each other using an
// octree range query. The narrow phase takes the closest approach of the two
// bodies' relative linear motion over the step just integrated and confirms a
// collision when it falls within the combined radius plus MarginKm, so fast
// crossings between two samples are not missed.
type Detector struct {
	BroadPhaseKm float64
	MarginKm     float64

	points    []mgl64.Vec3
	neighbors []int
	windows   []float64
}

// NewDetector creates a detector.
func NewDetector(broadPhaseKm, marginKm float64) (*Detector, error) {
	if !(broadPhaseKm > 0) || marginKm < 0 {
		return nil, fmt.Errorf("broad phase %v km, margin %v km: %w", broadPhaseKm, marginKm, ErrInvalidConfig)
	}
	return &Detector{BroadPhaseKm: broadPhaseKm, MarginKm: marginKm}, nil
}

// Detect returns each colliding pair among candidates once, sorted by (A, B).
// dt is the step length just integrated and now the current sim time.
// Candidates must all be at the same epoch; the result does not depend on
// their order.
func (d *Detector) Detect(candidates []*body.Body, dt, now float64) []CollisionEvent {
	d.windows = d.windows[:0]
	for range candidates {
		d.windows = append(d.windows, dt)
	}
	return d.DetectWindows(candidates, d.windows, now)
}

// DetectWindows is Detect with a window per candidate: windows[i] is the time
// candidates[i] was just integrated over. A pair is checked back over the
// shorter of its two windows, the span both bodies moved linearly.
func (d *Detector) DetectWindows(candidates []*body.Body, windows []float64, now float64) []CollisionEvent {
	if len(candidates) < 2 {
		return nil
	}

	d.points = d.points[:0]
	for _, b := range candidates {
		d.points = append(d.points, b.Position)
	}
	tree := octree.Build(d.points)

	var events []CollisionEvent
	for i, a := range candidates {
		d.neighbors = tree.Within(a.Position, d.BroadPhaseKm, d.neighbors[:0])
		for _, j := range d.neighbors {
			b := candidates[j]
			// each pair is seen from both ends; keep the one from the smaller id
			if j == i || a.ID >= b.ID {
				continue
			}
			if siblings(a, b, now) {
				continue
			}
			if ev, ok := d.narrow(a, b, min(windows[i], windows[j]), now); ok {
				events = append(events, ev)
			}
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].A != events[j].A {
			return events[i].A < events[j].A
		}
		return events[i].B < events[j].B
	})
	return events
}

// narrow confirms a collision between a and b, a.ID < b.ID, over the last dt
// seconds.
func (d *Detector) narrow(a, b *body.Body, dt, now float64) (CollisionEvent, bool) {
	p := b.Position.Sub(a.Position)
	v := b.Velocity.Sub(a.Velocity)

	// time of closest approach within the window, t in [-dt, 0]
	t := 0.0
	if v2 := v.Dot(v); v2 > 0 {
		t = -p.Dot(v) / v2
		if t > 0 {
			t = 0
		} else if t < -dt {
			t = -dt
		}
	}
	dist := p.Add(v.Mul(t)).Len()

	threshold := (a.Radius+b.Radius)/1000 + d.MarginKm
	if dist > threshold {
		return CollisionEvent{}, false
	}
	return CollisionEvent{
		A:                a.ID,
		B:                b.ID,
		Position:         a.Position.Add(b.Position).Mul(0.5),
		RelativeVelocity: a.Velocity.Sub(b.Velocity),
		Distance:         dist,
		Time:             now,
	}, true
}

// fragments of the same breakup ignore each other until their immunity runs
// out.
func siblings(a, b *body.Body, now float64) bool {
	da, ok := a.Variant.(body.DebrisInfo)
	if !ok {
		return false
	}
	db, ok := b.Variant.(body.DebrisInfo)
	if !ok {
		return false
	}
	return da.Event == db.Event && (now < da.ImmuneUntil || now < db.ImmuneUntil)
}
