package engine

import (
	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/proximity"
)

// Step advances the simulation by one frame of deltaMs wall milliseconds.
// The clock turns the frame into fixed substeps; substeps that do not fit in
// the wall budget are deferred to later frames.
func (e *Engine) Step(deltaMs float64) StepReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report StepReport
	report.Substeps = e.stepper.Advance(deltaMs, e.multiplier)
	start := e.clock.Now()
	for i := 0; i < report.Substeps; i++ {
		if i > 0 && e.budget > 0 && e.clock.Now().Sub(start) >= e.budget {
			report.Deferred = report.Substeps - i
			e.stepper.Defer(report.Deferred)
			break
		}
		e.substep(&report)
		report.Ran++
	}
	report.SimTime = e.now
	report.Pending = e.stepper.Pending()
	report.Alpha = e.stepper.Alpha()
	e.publish()
	return report
}

// substep advances every due body to the next fixed epoch, removes the ones
// that reentered or went non-finite, then resolves collisions among the bodies
// just integrated.
func (e *Engine) substep(report *StepReport) {
	h := e.stepper.FixedStep()
	e.step++
	e.now += h

	// 1) integrate
	e.lod.Update(e.store, e.step)
	bodies := e.store.Bodies()
	e.dt = resize(e.dt, len(bodies))
	e.failed = resizeBool(e.failed, len(bodies))

	// a body never lags more than the slowest band's stride; culled bodies
	// are frozen rather than integrated over an unbounded gap
	maxLag := float64(e.lod.MaxStride()) * h
	for i := range bodies {
		b := &bodies[i]
		e.dt[i], e.failed[i] = 0, false
		if !e.lod.Due(b.ID, e.step) {
			continue
		}
		lag := e.now - b.Epoch
		if lag > maxLag {
			lag = maxLag
		}
		if lag > 0 {
			e.dt[i] = lag
		}
	}
	e.integrator.Pass(bodies, e.dt, e.failed)

	// 2) remove poisoned and reentered bodies
	var gone []Removal
	for i := range bodies {
		b := &bodies[i]
		switch {
		case e.failed[i]:
			gone = append(gone, Removal{Body: *b, Reason: Poisoned, Time: e.now})
		case b.Altitude() < e.cfg.Physics.ReentryAltitudeKm:
			gone = append(gone, Removal{Body: *b, Reason: Reentry, Time: e.now})
		case e.dt[i] > 0:
			b.Epoch = e.now
			e.lags[b.ID] = e.dt[i]
		}
	}
	for _, r := range gone {
		e.store.Remove(r.Body.ID)
		e.removals.Publish(r)
	}
	report.Removed += len(gone)

	// 3) detect among bodies now at this epoch
	// a pair is checked over the stride both bodies were just integrated
	// across
	e.due, e.windows = e.due[:0], e.windows[:0]
	bodies = e.store.Bodies()
	for i := range bodies {
		if bodies[i].Epoch == e.now {
			lag, ok := e.lags[bodies[i].ID]
			if !ok {
				lag = h
			}
			e.due = append(e.due, &bodies[i])
			e.windows = append(e.windows, lag)
		}
	}
	found := e.detector.DetectWindows(e.due, e.windows, e.now)
	e.due = e.due[:0]
	clear(e.lags)

	// 4) breakups, one at a time; a body consumed by an earlier breakup in
	// this substep makes later events naming it stale
	for _, ev := range found {
		if !e.store.Has(ev.A) || !e.store.Has(ev.B) {
			continue
		}
		e.collide(ev, report)
	}

	// 5) scripted effects that came due
	e.runScheduled(report)
}

// collide breaks up the pair of ev and records the collision.
func (e *Engine) collide(ev proximity.CollisionEvent, report *StepReport) bool {
	res, err := e.breakup.Breakup(e.store, ev, e.tracker.Level(), e.now)
	if err != nil {
		e.logger.Printf("breakup %d-%d: %v", ev.A, ev.B, err)
		return false
	}

	e.collisions.Publish(ev)
	for _, p := range res.Parents {
		e.removals.Publish(Removal{Body: p, Reason: Collided, Time: e.now})
	}
	for _, old := range res.Evicted {
		e.removals.Publish(Removal{Body: old, Reason: Evicted, Time: e.now})
	}
	if len(res.Evicted) > 0 || res.Suppressed > 0 {
		e.logger.Printf("debris cap %d: evicted %d, suppressed %d",
			e.cfg.Breakup.DebrisCap, len(res.Evicted), res.Suppressed)
	}
	e.evicted += len(res.Evicted)
	e.suppressed += res.Suppressed

	change, changed := e.tracker.Record(e.now)
	e.tracker.AddDebris(len(res.Fragments))
	if changed {
		e.cascades.Publish(change)
		if change.From != change.To {
			e.logger.Printf("cascade %s -> %s at level %d after %d collisions",
				change.From, change.To, change.ToLevel, change.CollisionCount)
		}
	}

	if report != nil {
		report.Collisions++
		report.Fragments += len(res.Fragments)
		report.Removed += 2 + len(res.Evicted)
	}
	return true
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

func resizeBool(s []bool, n int) []bool {
	if cap(s) < n {
		return make([]bool, n)
	}
	return s[:n]
}

// event builds a collision between two bodies that did not meet on their
// own: b is moved onto a, and the pair is ordered by id.
func event(a, b *body.Body, now float64) proximity.CollisionEvent {
	b.Position = a.Position
	if b.ID < a.ID {
		a, b = b, a
	}
	return proximity.CollisionEvent{
		A:                a.ID,
		B:                b.ID,
		Position:         a.Position,
		RelativeVelocity: a.Velocity.Sub(b.Velocity),
		Time:             now,
	}
}
