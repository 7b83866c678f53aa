package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/scenario"
)

// scheduled is a scripted collision waiting for its sim time.
type scheduled struct {
	ctx    context.Context
	at     float64
	action scenario.Action
}

// TriggerCollision breaks up a and b now, wherever they are: b is brought to
// a's position first.
func (e *Engine) TriggerCollision(a, b uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pa, okA := e.store.Get(body.ID(a))
	pb, okB := e.store.Get(body.ID(b))
	if !okA || !okB || a == b {
		return fmt.Errorf("collide %d with %d: %w", a, b, ErrUnknownBody)
	}
	e.collide(event(pa, pb, e.now), nil)
	e.publish()
	return nil
}

// TriggerScenario plans the named scenario against the current population.
// Actions due now run immediately; later ones run as sim time reaches them
// unless cancelled by Populate, Reset, Restore, ConfigureRendering or
// CancelScenarios.
func (e *Engine) TriggerScenario(name string, p scenario.Params) error {
	sc, err := scenario.Lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := sc.Plan(e.store, p, e.seeder)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", name, err)
	}
	for _, id := range plan.Pinned {
		e.store.Pin(id)
	}
	for _, a := range plan.Actions {
		e.pending = append(e.pending, scheduled{ctx: e.ctx, at: e.now + a.At, action: a})
	}
	sort.SliceStable(e.pending, func(i, j int) bool { return e.pending[i].at < e.pending[j].at })
	e.logger.Printf("scenario %s: %d collisions scheduled", plan.Name, len(plan.Actions))

	e.runScheduled(nil)
	e.publish()
	return nil
}

// CancelScenarios drops every pending scripted collision and releases the
// pins they hold.
func (e *Engine) CancelScenarios() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelScheduled()
	e.publish()
}

func (e *Engine) cancelScheduled() {
	e.cancel()
	for _, s := range e.pending {
		e.store.Unpin(s.action.A)
		e.store.Unpin(s.action.B)
	}
	e.pending = nil
	e.ctx, e.cancel = context.WithCancel(context.Background())
}

// runScheduled executes the pending actions whose time has come.
func (e *Engine) runScheduled(report *StepReport) {
	for len(e.pending) > 0 && e.pending[0].at <= e.now {
		s := e.pending[0]
		e.pending = e.pending[1:]
		if s.ctx.Err() != nil {
			continue
		}
		e.execute(s.action, report)
	}
}

func (e *Engine) execute(a scenario.Action, report *StepReport) {
	defer e.store.Unpin(a.A)
	defer e.store.Unpin(a.B)

	if !e.store.Has(a.A) || (a.Impactor == nil && !e.store.Has(a.B)) {
		// a target already broke up or reentered
		e.logger.Printf("scripted collision %d-%d skipped: target gone", a.A, a.B)
		return
	}
	if a.Impactor != nil {
		imp := *a.Impactor
		imp.Epoch = e.now
		a.B = e.store.Add(imp)
	}
	// looked up after Add, which may move the bodies
	pa, _ := e.store.Get(a.A)
	pb, _ := e.store.Get(a.B)
	e.collide(event(pa, pb, e.now), report)
}
