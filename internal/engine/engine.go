// Package engine runs the simulation: it owns the population and drives
// integration, collision detection, breakups and the cascade tracker on a
// fixed-step clock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/breakup"
	"github.com/quillaja/kessler/internal/cascade"
	"github.com/quillaja/kessler/internal/clock"
	"github.com/quillaja/kessler/internal/config"
	"github.com/quillaja/kessler/internal/events"
	"github.com/quillaja/kessler/internal/lod"
	"github.com/quillaja/kessler/internal/physics"
	"github.com/quillaja/kessler/internal/proximity"
	"github.com/quillaja/kessler/internal/sampler"
	"github.com/quillaja/kessler/internal/scenario"
)

var (
	// ErrInvalidConfig is returned for rejected settings. Nothing is changed.
	ErrInvalidConfig = errors.New("invalid engine configuration")
	// ErrRatio is returned when the simulated/rendered ratio is too small.
	ErrRatio = errors.New("simulated to rendered ratio below minimum")
	// ErrUnknownBody is returned for an id that is not in the population.
	ErrUnknownBody = errors.New("unknown body")
	// ErrInvalidBody is returned when adding a body with a bad state.
	ErrInvalidBody = errors.New("invalid body")
	// ErrDebrisCap is returned when a population would start with more
	// debris than the configured cap.
	ErrDebrisCap = errors.New("debris above cap")
)

// Options are the engine's collaborators. Zero values are usable.
type Options struct {
	Logger       *log.Logger        // nil discards
	TimeProvider clock.TimeProvider // nil uses the system clock
}

// Engine is the simulation facade. Its methods may be called from several
// goroutines; Stats and RenderIndices never wait on a running step.
type Engine struct {
	mu     sync.Mutex
	cfg    config.Config
	logger *log.Logger
	clock  clock.TimeProvider
	budget time.Duration

	store      *body.Store
	integrator *physics.Integrator
	stepper    *clock.Stepper
	lod        *lod.Scheduler
	detector   *proximity.Detector
	breakup    *breakup.Generator
	tracker    *cascade.Tracker
	sampler    *sampler.Sampler
	seeder     *scenario.Seeder

	runID      uuid.UUID
	step       uint64
	now        float64 // sim seconds
	multiplier float64
	evicted    int
	suppressed int

	// scratch for the integration pass
	dt      []float64
	failed  []bool
	due     []*body.Body
	windows []float64
	lags    map[body.ID]float64 // stride each body was just integrated over

	// scripted effects share one cancellation scope
	ctx     context.Context
	cancel  context.CancelFunc
	pending []scheduled

	collisions *events.Bus[proximity.CollisionEvent]
	removals   *events.Bus[Removal]
	cascades   *events.Bus[cascade.Change]

	stats atomic.Pointer[Stats]
}

// New creates an empty engine.
func New(cfg config.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = clock.NewMonotonicTimeProvider()
	}

	e := &Engine{
		cfg:        cfg,
		logger:     opts.Logger,
		clock:      opts.TimeProvider,
		budget:     time.Duration(cfg.Clock.StepBudgetMs * float64(time.Millisecond)),
		store:      body.NewStore(cfg.Render.Simulated),
		integrator: physics.NewIntegrator(physics.NewForceModel(cfg.Physics.DragCeilingKm, cfg.Physics.BallisticCoeff), cfg.Workers),
		seeder:     scenario.NewSeeder(cfg.Seed),
		runID:      uuid.New(),
		multiplier: cfg.Clock.TimeMultiplier,
		collisions: events.NewBus[proximity.CollisionEvent](),
		removals:   events.NewBus[Removal](),
		cascades:   events.NewBus[cascade.Change](),
		lags:       make(map[body.ID]float64),
	}

	var err error
	if e.stepper, err = clock.NewStepper(cfg.Clock.FixedStepSec, cfg.Clock.MaxFrameMs, cfg.Clock.MaxSubsteps); err != nil {
		return nil, err
	}
	if e.lod, err = lod.NewScheduler(cfg.LOD); err != nil {
		return nil, err
	}
	if e.detector, err = proximity.NewDetector(cfg.Proximity.BroadPhaseKm, cfg.Proximity.MarginKm); err != nil {
		return nil, err
	}
	if e.breakup, err = breakup.NewGenerator(cfg.Breakup, cfg.Seed); err != nil {
		return nil, err
	}
	if e.tracker, err = cascade.NewTracker(cfg.Cascade.CollisionsPerLevel, cfg.Cascade.LevelCeiling); err != nil {
		return nil, err
	}
	if e.sampler, err = sampler.New(cfg.Render.Config, cfg.Render.Simulated, cfg.Render.Rendered, e.clock, cfg.Seed); err != nil {
		return nil, err
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.publish()
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config { return e.cfg }

// Collisions publishes every collision that produced a breakup.
func (e *Engine) Collisions() *events.Bus[proximity.CollisionEvent] { return e.collisions }

// Removals publishes every body taken out of the population.
func (e *Engine) Removals() *events.Bus[Removal] { return e.removals }

// CascadeChanges publishes cascade phase and level transitions.
func (e *Engine) CascadeChanges() *events.Bus[cascade.Change] { return e.cascades }

// Populate replaces the population with a freshly seeded one and starts a
// new run. Pending scripted effects are cancelled. A negative count is
// rejected without touching the current population.
func (e *Engine) Populate(p scenario.Population) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Debris > e.cfg.Breakup.DebrisCap {
		return fmt.Errorf("%d debris, cap %d: %w", p.Debris, e.cfg.Breakup.DebrisCap, ErrDebrisCap)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clear()
	if err := e.seeder.Populate(e.store, p); err != nil {
		return err
	}
	e.publish()
	e.logger.Printf("populated %d bodies: %d leo, %d meo, %d geo, %d debris",
		e.store.Len(), p.LEO, p.MEO, p.GEO, p.Debris)
	return nil
}

// Reset empties the population and starts a new run.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear()
	e.publish()
}

// clear returns every component to its initial state. The reference point
// survives; it belongs to the viewer, not the run.
func (e *Engine) clear() {
	e.cancelScheduled()
	e.store.Clear()

	ref, hasRef := e.lod.Reference()
	e.lod.Reset()
	if hasRef {
		e.lod.SetReference(ref)
	}

	e.tracker.Reset()
	e.stepper.Reset()
	e.breakup.Reseed(e.cfg.Seed)
	e.seeder = scenario.NewSeeder(e.cfg.Seed)
	e.runID = uuid.New()
	e.step, e.now = 0, 0
	e.evicted, e.suppressed = 0, 0
}

// AddBody inserts b with a fresh id at the current sim time. Its state must
// be finite with positive mass, above the reentry altitude. Debris is refused
// once the debris cap is reached.
func (e *Engine) AddBody(b body.Body) (body.ID, error) {
	if !b.Finite() || !(b.Mass > 0) || b.Radius < 0 || b.Altitude() < e.cfg.Physics.ReentryAltitudeKm {
		return 0, fmt.Errorf("mass %v radius %v altitude %.1f km: %w", b.Mass, b.Radius, b.Altitude(), ErrInvalidBody)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b.Epoch = e.now
	if b.Variant == nil {
		b.Variant = body.SatelliteInfo{}
	}
	if b.Kind() == body.Debris && e.store.DebrisCount() >= e.cfg.Breakup.DebrisCap {
		return 0, fmt.Errorf("add debris: %w", ErrDebrisCap)
	}
	id := e.store.Add(b)
	e.publish()
	return id, nil
}

// Body returns a copy of the body with id.
func (e *Engine) Body(id uint64) (body.Body, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.store.Get(body.ID(id))
	if !ok {
		return body.Body{}, false
	}
	return *b, true
}

// Pin keeps id in the rendered subset until it is removed or unpinned.
func (e *Engine) Pin(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.Pin(body.ID(id)) {
		return fmt.Errorf("pin %d: %w", id, ErrUnknownBody)
	}
	e.publish()
	return nil
}

// Unpin releases a pin.
func (e *Engine) Unpin(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Unpin(body.ID(id))
	e.publish()
}

// SetReference sets the viewer position used for level of detail.
func (e *Engine) SetReference(p mgl64.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lod.SetReference(p)
}

// ClearReference disables level of detail; every body is updated each step.
func (e *Engine) ClearReference() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lod.ClearReference()
}

// SetTimeMultiplier sets simulated seconds per wall second.
func (e *Engine) SetTimeMultiplier(m float64) error {
	if !(m > 0) || math.IsInf(m, 0) {
		return fmt.Errorf("time multiplier %v: %w", m, ErrInvalidConfig)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiplier = m
	return nil
}

// TimeMultiplier returns simulated seconds per wall second.
func (e *Engine) TimeMultiplier() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.multiplier
}

// ConfigureRendering sets the simulated and rendered counts. A ratio below
// the minimum is rejected with ErrRatio and the previous configuration stays.
// An accepted change cancels pending scripted effects.
func (e *Engine) ConfigureRendering(simulated, rendered int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sampler.Reconfigure(simulated, rendered) {
		r, _ := sampler.Ratio(simulated, rendered, e.cfg.Render.MinRatio)
		return fmt.Errorf("%d simulated for %d rendered (ratio %.3f, minimum %.1f): %w",
			simulated, rendered, r, e.cfg.Render.MinRatio, ErrRatio)
	}
	e.cancelScheduled()
	e.publish()
	return nil
}

// RenderConfig returns the simulated and rendered counts.
func (e *Engine) RenderConfig() (simulated, rendered int) { return e.sampler.Counts() }

// RenderIndices returns the ids to draw, pinned ids first.
func (e *Engine) RenderIndices() []uint64 { return e.sampler.Indices() }

// Stats returns the statistics published after the last mutation.
func (e *Engine) Stats() Stats { return *e.stats.Load() }

// publish makes the current state visible to Stats and the render sampler.
// Callers hold e.mu.
func (e *Engine) publish() {
	bodies := e.store.Bodies()
	decaying := 0
	for i := range bodies {
		if bodies[i].Altitude() < e.cfg.Physics.AnomalyAltitudeKm {
			decaying++
		}
	}
	status := e.tracker.Status()
	state := e.tracker.State()

	ids := e.store.IDs()
	pinned := e.store.PinnedIDs()
	committed := &sampler.Committed{IDs: make([]uint64, len(ids)), Pinned: make([]uint64, len(pinned))}
	for i, id := range ids {
		committed.IDs[i] = uint64(id)
	}
	for i, id := range pinned {
		committed.Pinned[i] = uint64(id)
	}
	e.sampler.Commit(committed)

	e.stats.Store(&Stats{
		RunID:           e.runID,
		Step:            e.step,
		SimTime:         e.now,
		Total:           e.store.Len(),
		Satellites:      e.store.SatelliteCount(),
		Debris:          e.store.DebrisCount(),
		Decaying:        decaying,
		Pinned:          len(pinned),
		Collisions:      status.CollisionCount,
		DebrisGenerated: status.DebrisGenerated,
		Level:           status.Level,
		Phase:           state.Phase,
		Terminal:        status.Terminal,
		Evicted:         e.evicted,
		Suppressed:      e.suppressed,
		Bands:           e.lod.Counts(),
		Dropped:         e.stepper.Dropped(),
		Scheduled:       len(e.pending),
	})
}
