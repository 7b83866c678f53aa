package scenario

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/quillaja/kessler/internal/body"
)

var (
	// ErrUnknownScenario is returned for a name with no registered scenario.
	ErrUnknownScenario = errors.New("unknown scenario")
	// ErrInvalidParams is returned for out-of-range scenario parameters.
	ErrInvalidParams = errors.New("invalid scenario parameters")
	// ErrNoTargets is returned when the population is too small for the
	// scenario.
	ErrNoTargets = errors.New("not enough satellites for scenario")
)

// Params tune a scenario. Zero values take the scenario's defaults.
type Params struct {
	Collisions       int     // kessler: number of staggered collisions
	IntervalSec      float64 // kessler: sim seconds between collisions
	RelativeSpeedKmS float64 // asat: impactor speed relative to the target
	ImpactorMassKg   float64 // asat
	Target           body.ID // asat: satellite to destroy; 0 picks one
}

func (p Params) validate() error {
	if p.Collisions < 0 || p.IntervalSec < 0 || p.RelativeSpeedKmS < 0 || p.ImpactorMassKg < 0 {
		return fmt.Errorf("%+v: %w", p, ErrInvalidParams)
	}
	return nil
}

// Action is one scripted collision, At sim seconds after the trigger. When
// Impactor is set it is added to the store first and collides with A; B is
// then ignored.
type Action struct {
	At       float64
	A, B     body.ID
	Impactor *body.Body
}

// Plan is what a scenario wants done. Pinned bodies stay rendered until their
// action fires.
type Plan struct {
	Name    string
	Actions []Action
	Pinned  []body.ID
}

// Scenario plans actions against the current population.
type Scenario interface {
	Name() string
	Plan(store *body.Store, p Params, s *Seeder) (Plan, error)
}

var registry = map[string]Scenario{}

func register(sc Scenario) { registry[sc.Name()] = sc }

func init() {
	register(single{})
	register(kessler{})
	register(asat{})
}

// Lookup returns the scenario registered under name.
func Lookup(name string) (Scenario, error) {
	sc, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
	}
	return sc, nil
}

// Names lists the registered scenarios in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// satellites returns the satellite ids of store in ascending order so that
// draws depend only on the seed.
func satellites(store *body.Store) []body.ID {
	var ids []body.ID
	for _, id := range store.IDs() {
		if b, _ := store.Get(id); b.Kind() == body.Satellite {
			ids = append(ids, id)
		}
	}
	return ids
}

// pairs draws n disjoint satellite pairs.
func pairs(store *body.Store, n int, s *Seeder) ([][2]body.ID, error) {
	ids := satellites(store)
	if len(ids) < 2*n {
		return nil, fmt.Errorf("%d pairs from %d satellites: %w", n, len(ids), ErrNoTargets)
	}
	s.Rand().Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	out := make([][2]body.ID, n)
	for i := range out {
		out[i] = [2]body.ID{ids[2*i], ids[2*i+1]}
	}
	return out, nil
}

/* scenarios */

// single collides two random satellites now.
type single struct{}

func (single) Name() string { return "single" }

func (single) Plan(store *body.Store, p Params, s *Seeder) (Plan, error) {
	if err := p.validate(); err != nil {
		return Plan{}, err
	}
	ps, err := pairs(store, 1, s)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Name: "single", Actions: []Action{{A: ps[0][0], B: ps[0][1]}}}, nil
}

// kessler staggers several collisions to seed a cascade. Targets are pinned
// so they can be watched until they break up.
type kessler struct{}

func (kessler) Name() string { return "kessler" }

func (kessler) Plan(store *body.Store, p Params, s *Seeder) (Plan, error) {
	if err := p.validate(); err != nil {
		return Plan{}, err
	}
	if p.Collisions == 0 {
		p.Collisions = 5
	}
	if p.IntervalSec == 0 {
		p.IntervalSec = 60
	}
	ps, err := pairs(store, p.Collisions, s)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Name: "kessler"}
	for i, pr := range ps {
		plan.Actions = append(plan.Actions, Action{At: float64(i) * p.IntervalSec, A: pr[0], B: pr[1]})
		plan.Pinned = append(plan.Pinned, pr[0], pr[1])
	}
	return plan, nil
}

// asat destroys one satellite with a kinetic impactor on a direct-ascent
// path: the impactor arrives radially from below.
type asat struct{}

func (asat) Name() string { return "asat" }

func (asat) Plan(store *body.Store, p Params, s *Seeder) (Plan, error) {
	if err := p.validate(); err != nil {
		return Plan{}, err
	}
	if p.RelativeSpeedKmS == 0 {
		p.RelativeSpeedKmS = 10
	}
	if p.ImpactorMassKg == 0 {
		p.ImpactorMassKg = 20
	}

	target := p.Target
	if target == 0 {
		ids := satellites(store)
		if len(ids) == 0 {
			return Plan{}, fmt.Errorf("asat: %w", ErrNoTargets)
		}
		target = ids[s.Rand().Intn(len(ids))]
	}
	t, ok := store.Get(target)
	if !ok || t.Kind() != body.Satellite {
		return Plan{}, fmt.Errorf("asat target %d: %w", target, ErrNoTargets)
	}

	up := t.Position.Normalize()
	impactor := body.Body{
		Position: t.Position.Sub(up.Mul(0.001)),
		Velocity: t.Velocity.Add(up.Mul(p.RelativeSpeedKmS)),
		Mass:     p.ImpactorMassKg,
		Radius:   0.5,
		Epoch:    t.Epoch,
		Variant:  body.SatelliteInfo{Band: "impactor", InclinationDeg: inclination(t.Position, t.Velocity)},
	}
	return Plan{
		Name:    "asat",
		Actions: []Action{{A: target, Impactor: &impactor}},
		Pinned:  []body.ID{target},
	}, nil
}

// inclination of the orbit plane through position and velocity, deg.
func inclination(pos, vel mgl64.Vec3) float64 {
	h := pos.Cross(vel)
	if h.Len() == 0 {
		return 0
	}
	cos := mgl64.Clamp(h.Normalize().Z(), -1, 1)
	return mgl64.RadToDeg(math.Acos(cos))
}
