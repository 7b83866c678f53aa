// Package breakup turns a collision into a cloud of debris fragments.
package breakup

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/physics"
	"github.com/quillaja/kessler/internal/proximity"
)

var (
	// ErrInvalidConfig is returned for inconsistent generator settings.
	ErrInvalidConfig = errors.New("invalid breakup configuration")
	// ErrMissingParent is returned when a parent of the event is no longer
	// in the store.
	ErrMissingParent = errors.New("collision parent not in store")
)

// Policy decides what happens when new fragments would exceed the debris cap.
type Policy uint8

// cap policies
const (
	EvictOldest Policy = iota // remove the oldest non-pinned debris to make room
	Suppress                  // generate only as many fragments as fit
)

func (p Policy) String() string {
	switch p {
	case EvictOldest:
		return "evict-oldest"
	case Suppress:
		return "suppress"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler so policies can be named in
// config files.
func (p *Policy) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "evict-oldest", "evict":
		*p = EvictOldest
	case "suppress":
		*p = Suppress
	default:
		return fmt.Errorf("debris policy %q: %w", text, ErrInvalidConfig)
	}
	return nil
}

// Config parameterises fragment generation.
type Config struct {
	BaseFragments     int     `toml:"base_fragments"`
	FragmentsPerLevel int     `toml:"fragments_per_level"`
	MaxFragments      int     `toml:"max_fragments"`
	MinEjectionKmS    float64 `toml:"min_ejection_km_s"`
	MaxEjectionKmS    float64 `toml:"max_ejection_km_s"`
	MassExponent      float64 `toml:"mass_exponent"`  // Pareto shape of the mass weights
	DebrisDensity     float64 `toml:"debris_density"` // kg/m³, sets fragment radius
	ImmunitySec       float64 `toml:"immunity_sec"`   // siblings ignore each other this long
	DebrisCap         int     `toml:"debris_cap"`
	Policy            Policy  `toml:"policy"`
}

// Validate checks every field.
func (c Config) Validate() error {
	var errs []error
	if c.BaseFragments < 1 || c.FragmentsPerLevel < 0 || c.MaxFragments < c.BaseFragments {
		errs = append(errs, fmt.Errorf("fragments base %d per level %d max %d",
			c.BaseFragments, c.FragmentsPerLevel, c.MaxFragments))
	}
	if c.MinEjectionKmS < 0 || c.MaxEjectionKmS < c.MinEjectionKmS {
		errs = append(errs, fmt.Errorf("ejection speed range [%v, %v]", c.MinEjectionKmS, c.MaxEjectionKmS))
	}
	if !(c.MassExponent > 0) || !(c.DebrisDensity > 0) {
		errs = append(errs, fmt.Errorf("mass exponent %v density %v", c.MassExponent, c.DebrisDensity))
	}
	if c.ImmunitySec < 0 || c.DebrisCap < 0 {
		errs = append(errs, fmt.Errorf("immunity %v debris cap %d", c.ImmunitySec, c.DebrisCap))
	}
	if c.Policy > Suppress {
		errs = append(errs, fmt.Errorf("debris policy %s", c.Policy))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Result reports what one breakup did to the store.
type Result struct {
	Event     uint64
	Parents   [2]body.Body // parent state just before removal
	Fragments []body.ID
	Evicted   []body.Body // debris removed to make room
	// Suppressed counts fragments that were not generated because of the cap.
	Suppressed int
}

// Generator creates fragments. It draws from its own seeded stream, so a
// sequence of breakups is reproducible for a given seed.
type Generator struct {
	cfg       Config
	rng       *rand.Rand
	mass      distuv.Pareto
	ejection  distuv.Uniform
	unit      distuv.Uniform
	nextEvent uint64
}

// NewGenerator creates a generator drawing from seed.
func NewGenerator(cfg Config, seed uint64) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{cfg: cfg}
	g.Reseed(seed)
	return g, nil
}

// Reseed restarts the random stream and the event numbering.
func (g *Generator) Reseed(seed uint64) {
	g.rng = rand.New(rand.NewSource(seed))
	g.mass = distuv.Pareto{Xm: 1, Alpha: g.cfg.MassExponent, Src: g.rng}
	g.ejection = distuv.Uniform{Min: g.cfg.MinEjectionKmS, Max: g.cfg.MaxEjectionKmS, Src: g.rng}
	g.unit = distuv.Uniform{Min: 0, Max: 1, Src: g.rng}
	g.nextEvent = 1
}

// Config returns the generator settings.
func (g *Generator) Config() Config { return g.cfg }

// NextEvent is the id the next breakup will carry.
func (g *Generator) NextEvent() uint64 { return g.nextEvent }

// SkipEvents makes sure the next event id is at least next, so fragments of a
// restored population never share an event with new ones.
func (g *Generator) SkipEvents(next uint64) {
	if next > g.nextEvent {
		g.nextEvent = next
	}
}

// Count is the number of fragments a breakup at cascade level produces before
// the cap is applied. It never decreases with level.
func (g *Generator) Count(level int) int {
	if level < 0 {
		level = 0
	}
	n := g.cfg.BaseFragments + g.cfg.FragmentsPerLevel*level
	if n > g.cfg.MaxFragments {
		n = g.cfg.MaxFragments
	}
	return n
}

// Breakup removes both parents of ev from store and adds their fragments.
// The debris cap is enforced according to the configured policy; eviction
// falls back to suppression when there is nothing left to evict.
func (g *Generator) Breakup(store *body.Store, ev proximity.CollisionEvent, level int, now float64) (Result, error) {
	pa, okA := store.Get(ev.A)
	pb, okB := store.Get(ev.B)
	if !okA || !okB || ev.A == ev.B {
		return Result{}, fmt.Errorf("breakup %d-%d: %w", ev.A, ev.B, ErrMissingParent)
	}
	res := Result{Event: g.nextEvent, Parents: [2]body.Body{*pa, *pb}}
	g.nextEvent++

	a, b := res.Parents[0], res.Parents[1]
	store.Remove(a.ID)
	store.Remove(b.ID)

	n := g.fit(store, g.Count(level), &res)
	if n == 0 {
		return res, nil
	}

	// perfectly inelastic: fragments share the parents' center of mass motion
	total := a.Mass + b.Mass
	center := a.Velocity.Mul(a.Mass).Add(b.Velocity.Mul(b.Mass)).Mul(1 / total)
	position := a.Position.Add(b.Position).Mul(0.5)

	weights := make([]float64, n)
	sum := 0.0
	for i := range weights {
		weights[i] = g.mass.Rand()
		sum += weights[i]
	}

	info := body.DebrisInfo{
		Event:       res.Event,
		Generation:  max(a.Generation(), b.Generation()) + 1,
		ImmuneUntil: now + g.cfg.ImmunitySec,
	}
	res.Fragments = make([]body.ID, 0, n)
	for _, w := range weights {
		mass := w / sum * total
		dir := physics.Isotropic(g.unit.Rand(), g.unit.Rand())
		frag := body.Body{
			Position: position,
			Velocity: center.Add(dir.Mul(g.ejection.Rand())),
			Mass:     mass,
			Radius:   physics.RadiusMassDensity(mass, g.cfg.DebrisDensity),
			Epoch:    now,
			Variant:  info,
		}
		res.Fragments = append(res.Fragments, store.Add(frag))
	}
	return res, nil
}

// fit applies the debris cap to a request for n fragments and returns how many
// may be created. A store already above the cap is evicted down far enough
// for the fragments to fit.
func (g *Generator) fit(store *body.Store, n int, res *Result) int {
	room := g.cfg.DebrisCap - store.DebrisCount()
	if n <= room {
		return n
	}
	if g.cfg.Policy == EvictOldest {
		for _, id := range store.OldestDebris(n - room) {
			if old, ok := store.Remove(id); ok {
				res.Evicted = append(res.Evicted, old)
			}
		}
		room = g.cfg.DebrisCap - store.DebrisCount()
	}
	room = max(room, 0)
	if n > room {
		res.Suppressed = n - room
		n = room
	}
	return n
}
