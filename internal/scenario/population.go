// Package scenario seeds populations and plans scripted collision events.
package scenario

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/physics"
)

// ErrNegativeCount is returned for a population with a negative count.
var ErrNegativeCount = errors.New("negative population count")

// Population is the number of bodies seeded per orbit band.
type Population struct {
	LEO    int `toml:"leo"`
	MEO    int `toml:"meo"`
	GEO    int `toml:"geo"`
	Debris int `toml:"debris"` // pre-existing LEO debris
}

// Validate rejects negative counts.
func (p Population) Validate() error {
	if p.LEO < 0 || p.MEO < 0 || p.GEO < 0 || p.Debris < 0 {
		return fmt.Errorf("leo %d meo %d geo %d debris %d: %w", p.LEO, p.MEO, p.GEO, p.Debris, ErrNegativeCount)
	}
	return nil
}

// Total number of bodies.
func (p Population) Total() int { return p.LEO + p.MEO + p.GEO + p.Debris }

// group is a range [lo, hi) chosen with probability weight.
type group struct {
	lo, hi, weight float64
}

// observed LEO altitude distribution, km
var leoAltitudes = []group{
	{160, 300, 0.15},
	{300, 500, 0.30},
	{500, 800, 0.40},
	{800, 1200, 0.10},
	{1200, 2000, 0.05},
}

// LEO inclinations, deg: equatorial, low, medium, high, polar, sun-synchronous, retrograde
var leoInclinations = []group{
	{0, 20, 0.05},
	{20, 45, 0.15},
	{45, 60, 0.20},
	{60, 80, 0.15},
	{80, 100, 0.30},
	{97, 99, 0.10},
	{100, 120, 0.05},
}

// band names recorded on seeded satellites
const (
	BandLEO = "leo"
	BandMEO = "meo"
	BandGEO = "geo"
)

const geoAltitude = 35786.0

// Seeder draws orbits and physical properties from one seeded stream.
type Seeder struct {
	rng     *rand.Rand
	unit    distuv.Uniform
	satMass distuv.Normal
	debMass distuv.LogNormal
}

// NewSeeder creates a seeder drawing from seed.
func NewSeeder(seed uint64) *Seeder {
	rng := rand.New(rand.NewSource(seed))
	return &Seeder{
		rng:     rng,
		unit:    distuv.Uniform{Min: 0, Max: 1, Src: rng},
		satMass: distuv.Normal{Mu: 800, Sigma: 300, Src: rng},
		debMass: distuv.LogNormal{Mu: 0, Sigma: 1.5, Src: rng},
	}
}

// Rand exposes the seeder's stream for scenario planning.
func (s *Seeder) Rand() *rand.Rand { return s.rng }

func (s *Seeder) uniform(lo, hi float64) float64 { return lo + (hi-lo)*s.unit.Rand() }

// pick chooses a group by weight and a value uniformly within it.
func (s *Seeder) pick(groups []group) float64 {
	u := s.unit.Rand()
	cum := 0.0
	for _, g := range groups {
		cum += g.weight
		if u <= cum {
			return s.uniform(g.lo, g.hi)
		}
	}
	last := groups[len(groups)-1]
	return s.uniform(last.lo, last.hi)
}

// Populate adds p to store. The store is not cleared first.
func (s *Seeder) Populate(store *body.Store, p Population) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i := 0; i < p.LEO; i++ {
		store.Add(s.satellite(BandLEO, s.pick(leoAltitudes), s.pick(leoInclinations)))
	}
	for i := 0; i < p.MEO; i++ {
		// navigation constellations
		store.Add(s.satellite(BandMEO, s.uniform(19000, 23500), s.uniform(50, 65)))
	}
	for i := 0; i < p.GEO; i++ {
		store.Add(s.satellite(BandGEO, geoAltitude+s.uniform(-50, 50), s.uniform(0, 0.1)))
	}
	for i := 0; i < p.Debris; i++ {
		store.Add(s.debris(s.pick(leoAltitudes), s.pick(leoInclinations)))
	}
	return nil
}

func (s *Seeder) satellite(band string, altitude, inclination float64) body.Body {
	pos, vel := physics.CircularState(altitude, inclination, s.uniform(0, 360), s.uniform(0, 360))
	return body.Body{
		Position: pos,
		Velocity: vel,
		Mass:     math.Max(math.Abs(s.satMass.Rand()), 50),
		Radius:   s.uniform(1, 3),
		Variant:  body.SatelliteInfo{Band: band, InclinationDeg: inclination},
	}
}

func (s *Seeder) debris(altitude, inclination float64) body.Body {
	pos, vel := physics.CircularState(altitude, inclination, s.uniform(0, 360), s.uniform(0, 360))
	mass := s.debMass.Rand()
	return body.Body{
		Position: pos,
		Velocity: vel,
		Mass:     mass,
		Radius:   physics.RadiusMassDensity(mass, 2700),
		Variant:  body.DebrisInfo{Generation: 1},
	}
}
