// Package body holds the simulated population: the Body entity and the Store
// that owns every live body.
package body

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// EarthRadius is the mean Earth radius in km. Altitudes are measured from it.
const EarthRadius = 6371.0

// ID is a stable handle for a body. IDs are never reused within a Store, so a
// smaller ID always means an earlier creation.
type ID uint64

// Kind tags the variant a body carries.
type Kind uint8

// body kinds
const (
	Satellite Kind = iota
	Debris
)

func (k Kind) String() string {
	switch k {
	case Satellite:
		return "satellite"
	case Debris:
		return "debris"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Variant is the closed set of per-kind data. Only SatelliteInfo and
// DebrisInfo implement it.
type Variant interface {
	Kind() Kind
	variant()
}

// SatelliteInfo is carried by intact spacecraft.
type SatelliteInfo struct {
	Band           string  // orbit band the body was seeded into
	InclinationDeg float64 // inclination at seeding
}

func (SatelliteInfo) Kind() Kind { return Satellite }
func (SatelliteInfo) variant() {}

// DebrisInfo is carried by fragments produced by a breakup.
type DebrisInfo struct {
	Event       uint64  // breakup event that produced the fragment
	Generation  int     // 1 for fragments of intact bodies, parent generation+1 otherwise
	ImmuneUntil float64 // sim seconds; siblings of the same event don't collide before this
}

func (DebrisInfo) Kind() Kind { return Debris }
func (DebrisInfo) variant() {}

// Body is one orbiting object.
type Body struct {
	ID       ID
	Position mgl64.Vec3 // km, Earth-centered inertial
	Velocity mgl64.Vec3 // km/s
	Mass     float64    // kg
	Radius   float64    // m
	Epoch    float64    // sim seconds at which Position/Velocity are valid
	Variant  Variant
}

// Kind of the body's variant. A body without a variant is treated as a satellite.
func (b *Body) Kind() Kind {
	if b.Variant == nil {
		return Satellite
	}
	return b.Variant.Kind()
}

// Altitude above the mean Earth radius in km.
func (b *Body) Altitude() float64 {
	return b.Position.Len() - EarthRadius
}

// Finite reports whether position and velocity contain only finite values.
func (b *Body) Finite() bool {
	for i := 0; i < 3; i++ {
		if !finite(b.Position[i]) || !finite(b.Velocity[i]) {
			return false
		}
	}
	return true
}

// Generation of a debris fragment, 0 for satellites.
func (b *Body) Generation() int {
	if d, ok := b.Variant.(DebrisInfo); ok {
		return d.Generation
	}
	return 0
}

func (b Body) String() string {
	return fmt.Sprintf("%s %d m: %.1f r: %.2f\np: [%.2f, %.2f, %.2f]\nv: [%.4f, %.4f, %.4f]\n",
		b.Kind(), b.ID, b.Mass, b.Radius,
		b.Position[0], b.Position[1], b.Position[2],
		b.Velocity[0], b.Velocity[1], b.Velocity[2])
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
