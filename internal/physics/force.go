// Package physics computes the forces on an orbiting body and advances its
// state.
package physics

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Mu is the Earth gravitational parameter GM in km³/s².
const Mu = 398600.4418

// ForceModel evaluates point-mass gravity plus atmospheric drag below a
// ceiling altitude. It holds only constants and is safe to share between
// goroutines.
type ForceModel struct {
	Mu             float64 // km³/s²
	DragCeiling    float64 // km; no drag at or above this altitude
	BallisticCoeff float64 // Cd·A/m in m²/kg
}

// NewForceModel returns a model with Earth gravity and the given drag
// parameters.
func NewForceModel(dragCeiling, ballisticCoeff float64) ForceModel {
	return ForceModel{Mu: Mu, DragCeiling: dragCeiling, BallisticCoeff: ballisticCoeff}
}

// Acceleration in km/s² on a body at position (km) moving at velocity (km/s)
// with the given altitude (km).
func (f ForceModel) Acceleration(position, velocity mgl64.Vec3, altitude float64) mgl64.Vec3 {
	// a = -mu * r / |r|^3
	r2 := position.Dot(position)
	r := math.Sqrt(r2)
	acc := position.Mul(-f.Mu / (r2 * r))

	if altitude < f.DragCeiling && f.BallisticCoeff > 0 {
		acc = acc.Add(f.drag(velocity, altitude))
	}
	return acc
}

// drag opposes velocity with magnitude 1/2 * B * rho * |v|^2.
func (f ForceModel) drag(velocity mgl64.Vec3, altitude float64) mgl64.Vec3 {
	rho := Density(altitude) // kg/m³
	v := velocity.Len()      // km/s
	if v == 0 {
		return mgl64.Vec3{}
	}
	// (m/s)² -> km/s² is a factor of 1e6/1e3
	k := -0.5 * f.BallisticCoeff * rho * 1000 * v
	return velocity.Mul(k)
}

// exponential atmosphere bands: base altitude (km), base density (kg/m³),
// scale height (km).
var atmosphere = [...]struct{ h0, rho0, scale float64 }{
	{0, 1.225, 7.249},
	{25, 3.899e-2, 6.349},
	{30, 1.774e-2, 6.682},
	{40, 3.972e-3, 7.554},
	{50, 1.057e-3, 8.382},
	{60, 3.206e-4, 7.714},
	{70, 8.770e-5, 6.549},
	{80, 1.905e-5, 5.799},
	{90, 3.396e-6, 5.382},
	{100, 5.297e-7, 5.877},
	{110, 9.661e-8, 7.263},
	{120, 2.438e-8, 9.473},
	{130, 8.484e-9, 12.636},
	{140, 3.845e-9, 16.149},
	{150, 2.070e-9, 22.523},
	{180, 5.464e-10, 29.740},
	{200, 2.789e-10, 37.105},
	{250, 7.248e-11, 45.546},
	{300, 2.418e-11, 53.628},
}

// Density of the atmosphere at altitude (km) in kg/m³.
func Density(altitude float64) float64 {
	if altitude < 0 {
		altitude = 0
	}
	// last band whose base is <= altitude
	i := sort.Search(len(atmosphere), func(i int) bool { return atmosphere[i].h0 > altitude }) - 1
	band := atmosphere[i]
	return band.rho0 * math.Exp(-(altitude-band.h0)/band.scale)
}
