package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/quillaja/kessler/internal/body"
)

/*

orbit helpers

*/

// CircularSpeed from vis-viva with a = r: v = sqrt(mu/r). r in km, result km/s.
func CircularSpeed(r float64) float64 {
	return math.Sqrt(Mu / r)
}

// Period of a circular orbit of radius r (km) in seconds.
func Period(r float64) float64 {
	return 2 * math.Pi * math.Sqrt(r*r*r/Mu)
}

// MeanMotion of a circular orbit at altitude (km) in revolutions per day.
func MeanMotion(altitude float64) float64 {
	return 86400 / Period(body.EarthRadius+altitude)
}

// CircularState returns position (km) and velocity (km/s) of a circular orbit
// at altitude with the given inclination, right ascension of the ascending
// node and argument of latitude, all in degrees.
func CircularState(altitude, inclination, raan, argLat float64) (pos, vel mgl64.Vec3) {
	r := body.EarthRadius + altitude
	v := CircularSpeed(r)

	// perifocal frame: orbit in the xy plane, ascending node on +x
	sin, cos := math.Sincos(mgl64.DegToRad(argLat))
	pf := mgl64.Vec3{r * cos, r * sin, 0}
	vf := mgl64.Vec3{-v * sin, v * cos, 0}

	rot := mgl64.Rotate3DZ(mgl64.DegToRad(raan)).Mul3(mgl64.Rotate3DX(mgl64.DegToRad(inclination)))
	return rot.Mul3x1(pf), rot.Mul3x1(vf)
}

// RadiusMassDensity is the radius (m) of a sphere of mass (kg) and density
// (kg/m³).
func RadiusMassDensity(mass, density float64) float64 {
	return math.Cbrt((3.0 * mass) / (4.0 * math.Pi * density))
}

// Isotropic maps two uniform samples u, w in [0,1) to a unit vector uniformly
// distributed on the sphere.
func Isotropic(u, w float64) mgl64.Vec3 {
	z := 2*u - 1
	s := math.Sqrt(1 - z*z)
	sin, cos := math.Sincos(2 * math.Pi * w)
	return mgl64.Vec3{s * cos, s * sin, z}
}
