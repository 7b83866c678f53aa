package physics

import (
	"runtime"

	"github.com/dgravesa/go-parallel/parallel"

	"github.com/quillaja/kessler/internal/body"
)

// Integrator advances bodies with semi-implicit (symplectic) Euler.
type Integrator struct {
	Force   ForceModel
	Workers int // goroutines for Pass; <= 0 means GOMAXPROCS
}

// NewIntegrator creates an integrator over force using workers goroutines.
func NewIntegrator(force ForceModel, workers int) *Integrator {
	return &Integrator{Force: force, Workers: workers}
}

// Integrate advances b by dt seconds: velocity first from the current state,
// then position from the updated velocity. It returns false when the new state
// is not finite; b must then be removed rather than integrated again.
func (in *Integrator) Integrate(b *body.Body, dt float64) bool {
	// dv = a*dt
	acc := in.Force.Acceleration(b.Position, b.Velocity, b.Altitude())
	b.Velocity = b.Velocity.Add(acc.Mul(dt))

	// dp = v*dt
	b.Position = b.Position.Add(b.Velocity.Mul(dt))
	b.Epoch += dt

	return b.Finite()
}

// Pass integrates bodies[i] by dt[i] in parallel, skipping entries whose dt is
// zero. failed[i] is set when body i went non-finite. Pass returns once every
// body is done, so the caller may read all of them afterwards.
func (in *Integrator) Pass(bodies []body.Body, dt []float64, failed []bool) {
	n := len(bodies)
	if n == 0 {
		return
	}
	p := in.Workers
	if p <= 0 {
		p = runtime.GOMAXPROCS(0)
	}
	if p > n {
		p = n
	}

	parallel.WithNumGoroutines(p).For(n, func(i, _ int) {
		if dt[i] == 0 {
			return
		}
		failed[i] = !in.Integrate(&bodies[i], dt[i])
	})
}
