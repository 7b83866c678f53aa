// Package clock converts variable frame deltas into fixed simulation
// substeps.
package clock

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidStep is returned for a non-positive fixed step, frame clamp or
// substep cap.
var ErrInvalidStep = errors.New("invalid stepper configuration")

// Stepper is an accumulator-based fixed-step clock.
//
// Frame deltas are wall milliseconds; the accumulator holds simulated seconds.
// FixedStep bounds numerical error while the time multiplier only changes how
// many substeps a frame produces.
type Stepper struct {
	fixedStep   float64 // simulated seconds per substep
	maxFrameMs  float64
	maxSubsteps int

	accumulator float64
	dropped     float64 // simulated seconds discarded by the substep cap
}

// NewStepper creates a stepper. fixedStep is in simulated seconds, maxFrameMs
// clamps a single frame delta and maxSubsteps caps substeps per Advance.
func NewStepper(fixedStep, maxFrameMs float64, maxSubsteps int) (*Stepper, error) {
	if !(fixedStep > 0) || !(maxFrameMs > 0) || maxSubsteps < 1 {
		return nil, fmt.Errorf("fixed step %v, max frame %vms, max substeps %d: %w",
			fixedStep, maxFrameMs, maxSubsteps, ErrInvalidStep)
	}
	return &Stepper{fixedStep: fixedStep, maxFrameMs: maxFrameMs, maxSubsteps: maxSubsteps}, nil
}

// Advance adds one frame and returns how many substeps to run.
func (s *Stepper) Advance(frameDeltaMs, timeMultiplier float64) int {
	if !(frameDeltaMs > 0) || !(timeMultiplier > 0) || math.IsInf(timeMultiplier, 0) {
		return 0
	}
	// a stall must not turn into a burst of catch-up work
	if frameDeltaMs > s.maxFrameMs {
		frameDeltaMs = s.maxFrameMs
	}
	s.accumulator += frameDeltaMs * timeMultiplier / 1000

	n := 0
	for s.accumulator >= s.fixedStep && n < s.maxSubsteps {
		s.accumulator -= s.fixedStep
		n++
	}
	// over the cap: drop whole steps rather than spiral
	if s.accumulator >= s.fixedStep {
		rest := math.Mod(s.accumulator, s.fixedStep)
		s.dropped += s.accumulator - rest
		s.accumulator = rest
	}
	return n
}

// Defer hands back n substeps that were emitted but not run. They are retried
// by later Advance calls, up to the substep cap.
func (s *Stepper) Defer(n int) {
	if n <= 0 {
		return
	}
	s.accumulator += float64(n) * s.fixedStep
	limit := float64(s.maxSubsteps) * s.fixedStep
	if s.accumulator > limit {
		s.dropped += s.accumulator - limit
		s.accumulator = limit
	}
}

// FixedStep in simulated seconds.
func (s *Stepper) FixedStep() float64 { return s.fixedStep }

// Pending is the number of whole substeps waiting in the accumulator.
func (s *Stepper) Pending() int { return int(s.accumulator / s.fixedStep) }

// Alpha is the fraction of a substep left in the accumulator beyond the
// pending whole substeps, for render interpolation.
func (s *Stepper) Alpha() float64 {
	a := s.accumulator / s.fixedStep
	return a - math.Floor(a)
}

// Dropped is the total simulated time discarded by the substep cap.
func (s *Stepper) Dropped() float64 { return s.dropped }

// Reset empties the accumulator.
func (s *Stepper) Reset() {
	s.accumulator = 0
	s.dropped = 0
}
