// Package sampler picks the subset of simulated bodies handed to a renderer.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"

	"github.com/quillaja/kessler/internal/clock"
)

// ErrInvalidConfig is returned for bad sampler settings.
var ErrInvalidConfig = errors.New("invalid sampler configuration")

// ratioTolerance is the relative slack on the minimum ratio check, so that
// e.g. 30000/15000 is accepted despite rounding.
const ratioTolerance = 1e-9

// Config sets the sampling limits and the swap pacing.
type Config struct {
	MinRatio        float64 `toml:"min_ratio"`          // simulated/rendered must be at least this
	SwapRate        float64 `toml:"swap_rate"`          // fraction of rendered slots replaced per second
	MinDwellSec     float64 `toml:"min_dwell_sec"`      // a slot keeps its body at least this long
	MaxSwapsPerCall int     `toml:"max_swaps_per_call"` // 0 means no per-call limit
}

// Validate checks every field.
func (c Config) Validate() error {
	if !(c.MinRatio >= 1) || c.SwapRate < 0 || c.MinDwellSec < 0 || c.MaxSwapsPerCall < 0 {
		return fmt.Errorf("min ratio %v swap rate %v dwell %v max swaps %d: %w",
			c.MinRatio, c.SwapRate, c.MinDwellSec, c.MaxSwapsPerCall, ErrInvalidConfig)
	}
	return nil
}

// Committed is a published view of the population: ids in ascending order and
// the pinned subset, also ascending.
type Committed struct {
	IDs    []uint64
	Pinned []uint64
}

func (c *Committed) has(id uint64) bool {
	_, ok := slices.BinarySearch(c.IDs, id)
	return ok
}

// Sampler keeps a stable set of rendered ids drawn from the latest committed
// population. Commit may be called from the simulation goroutine while a
// renderer calls Indices; neither blocks the other for long.
type Sampler struct {
	committed atomic.Pointer[Committed]

	mu        sync.Mutex
	cfg       Config
	simulated int
	rendered  int
	clock     clock.TimeProvider
	rng       *rand.Rand

	slots  []uint64
	placed []time.Time
	inUse  map[uint64]struct{}
	last   time.Time
	budget float64 // fractional swaps carried to the next call
}

// New creates a sampler for simulated bodies of which rendered are drawn. The
// ratio must satisfy cfg.MinRatio.
func New(cfg Config, simulated, rendered int, tp clock.TimeProvider, seed uint64) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tp == nil {
		tp = clock.NewMonotonicTimeProvider()
	}
	s := &Sampler{cfg: cfg, clock: tp, rng: rand.New(rand.NewSource(seed))}
	if !s.Reconfigure(simulated, rendered) {
		return nil, fmt.Errorf("%d simulated for %d rendered: %w", simulated, rendered, ErrInvalidConfig)
	}
	return s, nil
}

// Ratio reports whether simulated/rendered is acceptable under minRatio.
func Ratio(simulated, rendered int, minRatio float64) (float64, bool) {
	if simulated <= 0 || rendered <= 0 {
		return 0, false
	}
	r := float64(simulated) / float64(rendered)
	return r, r >= minRatio*(1-ratioTolerance)
}

// Reconfigure changes the simulated and rendered counts. It returns false and
// leaves the sampler untouched when the ratio is below the minimum. An
// accepted change resamples every slot on the next Indices call.
func (s *Sampler) Reconfigure(simulated, rendered int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := Ratio(simulated, rendered, s.cfg.MinRatio); !ok {
		return false
	}
	s.simulated, s.rendered = simulated, rendered
	s.slots = nil
	return true
}

// Counts returns the configured simulated and rendered counts.
func (s *Sampler) Counts() (simulated, rendered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simulated, s.rendered
}

// Commit publishes a new population view.
func (s *Sampler) Commit(c *Committed) { s.committed.Store(c) }

// Indices returns the ids to render: pinned ids first, then sampled ids. The
// sample is kept between calls; ids that left the population are replaced at
// once and a few others are swapped out at the configured rate.
func (s *Sampler) Indices() []uint64 {
	c := s.committed.Load()
	if c == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.slots == nil {
		s.resample(c, now)
	} else {
		s.repair(c, now)
		s.swap(c, now)
	}
	s.last = now

	out := make([]uint64, 0, max(s.rendered, len(c.Pinned)))
	out = append(out, c.Pinned...)
	for _, id := range s.slots {
		if len(out) >= cap(out) {
			break
		}
		if _, pinned := slices.BinarySearch(c.Pinned, id); !pinned {
			out = append(out, id)
		}
	}
	return out
}

// resample fills every slot with center-of-bin sampling: slot i takes the id
// at floor((i+0.5)*step) so the sample spreads evenly across the population.
func (s *Sampler) resample(c *Committed, now time.Time) {
	n := min(s.rendered, len(c.IDs))
	s.slots = make([]uint64, n)
	s.placed = make([]time.Time, n)
	s.inUse = make(map[uint64]struct{}, n)
	s.budget = 0
	if n == 0 {
		return
	}
	step := float64(len(c.IDs)) / float64(n)
	for i := range s.slots {
		idx := int(math.Floor((float64(i) + 0.5) * step))
		s.slots[i] = c.IDs[idx]
		s.placed[i] = now
		s.inUse[c.IDs[idx]] = struct{}{}
	}
}

// repair replaces ids no longer present and grows or shrinks the slot list
// to follow the population size.
func (s *Sampler) repair(c *Committed, now time.Time) {
	want := min(s.rendered, len(c.IDs))
	for i := 0; i < len(s.slots); i++ {
		if c.has(s.slots[i]) {
			continue
		}
		delete(s.inUse, s.slots[i])
		if len(s.slots) <= want {
			if id, ok := s.pick(c); ok {
				s.slots[i] = id
				s.placed[i] = now
				continue
			}
		}
		// population shrank below the slot count; drop the slot
		last := len(s.slots) - 1
		s.slots[i], s.placed[i] = s.slots[last], s.placed[last]
		s.slots, s.placed = s.slots[:last], s.placed[:last]
		i--
	}
	for len(s.slots) < want {
		id, ok := s.pick(c)
		if !ok {
			break
		}
		s.slots = append(s.slots, id)
		s.placed = append(s.placed, now)
	}
}

// swap replaces SwapRate*rendered slots per elapsed second, oldest placement
// first, skipping slots younger than MinDwell.
func (s *Sampler) swap(c *Committed, now time.Time) {
	elapsed := now.Sub(s.last).Seconds()
	if elapsed <= 0 || len(c.IDs) <= len(s.slots) {
		return
	}
	s.budget += s.cfg.SwapRate * float64(s.rendered) * elapsed
	n := int(s.budget)
	if s.cfg.MaxSwapsPerCall > 0 && n > s.cfg.MaxSwapsPerCall {
		n = s.cfg.MaxSwapsPerCall
	}
	if n == 0 {
		return
	}

	order := make([]int, len(s.slots))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return s.placed[a].Compare(s.placed[b]) })

	dwell := time.Duration(s.cfg.MinDwellSec * float64(time.Second))
	var out []uint64
	for _, i := range order {
		if len(out) == n || now.Sub(s.placed[i]) < dwell {
			break
		}
		id, ok := s.pick(c)
		if !ok {
			break
		}
		out = append(out, s.slots[i])
		s.slots[i] = id
		s.placed[i] = now
	}
	// released only now so a swapped-out id isn't drawn straight back in
	for _, id := range out {
		delete(s.inUse, id)
	}
	done := len(out)
	s.budget -= float64(done)
	if done < n {
		// nothing eligible; don't let the allowance pile up
		s.budget = math.Min(s.budget, 1)
	}
}

// pick draws a committed id that is not already in a slot.
func (s *Sampler) pick(c *Committed) (uint64, bool) {
	if len(c.IDs) == 0 {
		return 0, false
	}
	for tries := 0; tries < 16; tries++ {
		id := c.IDs[s.rng.Intn(len(c.IDs))]
		if _, used := s.inUse[id]; !used {
			s.inUse[id] = struct{}{}
			return id, true
		}
	}
	// dense sample; scan from a random start
	start := s.rng.Intn(len(c.IDs))
	for k := 0; k < len(c.IDs); k++ {
		id := c.IDs[(start+k)%len(c.IDs)]
		if _, used := s.inUse[id]; !used {
			s.inUse[id] = struct{}{}
			return id, true
		}
	}
	return 0, false
}
