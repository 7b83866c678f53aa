// Package lod buckets bodies by distance from a viewer and decides which
// bodies are integrated on a given step.
package lod

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/quillaja/kessler/internal/body"
)

// ErrInvalidConfig is returned for unordered distances or bad divisors.
var ErrInvalidConfig = errors.New("invalid lod configuration")

// Band is a relevance bucket.
type Band uint8

// bands, nearest first
const (
	Near Band = iota
	Mid
	Far
	Culled
	numBands
)

func (b Band) String() string {
	switch b {
	case Near:
		return "near"
	case Mid:
		return "mid"
	case Far:
		return "far"
	case Culled:
		return "culled"
	}
	return fmt.Sprintf("band(%d)", uint8(b))
}

// Config sets band edges (km from the reference point) and update divisors.
type Config struct {
	NearKm          float64 `toml:"near_km"`
	MidKm           float64 `toml:"mid_km"`
	FarKm           float64 `toml:"far_km"` // beyond this a body is culled
	MidDivisor      int     `toml:"mid_divisor"`
	FarDivisor      int     `toml:"far_divisor"`
	ReclassifyEvery int     `toml:"reclassify_every"` // steps between classifications
}

// Validate checks ordering and divisors.
func (c Config) Validate() error {
	if !(c.NearKm > 0 && c.NearKm < c.MidKm && c.MidKm < c.FarKm) {
		return fmt.Errorf("band edges %v < %v < %v: %w", c.NearKm, c.MidKm, c.FarKm, ErrInvalidConfig)
	}
	if c.MidDivisor < 1 || c.FarDivisor < c.MidDivisor || c.ReclassifyEvery < 1 {
		return fmt.Errorf("divisors mid %d far %d every %d: %w",
			c.MidDivisor, c.FarDivisor, c.ReclassifyEvery, ErrInvalidConfig)
	}
	return nil
}

// Scheduler holds the band of every body as of the last classification.
// Without a reference point every body is Near and nothing is skipped.
type Scheduler struct {
	cfg       Config
	reference mgl64.Vec3
	hasRef    bool
	dirty     bool

	bands  map[body.ID]Band
	counts [numBands]int
}

// NewScheduler creates a scheduler with no reference point.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg, bands: make(map[body.ID]Band)}, nil
}

// SetReference sets the viewer position (km, same frame as bodies). The next
// Update reclassifies regardless of cadence.
func (s *Scheduler) SetReference(p mgl64.Vec3) {
	s.reference = p
	s.hasRef = true
	s.dirty = true
}

// ClearReference turns LOD off.
func (s *Scheduler) ClearReference() {
	s.hasRef = false
	s.dirty = true
}

// Reference returns the viewer position and whether one is set.
func (s *Scheduler) Reference() (mgl64.Vec3, bool) { return s.reference, s.hasRef }

// Update reclassifies on the configured cadence or after the reference moved.
// It returns true when a classification ran.
func (s *Scheduler) Update(store *body.Store, step uint64) bool {
	if !s.dirty && step%uint64(s.cfg.ReclassifyEvery) != 0 {
		return false
	}
	s.Classify(store)
	return true
}

// Classify assigns a band to every body in store.
func (s *Scheduler) Classify(store *body.Store) {
	s.dirty = false
	s.counts = [numBands]int{}
	clear(s.bands)

	bodies := store.Bodies()
	for i := range bodies {
		band := s.bandFor(bodies[i].Position)
		s.bands[bodies[i].ID] = band
		s.counts[band]++
	}
}

func (s *Scheduler) bandFor(p mgl64.Vec3) Band {
	if !s.hasRef {
		return Near
	}
	d := p.Sub(s.reference).Len()
	switch {
	case d <= s.cfg.NearKm:
		return Near
	case d <= s.cfg.MidKm:
		return Mid
	case d <= s.cfg.FarKm:
		return Far
	}
	return Culled
}

// Band of id. Bodies born since the last classification are Near.
func (s *Scheduler) Band(id body.ID) Band {
	if !s.hasRef {
		return Near
	}
	if b, ok := s.bands[id]; ok {
		return b
	}
	return Near
}

// Divisor is the update period of band in steps; 0 means never.
func (s *Scheduler) Divisor(b Band) int {
	switch b {
	case Near:
		return 1
	case Mid:
		return s.cfg.MidDivisor
	case Far:
		return s.cfg.FarDivisor
	}
	return 0
}

// Due reports whether id is integrated on step. All bands share phase zero so
// every body due on a step is at the same epoch for detection.
func (s *Scheduler) Due(id body.ID, step uint64) bool {
	d := s.Divisor(s.Band(id))
	return d > 0 && step%uint64(d) == 0
}

// MaxStride is the largest number of steps a non-culled body can go without
// being integrated.
func (s *Scheduler) MaxStride() int { return s.cfg.FarDivisor }

// Counts returns how many bodies were in each band at the last
// classification, indexed by Band.
func (s *Scheduler) Counts() [4]int { return s.counts }

// Reset forgets every classification and the reference point.
func (s *Scheduler) Reset() {
	clear(s.bands)
	s.counts = [numBands]int{}
	s.hasRef = false
	s.dirty = true
}
