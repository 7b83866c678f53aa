// Package cascade tracks cumulative collisions and the severity of a
// Kessler cascade.
package cascade

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for non-positive thresholds.
var ErrInvalidConfig = errors.New("invalid cascade configuration")

// Phase of the cascade state machine.
type Phase uint8

// phases
const (
	Stable Phase = iota
	Active
	Terminal
)

func (p Phase) String() string {
	switch p {
	case Stable:
		return "stable"
	case Active:
		return "active"
	case Terminal:
		return "terminal"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// State is the full tracker state; it is what snapshots persist.
type State struct {
	Phase           Phase
	CollisionCount  int
	Level           int
	DebrisGenerated int
	StartedAt       float64 // sim seconds of the first collision
}

// Active reports whether a cascade is under way (including terminal).
func (s State) Active() bool { return s.Phase != Stable }

// Status is the summary exposed to observers.
type Status struct {
	Level           int
	CollisionCount  int
	DebrisGenerated int
	Terminal        bool
}

// Change describes a phase or level transition caused by a collision.
type Change struct {
	From, To           Phase
	FromLevel, ToLevel int
	CollisionCount     int
	Time               float64
}

// Tracker is the Stable -> Active(1..K) -> Terminal state machine.
//
// The first collision activates level 1, and every CollisionsPerLevel
// cumulative collisions add one level. Reaching LevelCeiling makes the state
// terminal; collisions keep being counted but the level stays at the ceiling.
type Tracker struct {
	perLevel int
	ceiling  int
	state    State
}

// NewTracker creates a stable tracker.
func NewTracker(collisionsPerLevel, levelCeiling int) (*Tracker, error) {
	if collisionsPerLevel < 1 || levelCeiling < 1 {
		return nil, fmt.Errorf("collisions per level %d, ceiling %d: %w",
			collisionsPerLevel, levelCeiling, ErrInvalidConfig)
	}
	return &Tracker{perLevel: collisionsPerLevel, ceiling: levelCeiling}, nil
}

// Record counts one collision at sim time now. It returns the transition and
// true when the phase or level changed.
func (t *Tracker) Record(now float64) (Change, bool) {
	prev := t.state
	t.state.CollisionCount++

	if t.state.Phase == Stable {
		t.state.Phase = Active
		t.state.StartedAt = now
	}

	level := 1 + t.state.CollisionCount/t.perLevel
	if level >= t.ceiling {
		level = t.ceiling
		t.state.Phase = Terminal
	}
	// never step back while active
	if level > t.state.Level {
		t.state.Level = level
	}

	ch := Change{
		From:           prev.Phase,
		To:             t.state.Phase,
		FromLevel:      prev.Level,
		ToLevel:        t.state.Level,
		CollisionCount: t.state.CollisionCount,
		Time:           now,
	}
	return ch, ch.From != ch.To || ch.FromLevel != ch.ToLevel
}

// AddDebris counts fragments produced by breakups.
func (t *Tracker) AddDebris(n int) {
	if n > 0 {
		t.state.DebrisGenerated += n
	}
}

// Status summarizes the tracker.
func (t *Tracker) Status() Status {
	return Status{
		Level:           t.state.Level,
		CollisionCount:  t.state.CollisionCount,
		DebrisGenerated: t.state.DebrisGenerated,
		Terminal:        t.state.Phase == Terminal,
	}
}

// State returns a copy of the full state.
func (t *Tracker) State() State { return t.state }

// Level is the current cascade level, 0 while stable.
func (t *Tracker) Level() int { return t.state.Level }

// Restore replaces the state, e.g. from a snapshot. The level is clamped to
// the configured ceiling.
func (t *Tracker) Restore(s State) error {
	if s.CollisionCount < 0 || s.Level < 0 || s.DebrisGenerated < 0 {
		return fmt.Errorf("restore cascade state %+v: %w", s, ErrInvalidConfig)
	}
	if s.Level >= t.ceiling {
		s.Level = t.ceiling
		s.Phase = Terminal
	}
	t.state = s
	return nil
}

// Reset returns to Stable with all counters cleared.
func (t *Tracker) Reset() { t.state = State{} }
