package engine

import (
	"fmt"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/snapshot"
)

// Snapshot copies the full simulation state.
func (e *Engine) Snapshot() *snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &snapshot.Snapshot{
		RunID:     e.runID,
		Taken:     e.clock.Now(),
		Step:      e.step,
		Time:      e.now,
		NextEvent: e.breakup.NextEvent(),
		Cascade:   e.tracker.State(),
		Bodies:    e.store.Copy(),
		Pinned:    e.store.PinnedIDs(),
	}
}

// Restore replaces the simulation state with s and continues its run.
// Pending scripted effects are cancelled. An invalid snapshot is rejected
// without changing anything.
func (e *Engine) Restore(s *snapshot.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	debris := 0
	for i := range s.Bodies {
		if s.Bodies[i].Kind() == body.Debris {
			debris++
		}
	}
	if debris > e.cfg.Breakup.DebrisCap {
		return fmt.Errorf("restore %d debris, cap %d: %w", debris, e.cfg.Breakup.DebrisCap, ErrDebrisCap)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tracker.Restore(s.Cascade); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	cascadeState := e.tracker.State()
	e.clear()
	// clear reset the tracker
	e.tracker.Restore(cascadeState)

	next := s.NextEvent
	for _, b := range s.Bodies {
		if err := e.store.Put(b); err != nil {
			// unreachable after Validate
			return err
		}
		if d, ok := b.Variant.(body.DebrisInfo); ok && d.Event >= next {
			next = d.Event + 1
		}
	}
	for _, id := range s.Pinned {
		e.store.Pin(id)
	}
	e.breakup.SkipEvents(next)
	e.runID = s.RunID
	e.step = s.Step
	e.now = s.Time
	e.publish()
	e.logger.Printf("restored run %s at step %d: %d bodies", s.RunID, s.Step, len(s.Bodies))
	return nil
}
