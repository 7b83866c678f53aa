package cascade

import (
	"errors"
	"testing"
)

func TestFirstCollisionActivatesLevelOne(t *testing.T) {
	tr, err := NewTracker(5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if tr.State().Active() {
		t.Fatal("expected new tracker to be stable")
	}

	ch, changed := tr.Record(12.5)
	if !changed || ch.From != Stable || ch.To != Active || ch.ToLevel != 1 {
		t.Errorf("expected Stable -> Active(1), got %+v changed=%t", ch, changed)
	}
	if tr.State().StartedAt != 12.5 {
		t.Errorf("expected start time 12.5, got %f", tr.State().StartedAt)
	}
}

func TestLevelStepsEveryFiveCollisions(t *testing.T) {
	tr, _ := NewTracker(5, 10)
	prev := 0
	for n := 1; n <= 40; n++ {
		tr.Record(float64(n))
		level := tr.Level()
		if level < prev {
			t.Fatalf("level decreased from %d to %d at collision %d", prev, level, n)
		}
		if n%5 == 0 && level != prev+1 {
			t.Errorf("collision %d: expected level to step from %d to %d, got %d", n, prev, prev+1, level)
		}
		if n%5 != 0 && n > 1 && level != prev {
			t.Errorf("collision %d: expected level to stay %d, got %d", n, prev, level)
		}
		prev = level
	}
}

func TestCeilingIsTerminalAndClamped(t *testing.T) {
	tr, _ := NewTracker(5, 10)
	var last Change
	for n := 1; n <= 45; n++ {
		last, _ = tr.Record(float64(n))
	}
	if last.To != Terminal {
		t.Fatalf("expected terminal at 45 collisions, got %s", last.To)
	}

	for n := 0; n < 20; n++ {
		tr.Record(100)
	}
	st := tr.Status()
	if !st.Terminal || st.Level != 10 {
		t.Errorf("expected terminal level 10, got %+v", st)
	}
	if st.CollisionCount != 65 {
		t.Errorf("expected collisions to keep counting to 65, got %d", st.CollisionCount)
	}
}

func TestDebrisAndReset(t *testing.T) {
	tr, _ := NewTracker(5, 10)
	tr.Record(0)
	tr.AddDebris(7)
	tr.AddDebris(-3)
	if tr.Status().DebrisGenerated != 7 {
		t.Errorf("expected 7 debris, got %d", tr.Status().DebrisGenerated)
	}
	tr.Reset()
	if tr.State() != (State{}) {
		t.Errorf("expected zero state after reset, got %+v", tr.State())
	}
}

func TestRestoreClampsToCeiling(t *testing.T) {
	tr, _ := NewTracker(5, 3)
	if err := tr.Restore(State{Phase: Active, CollisionCount: 30, Level: 7}); err != nil {
		t.Fatal(err)
	}
	if st := tr.Status(); !st.Terminal || st.Level != 3 {
		t.Errorf("expected clamped terminal level 3, got %+v", st)
	}
	if err := tr.Restore(State{CollisionCount: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewTrackerRejectsInvalid(t *testing.T) {
	if _, err := NewTracker(0, 10); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
