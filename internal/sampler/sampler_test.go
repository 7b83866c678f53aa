package sampler

import (
	"errors"
	"testing"
	"time"

	"github.com/quillaja/kessler/internal/clock"
)

func testConfig() Config {
	return Config{MinRatio: 2, SwapRate: 0.02, MinDwellSec: 0, MaxSwapsPerCall: 0}
}

func ids(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, id)
	}
	return out
}

func diff(a, b []uint64) int {
	seen := make(map[uint64]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	n := 0
	for _, id := range b {
		if !seen[id] {
			n++
		}
	}
	return n
}

func TestReconfigureRejectsLowRatio(t *testing.T) {
	s, err := New(testConfig(), 30000, 15000, nil, 1)
	if err != nil {
		t.Fatalf("expected 30000/15000 to be accepted: %v", err)
	}
	if s.Reconfigure(30000, 20000) {
		t.Error("expected 30000/20000 to be rejected")
	}
	if sim, ren := s.Counts(); sim != 30000 || ren != 15000 {
		t.Errorf("expected prior counts kept, got %d/%d", sim, ren)
	}
	if _, err := New(testConfig(), 100, 90, nil, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		sim, ren int
		ok       bool
	}{
		{30000, 15000, true},
		{30000, 20000, false},
		{3, 1, true},
		{0, 1, false},
		{10, 0, false},
	}
	for _, tc := range tests {
		if _, ok := Ratio(tc.sim, tc.ren, 2); ok != tc.ok {
			t.Errorf("%d/%d: expected %t, got %t", tc.sim, tc.ren, tc.ok, ok)
		}
	}
}

func TestCenterOfBinSampling(t *testing.T) {
	s, _ := New(testConfig(), 100, 10, clock.NewMockTimeProvider(time.Unix(0, 0)), 1)
	s.Commit(&Committed{IDs: ids(1, 100)})

	got := s.Indices()
	want := []uint64{6, 16, 26, 36, 46, 56, 66, 76, 86, 96}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestPinnedComeFirst(t *testing.T) {
	s, _ := New(testConfig(), 100, 10, clock.NewMockTimeProvider(time.Unix(0, 0)), 1)
	s.Commit(&Committed{IDs: ids(1, 100), Pinned: []uint64{3, 16}})

	got := s.Indices()
	if len(got) != 10 {
		t.Fatalf("expected 10 ids, got %d", len(got))
	}
	if got[0] != 3 || got[1] != 16 {
		t.Errorf("expected pinned ids first, got %v", got[:2])
	}
	seen := map[uint64]int{}
	for _, id := range got {
		seen[id]++
		if seen[id] > 1 {
			t.Errorf("id %d rendered twice", id)
		}
	}
}

func TestSwapsAreRateLimited(t *testing.T) {
	tp := clock.NewMockTimeProvider(time.Unix(0, 0))
	s, _ := New(testConfig(), 1000, 100, tp, 1)
	s.Commit(&Committed{IDs: ids(1, 1000)})

	before := s.Indices()
	if after := s.Indices(); diff(before, after) != 0 {
		t.Errorf("expected no swaps without elapsed time, got %d", diff(before, after))
	}

	tp.Advance(time.Second)
	after := s.Indices()
	// 2% of 100 slots per second
	if n := diff(before, after); n != 2 {
		t.Errorf("expected 2 swaps after one second, got %d", n)
	}

	tp.Advance(250 * time.Millisecond)
	again := s.Indices()
	if n := diff(after, again); n != 0 {
		t.Errorf("expected fractional allowance to carry over, got %d swaps", n)
	}
}

func TestMinDwellHoldsSlots(t *testing.T) {
	tp := clock.NewMockTimeProvider(time.Unix(0, 0))
	cfg := testConfig()
	cfg.MinDwellSec = 10
	s, _ := New(cfg, 1000, 100, tp, 1)
	s.Commit(&Committed{IDs: ids(1, 1000)})

	before := s.Indices()
	tp.Advance(5 * time.Second)
	if n := diff(before, s.Indices()); n != 0 {
		t.Errorf("expected dwell to hold every slot, got %d swaps", n)
	}
}

func TestRemovedIDsAreReplaced(t *testing.T) {
	tp := clock.NewMockTimeProvider(time.Unix(0, 0))
	s, _ := New(testConfig(), 100, 10, tp, 1)
	s.Commit(&Committed{IDs: ids(1, 100)})
	s.Indices()

	// drop id 6, which sits in the first slot
	remaining := append(ids(1, 5), ids(7, 100)...)
	s.Commit(&Committed{IDs: remaining})
	got := s.Indices()
	if len(got) != 10 {
		t.Fatalf("expected slots refilled, got %d", len(got))
	}
	for _, id := range got {
		if id == 6 {
			t.Error("expected removed id to be replaced")
		}
	}
}

func TestShrinkingPopulation(t *testing.T) {
	s, _ := New(testConfig(), 100, 10, clock.NewMockTimeProvider(time.Unix(0, 0)), 1)
	s.Commit(&Committed{IDs: ids(1, 100)})
	s.Indices()

	s.Commit(&Committed{IDs: []uint64{16, 26, 200}})
	got := s.Indices()
	if len(got) != 3 {
		t.Errorf("expected the whole small population, got %v", got)
	}
}

func TestNoCommitNoIndices(t *testing.T) {
	s, _ := New(testConfig(), 100, 10, nil, 1)
	if got := s.Indices(); got != nil {
		t.Errorf("expected nil before first commit, got %v", got)
	}
}
