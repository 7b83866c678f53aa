package lod

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/quillaja/kessler/internal/body"
)

func testConfig() Config {
	return Config{NearKm: 1000, MidKm: 5000, FarKm: 20000, MidDivisor: 5, FarDivisor: 10, ReclassifyEvery: 10}
}

func TestNoReferenceMeansEverythingNear(t *testing.T) {
	s, err := NewScheduler(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	store := body.NewStore(0)
	id := store.Add(body.Body{Position: mgl64.Vec3{42000, 0, 0}})
	s.Classify(store)

	if s.Band(id) != Near {
		t.Errorf("expected near without reference, got %s", s.Band(id))
	}
	for step := uint64(0); step < 20; step++ {
		if !s.Due(id, step) {
			t.Errorf("expected body due on step %d", step)
		}
	}
}

func TestBandsAndDivisors(t *testing.T) {
	s, _ := NewScheduler(testConfig())
	store := body.NewStore(0)
	near := store.Add(body.Body{Position: mgl64.Vec3{500, 0, 0}})
	mid := store.Add(body.Body{Position: mgl64.Vec3{3000, 0, 0}})
	far := store.Add(body.Body{Position: mgl64.Vec3{0, 15000, 0}})
	culled := store.Add(body.Body{Position: mgl64.Vec3{0, 0, 42000}})

	s.SetReference(mgl64.Vec3{})
	if !s.Update(store, 3) {
		t.Fatal("expected moved reference to force classification")
	}

	tests := []struct {
		id    body.ID
		band  Band
		dueOn []uint64
		skip  []uint64
	}{
		{near, Near, []uint64{0, 1, 7}, nil},
		{mid, Mid, []uint64{0, 5, 10}, []uint64{1, 4, 7}},
		{far, Far, []uint64{0, 10, 20}, []uint64{5, 15}},
		{culled, Culled, nil, []uint64{0, 10, 20}},
	}
	for _, tc := range tests {
		if got := s.Band(tc.id); got != tc.band {
			t.Errorf("body %d: expected %s, got %s", tc.id, tc.band, got)
		}
		for _, step := range tc.dueOn {
			if !s.Due(tc.id, step) {
				t.Errorf("%s body: expected due on step %d", tc.band, step)
			}
		}
		for _, step := range tc.skip {
			if s.Due(tc.id, step) {
				t.Errorf("%s body: expected skip on step %d", tc.band, step)
			}
		}
	}

	counts := s.Counts()
	for b := Near; b <= Culled; b++ {
		if counts[b] != 1 {
			t.Errorf("expected one body in %s, got %d", b, counts[b])
		}
	}
}

func TestUpdateCadence(t *testing.T) {
	s, _ := NewScheduler(testConfig())
	store := body.NewStore(0)
	s.SetReference(mgl64.Vec3{})
	s.Update(store, 1)

	if s.Update(store, 7) {
		t.Error("expected no reclassification off cadence")
	}
	if !s.Update(store, 20) {
		t.Error("expected reclassification on cadence")
	}
}

func TestNewBodiesDefaultToNear(t *testing.T) {
	s, _ := NewScheduler(testConfig())
	store := body.NewStore(0)
	s.SetReference(mgl64.Vec3{})
	s.Classify(store)
	id := store.Add(body.Body{Position: mgl64.Vec3{0, 0, 42000}})
	if s.Band(id) != Near {
		t.Errorf("expected unclassified body to be near, got %s", s.Band(id))
	}
}

func TestValidate(t *testing.T) {
	bad := []Config{
		{NearKm: 0, MidKm: 1, FarKm: 2, MidDivisor: 1, FarDivisor: 1, ReclassifyEvery: 1},
		{NearKm: 3, MidKm: 2, FarKm: 5, MidDivisor: 1, FarDivisor: 1, ReclassifyEvery: 1},
		{NearKm: 1, MidKm: 2, FarKm: 3, MidDivisor: 5, FarDivisor: 2, ReclassifyEvery: 1},
		{NearKm: 1, MidKm: 2, FarKm: 3, MidDivisor: 1, FarDivisor: 1, ReclassifyEvery: 0},
	}
	for i, c := range bad {
		if _, err := NewScheduler(c); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("config %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}
