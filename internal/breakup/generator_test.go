package breakup

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/physics"
	"github.com/quillaja/kessler/internal/proximity"
)

func testConfig() Config {
	return Config{
		BaseFragments:     5,
		FragmentsPerLevel: 2,
		MaxFragments:      20,
		MinEjectionKmS:    0.05,
		MaxEjectionKmS:    0.3,
		MassExponent:      1.71,
		DebrisDensity:     2700,
		ImmunitySec:       30,
		DebrisCap:         1000,
		Policy:            EvictOldest,
	}
}

// pair adds two satellites on crossing orbits and returns their collision.
func pair(store *body.Store) proximity.CollisionEvent {
	pa, va := physics.CircularState(400, 0, 0, 0)
	pb, vb := physics.CircularState(400, 90, 0, 0)
	a := store.Add(body.Body{Position: pa, Velocity: va, Mass: 500, Radius: 2, Variant: body.SatelliteInfo{}})
	b := store.Add(body.Body{Position: pb, Velocity: vb, Mass: 1500, Radius: 3, Variant: body.SatelliteInfo{}})
	return proximity.CollisionEvent{A: a, B: b}
}

func TestBreakupReplacesParentsWithFragments(t *testing.T) {
	g, err := NewGenerator(testConfig(), 1)
	if err != nil {
		t.Fatal(err)
	}
	store := body.NewStore(0)
	ev := pair(store)
	pa, _ := store.Get(ev.A)
	pb, _ := store.Get(ev.B)
	momentum := pa.Velocity.Mul(pa.Mass).Add(pb.Velocity.Mul(pb.Mass))

	res, err := g.Breakup(store, ev, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if store.Has(ev.A) || store.Has(ev.B) {
		t.Error("expected both parents removed")
	}
	if len(res.Fragments) != 7 {
		t.Fatalf("expected 5+2*1 fragments, got %d", len(res.Fragments))
	}

	mass := 0.0
	var fragMomentum mgl64.Vec3
	for _, id := range res.Fragments {
		f, ok := store.Get(id)
		if !ok {
			t.Fatalf("fragment %d not in store", id)
		}
		info, ok := f.Variant.(body.DebrisInfo)
		if !ok {
			t.Fatalf("expected debris variant, got %T", f.Variant)
		}
		if info.Event != res.Event || info.Generation != 1 || info.ImmuneUntil != 130 {
			t.Errorf("unexpected debris info %+v", info)
		}
		if f.Epoch != 100 || f.Radius <= 0 {
			t.Errorf("unexpected fragment %v", f)
		}
		mass += f.Mass
		fragMomentum = fragMomentum.Add(f.Velocity.Mul(f.Mass))
	}
	if math.Abs(mass-2000) > 1e-9 {
		t.Errorf("expected fragment mass to sum to 2000 kg, got %f", mass)
	}
	// ejection adds at most MaxEjection km/s per unit mass
	if d := fragMomentum.Sub(momentum).Len(); d > 2000*0.3 {
		t.Errorf("fragment momentum off by %f", d)
	}
	if store.DebrisCount() != 7 || store.SatelliteCount() != 0 {
		t.Errorf("expected 7 debris and no satellites, got %d and %d", store.DebrisCount(), store.SatelliteCount())
	}
}

func TestFragmentGenerationIncreases(t *testing.T) {
	g, _ := NewGenerator(testConfig(), 1)
	store := body.NewStore(0)
	first, _ := g.Breakup(store, pair(store), 0, 0)

	other := pair(store)
	ev := proximity.CollisionEvent{A: first.Fragments[0], B: other.A}
	res, err := g.Breakup(store, ev, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	f, _ := store.Get(res.Fragments[0])
	if f.Generation() != 2 {
		t.Errorf("expected generation 2, got %d", f.Generation())
	}
	if res.Event == first.Event {
		t.Error("expected distinct event ids")
	}
}

func TestFragmentCountNonDecreasingInLevel(t *testing.T) {
	g, _ := NewGenerator(testConfig(), 1)
	prev := 0
	for level := 0; level <= 12; level++ {
		n := g.Count(level)
		if n < prev {
			t.Errorf("level %d: count fell from %d to %d", level, prev, n)
		}
		if n > 20 {
			t.Errorf("level %d: count %d above max", level, n)
		}
		prev = n
	}
	if g.Count(10) != 20 {
		t.Errorf("expected the cap of 20 at level 10, got %d", g.Count(10))
	}
}

func TestDebrisCapPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		pinned     int
		fragments  int
		evicted    int
		suppressed int
	}{
		{"evict", EvictOldest, 0, 7, 5, 0},
		{"suppress", Suppress, 0, 2, 0, 5},
		{"evict falls back", EvictOldest, 10, 2, 0, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DebrisCap = 12
			cfg.Policy = tc.policy
			g, _ := NewGenerator(cfg, 1)

			store := body.NewStore(0)
			var old []body.ID
			for i := 0; i < 10; i++ {
				p, v := physics.CircularState(800, 0, 0, float64(i))
				id := store.Add(body.Body{Position: p, Velocity: v, Mass: 1, Radius: 0.1, Variant: body.DebrisInfo{Event: 99, Generation: 1}})
				old = append(old, id)
			}
			for _, id := range old[:tc.pinned] {
				store.Pin(id)
			}

			res, err := g.Breakup(store, pair(store), 1, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Fragments) != tc.fragments || len(res.Evicted) != tc.evicted || res.Suppressed != tc.suppressed {
				t.Errorf("expected %d/%d/%d fragments/evicted/suppressed, got %d/%d/%d",
					tc.fragments, tc.evicted, tc.suppressed, len(res.Fragments), len(res.Evicted), res.Suppressed)
			}
			if store.DebrisCount() > cfg.DebrisCap {
				t.Errorf("debris %d above cap %d", store.DebrisCount(), cfg.DebrisCap)
			}
			for i, ev := range res.Evicted {
				if ev.ID != old[i] {
					t.Errorf("expected oldest debris %d evicted first, got %d", old[i], ev.ID)
				}
			}
		})
	}
}

func TestDebrisNeverExceedsCapAcrossLevels(t *testing.T) {
	cfg := testConfig()
	cfg.DebrisCap = 50
	g, _ := NewGenerator(cfg, 3)
	store := body.NewStore(0)
	for level := 1; level <= 10; level++ {
		if _, err := g.Breakup(store, pair(store), level, float64(level)); err != nil {
			t.Fatal(err)
		}
		if store.DebrisCount() > cfg.DebrisCap {
			t.Fatalf("level %d: debris %d above cap", level, store.DebrisCount())
		}
	}
}

func TestBreakupIsDeterministic(t *testing.T) {
	run := func() []body.Body {
		g, _ := NewGenerator(testConfig(), 42)
		store := body.NewStore(0)
		g.Breakup(store, pair(store), 3, 0)
		return store.Copy()
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("expected same fragment count, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Velocity != b[i].Velocity || a[i].Mass != b[i].Mass {
			t.Errorf("fragment %d differs between runs", i)
		}
	}
}

func TestBreakupMissingParent(t *testing.T) {
	g, _ := NewGenerator(testConfig(), 1)
	store := body.NewStore(0)
	ev := pair(store)
	store.Remove(ev.B)
	if _, err := g.Breakup(store, ev, 1, 0); !errors.Is(err, ErrMissingParent) {
		t.Errorf("expected ErrMissingParent, got %v", err)
	}
	if !store.Has(ev.A) {
		t.Error("expected surviving parent untouched")
	}
}

func TestPolicyText(t *testing.T) {
	var p Policy
	if err := p.UnmarshalText([]byte("suppress")); err != nil || p != Suppress {
		t.Errorf("expected suppress, got %s (%v)", p, err)
	}
	if err := p.UnmarshalText([]byte("drop")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	bad := testConfig()
	bad.MaxFragments = 2
	bad.MassExponent = 0
	if _, err := NewGenerator(bad, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEvictionBringsOverfullStoreUnderCap(t *testing.T) {
	cfg := testConfig()
	cfg.DebrisCap = 12
	g, _ := NewGenerator(cfg, 1)

	store := body.NewStore(0)
	for i := 0; i < 30; i++ {
		p, v := physics.CircularState(800, 0, 0, float64(i))
		store.Add(body.Body{Position: p, Velocity: v, Mass: 1, Radius: 0.1, Variant: body.DebrisInfo{Event: 99, Generation: 1}})
	}

	res, err := g.Breakup(store, pair(store), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fragments) != 7 || len(res.Evicted) != 25 || res.Suppressed != 0 {
		t.Errorf("expected 7/25/0 fragments/evicted/suppressed, got %d/%d/%d",
			len(res.Fragments), len(res.Evicted), res.Suppressed)
	}
	if store.DebrisCount() != cfg.DebrisCap {
		t.Errorf("expected debris at the cap %d, got %d", cfg.DebrisCap, store.DebrisCount())
	}
}
