package octree

import (
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/exp/rand"
)

func bruteWithin(points []mgl64.Vec3, p mgl64.Vec3, radius float64) []int {
	var out []int
	for i, q := range points {
		if q.Sub(p).Len() <= radius {
			out = append(out, i)
		}
	}
	return out
}

func TestWithinMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := make([]mgl64.Vec3, 2000)
	for i := range points {
		points[i] = mgl64.Vec3{
			rng.NormFloat64() * 7000,
			rng.NormFloat64() * 7000,
			rng.NormFloat64() * 7000,
		}
	}
	tree := Build(points)
	if tree.Len() != len(points) {
		t.Fatalf("expected %d items, got %d", len(points), tree.Len())
	}

	for q := 0; q < 50; q++ {
		p := points[rng.Intn(len(points))]
		radius := 500 + rng.Float64()*3000
		got := tree.Within(p, radius, nil)
		sort.Ints(got)
		want := bruteWithin(points, p, radius)
		if len(got) != len(want) {
			t.Fatalf("query %d: expected %d neighbours, got %d", q, len(want), len(got))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("query %d: expected %v, got %v", q, want, got)
			}
		}
	}
}

func TestCoincidentPointsDoNotRecurseForever(t *testing.T) {
	points := make([]mgl64.Vec3, 100)
	for i := range points {
		points[i] = mgl64.Vec3{6771, 0, 0}
	}
	tree := Build(points)
	got := tree.Within(mgl64.Vec3{6771, 0, 0}, 0.001, nil)
	if len(got) != len(points) {
		t.Errorf("expected all %d coincident points, got %d", len(points), len(got))
	}
}

func TestOverflowOutsideBound(t *testing.T) {
	tree := &Tree{root: &node{bounds: Bound{Width: mgl64.Vec3{10, 10, 10}}}}
	tree.Insert(Item{Point: mgl64.Vec3{1, 1, 1}, Index: 0})
	tree.Insert(Item{Point: mgl64.Vec3{100, 0, 0}, Index: 1})

	got := tree.Within(mgl64.Vec3{99, 0, 0}, 5, nil)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("expected overflow item 1, got %v", got)
	}
}
