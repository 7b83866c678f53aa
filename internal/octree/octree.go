// Package octree is a bucketed point octree used as the broad phase of close
// approach detection.
package octree

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

/*

spacial tree acceleration structure.
point oct-tree; leaves hold small buckets of points and split when full
until a depth limit, after which they simply grow.

*/

type nodekind uint8

// node types
const (
	external nodekind = iota
	internal
)

type octant uint8

// child positions (octants)
// low bit is X axis, high bit is Z axis
// L (0) means < center, H (1) means >= center
const (
	LLL octant = 0b000
	LLH octant = 0b001
	LHL octant = 0b010
	LHH octant = 0b011
	HLL octant = 0b100
	HLH octant = 0b101
	HHL octant = 0b110
	HHH octant = 0b111
)

const (
	bucketSize = 8
	maxDepth   = 24
)

// Bound is an axis-aligned box given by its center and full width per axis.
type Bound struct {
	Center, Width mgl64.Vec3
}

// BoundOf returns the smallest cube enclosing points, padded slightly so every
// point is strictly inside.
func BoundOf(points []mgl64.Vec3) Bound {
	if len(points) == 0 {
		return Bound{Width: mgl64.Vec3{1, 1, 1}}
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], p[k])
			hi[k] = math.Max(hi[k], p[k])
		}
	}
	w := math.Max(hi[0]-lo[0], math.Max(hi[1]-lo[1], hi[2]-lo[2]))
	w = w*1.01 + 1
	return Bound{
		Center: lo.Add(hi).Mul(0.5),
		Width:  mgl64.Vec3{w, w, w},
	}
}

// does this bound contain point?
func (n Bound) contains(point mgl64.Vec3) bool {
	halfwidth := n.Width.Mul(0.5)
	return (n.Center[0]-halfwidth[0] <= point[0] && point[0] <= n.Center[0]+halfwidth[0]) &&
		(n.Center[1]-halfwidth[1] <= point[1] && point[1] <= n.Center[1]+halfwidth[1]) &&
		(n.Center[2]-halfwidth[2] <= point[2] && point[2] <= n.Center[2]+halfwidth[2])
}

// does a sphere around point with radius touch this bound?
func (n Bound) touches(point mgl64.Vec3, radius float64) bool {
	d2 := 0.0
	for k := 0; k < 3; k++ {
		lo := n.Center[k] - n.Width[k]*0.5
		hi := n.Center[k] + n.Width[k]*0.5
		switch {
		case point[k] < lo:
			d2 += (lo - point[k]) * (lo - point[k])
		case point[k] > hi:
			d2 += (point[k] - hi) * (point[k] - hi)
		}
	}
	return d2 <= radius*radius
}

// scale the width of the bounds.
func (n Bound) scale(s float64) Bound {
	n.Width = n.Width.Mul(s)
	return n
}

// move the center of the bound.
func (n Bound) translate(tx mgl64.Vec3) Bound {
	n.Center = n.Center.Add(tx)
	return n
}

// generate the bounds for and octant of the parent's bounds.
func octantBound(parent Bound, oct octant) Bound {
	// each octant is ±1/4 of the parent's width from the parent's center.
	tx := mgl64.Vec3{
		parent.Width[0] * 0.25 * (float64((oct&LLH)*2) - 1.0),
		parent.Width[1] * 0.25 * (float64(((oct&LHL)>>1)*2) - 1.0),
		parent.Width[2] * 0.25 * (float64(((oct&HLL)>>2)*2) - 1.0),
	}
	return parent.scale(0.5).translate(tx)
}

// determines which octant (relative to midpoint) in which point belongs.
func octantBits(midpoint, point mgl64.Vec3) octant {
	return octant((^math.Float64bits(point[0]-midpoint[0]) >> 63) |
		(^math.Float64bits(point[1]-midpoint[1])>>63)<<1 |
		(^math.Float64bits(point[2]-midpoint[2])>>63)<<2)
}

// Item is a point tagged with the caller's index.
type Item struct {
	Point mgl64.Vec3
	Index int
}

type node struct {
	kind     nodekind
	children []*node
	items    []Item
	bounds   Bound
	depth    int
}

// create children nodes with appropriate bounds
func (n *node) split() {
	n.children = make([]*node, 8)
	for i := LLL; i <= HHH; i++ {
		n.children[i] = &node{bounds: octantBound(n.bounds, i), depth: n.depth + 1}
	}
}

// place an item in the tree rooted at this node.
// returns false if the item doesn't belong in this node.
func (n *node) push(it Item) bool {
	if !n.bounds.contains(it.Point) {
		return false
	}

	switch n.kind {
	case external:
		// simple case: room in the bucket, or too deep to keep splitting
		// (coincident points would otherwise split forever)
		if len(n.items) < bucketSize || n.depth >= maxDepth {
			n.items = append(n.items, it)
			return true
		}

		// full bucket: convert this node into an internal node and push the
		// existing items down into the octants
		n.split()
		for _, old := range n.items {
			n.children[octantBits(n.bounds.Center, old.Point)].push(old)
		}
		n.kind = internal
		n.items = nil

		// the incoming item is handled exactly as for an internal node
		fallthrough

	case internal:
		n.children[octantBits(n.bounds.Center, it.Point)].push(it)
	}

	return true
}

// collect indices of items within radius of point.
func (n *node) query(point mgl64.Vec3, radius float64, out []int) []int {
	if !n.bounds.touches(point, radius) {
		return out
	}
	switch n.kind {
	case internal:
		for i := LLL; i <= HHH; i++ {
			out = n.children[i].query(point, radius, out)
		}
	case external:
		r2 := radius * radius
		for _, it := range n.items {
			d := it.Point.Sub(point)
			if d.Dot(d) <= r2 {
				out = append(out, it.Index)
			}
		}
	}
	return out
}

// Tree is a point octree over a fixed bound. Points outside the bound are kept
// in an overflow list and checked linearly.
type Tree struct {
	root     *node
	overflow []Item
	size     int
}

// Build indexes points by their position in the slice.
func Build(points []mgl64.Vec3) *Tree {
	t := &Tree{root: &node{bounds: BoundOf(points)}}
	for i, p := range points {
		t.Insert(Item{Point: p, Index: i})
	}
	return t
}

// Insert adds one item.
func (t *Tree) Insert(it Item) {
	if !t.root.push(it) {
		t.overflow = append(t.overflow, it)
	}
	t.size++
}

// Len is the number of items in the tree.
func (t *Tree) Len() int { return t.size }

// Within appends to out the indices of items at most radius from point and
// returns the extended slice. Order follows the tree walk and is deterministic
// for a given insertion order.
func (t *Tree) Within(point mgl64.Vec3, radius float64, out []int) []int {
	out = t.root.query(point, radius, out)
	r2 := radius * radius
	for _, it := range t.overflow {
		d := it.Point.Sub(point)
		if d.Dot(d) <= r2 {
			out = append(out, it.Index)
		}
	}
	return out
}
