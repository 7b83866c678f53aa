package body

import (
	"fmt"
	"sort"
)

// Store is the entity table for the whole population. Bodies live densely in
// a slice; removal swaps the last body into the hole, so indices and pointers
// handed out by the store are only valid until the next Add or Remove.
//
// Store is not safe for concurrent mutation. The integration pass may write
// distinct bodies from several goroutines through Bodies().
type Store struct {
	bodies []Body
	index  map[ID]int
	pinned map[ID]struct{}
	nextID ID
	debris int
}

// NewStore creates an empty store with room for capacity bodies.
func NewStore(capacity int) *Store {
	return &Store{
		bodies: make([]Body, 0, capacity),
		index:  make(map[ID]int, capacity),
		pinned: make(map[ID]struct{}),
		nextID: 1,
	}
}

// Add inserts b under a freshly assigned ID and returns the ID.
func (s *Store) Add(b Body) ID {
	b.ID = s.nextID
	s.nextID++
	s.insert(b)
	return b.ID
}

// Put inserts b under its own ID. It is used to restore snapshots; the ID must
// not be in use.
func (s *Store) Put(b Body) error {
	if b.ID == 0 {
		return fmt.Errorf("put body: zero id")
	}
	if _, ok := s.index[b.ID]; ok {
		return fmt.Errorf("put body: id %d already present", b.ID)
	}
	s.insert(b)
	if b.ID >= s.nextID {
		s.nextID = b.ID + 1
	}
	return nil
}

func (s *Store) insert(b Body) {
	s.index[b.ID] = len(s.bodies)
	s.bodies = append(s.bodies, b)
	if b.Kind() == Debris {
		s.debris++
	}
}

// Remove deletes the body with id and returns its last state.
func (s *Store) Remove(id ID) (Body, bool) {
	i, ok := s.index[id]
	if !ok {
		return Body{}, false
	}
	removed := s.bodies[i]

	// swap the last body into the hole
	last := len(s.bodies) - 1
	if i != last {
		s.bodies[i] = s.bodies[last]
		s.index[s.bodies[i].ID] = i
	}
	s.bodies[last] = Body{}
	s.bodies = s.bodies[:last]
	delete(s.index, id)
	delete(s.pinned, id)

	if removed.Kind() == Debris {
		s.debris--
	}
	return removed, true
}

// Get returns a pointer to the body with id. The pointer is invalidated by the
// next Add or Remove.
func (s *Store) Get(id ID) (*Body, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.bodies[i], true
}

// Has reports whether id is alive.
func (s *Store) Has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Bodies exposes the dense backing slice for in-place passes. Callers must not
// append to it or keep it past the current step.
func (s *Store) Bodies() []Body { return s.bodies }

// Len is the number of live bodies.
func (s *Store) Len() int { return len(s.bodies) }

// DebrisCount is the number of live debris fragments.
func (s *Store) DebrisCount() int { return s.debris }

// SatelliteCount is the number of live intact bodies.
func (s *Store) SatelliteCount() int { return len(s.bodies) - s.debris }

// NextID is the ID the next Add will assign.
func (s *Store) NextID() ID { return s.nextID }

// IDs returns the live ids in ascending order.
func (s *Store) IDs() []ID {
	ids := make([]ID, len(s.bodies))
	for i := range s.bodies {
		ids[i] = s.bodies[i].ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pin marks id as protected from debris eviction and always rendered.
// Pinning an unknown id is a no-op that returns false.
func (s *Store) Pin(id ID) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	s.pinned[id] = struct{}{}
	return true
}

// Unpin clears the pin on id.
func (s *Store) Unpin(id ID) { delete(s.pinned, id) }

// Pinned reports whether id is pinned.
func (s *Store) Pinned(id ID) bool {
	_, ok := s.pinned[id]
	return ok
}

// PinnedIDs returns the pinned ids in ascending order.
func (s *Store) PinnedIDs() []ID {
	ids := make([]ID, 0, len(s.pinned))
	for id := range s.pinned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OldestDebris returns up to n debris ids, oldest first, skipping pinned
// bodies.
func (s *Store) OldestDebris(n int) []ID {
	if n <= 0 {
		return nil
	}
	ids := make([]ID, 0, s.debris)
	for i := range s.bodies {
		b := &s.bodies[i]
		if b.Kind() != Debris || s.Pinned(b.ID) {
			continue
		}
		ids = append(ids, b.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Clear removes every body and pin. IDs keep increasing across a Clear so a
// stale handle from before never resolves to a new body.
func (s *Store) Clear() {
	for i := range s.bodies {
		s.bodies[i] = Body{}
	}
	s.bodies = s.bodies[:0]
	s.index = make(map[ID]int, cap(s.bodies))
	s.pinned = make(map[ID]struct{})
	s.debris = 0
}

// Copy returns a deep copy of the live bodies ordered by ID.
func (s *Store) Copy() []Body {
	out := make([]Body, len(s.bodies))
	copy(out, s.bodies)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
