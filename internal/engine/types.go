package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/cascade"
)

// Reason a body left the population.
type Reason uint8

// removal reasons
const (
	Reentry  Reason = iota // fell below the reentry altitude
	Poisoned               // state went non-finite
	Collided               // parent of a breakup
	Evicted                // oldest debris removed to respect the cap
)

func (r Reason) String() string {
	switch r {
	case Reentry:
		return "reentry"
	case Poisoned:
		return "poisoned"
	case Collided:
		return "collided"
	case Evicted:
		return "evicted"
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// Removal is published for every body taken out of the population.
type Removal struct {
	Body   body.Body // last state
	Reason Reason
	Time   float64 // sim seconds
}

// StepReport summarizes one Step call.
type StepReport struct {
	Substeps   int // emitted by the clock
	Ran        int
	Deferred   int // handed back because the wall budget ran out
	Collisions int
	Fragments  int
	Removed    int
	SimTime    float64
	Pending    int     // whole substeps left in the clock after this call
	Alpha      float64 // fraction of a substep to interpolate rendered positions by
}

// Stats is a consistent view of the engine after a mutation.
type Stats struct {
	RunID   uuid.UUID
	Step    uint64
	SimTime float64

	Total      int
	Satellites int
	Debris     int
	Decaying   int // below the anomaly altitude
	Pinned     int

	Collisions      int
	DebrisGenerated int
	Level           int
	Phase           cascade.Phase
	Terminal        bool
	Evicted         int
	Suppressed      int

	Bands     [4]int  // bodies per lod band at the last classification
	Dropped   float64 // sim seconds discarded by the substep cap
	Scheduled int     // scripted collisions still pending
}
