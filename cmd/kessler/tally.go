package main

import (
	"fmt"
	"sort"

	"github.com/quillaja/kessler/internal/engine"
	"github.com/quillaja/kessler/internal/events"
)

// tally counts removals by reason from a bus subscription.
type tally struct {
	sub     *events.Subscription[engine.Removal]
	reasons map[string]int
	done    chan struct{}
}

func countRemovals(sub *events.Subscription[engine.Removal]) *tally {
	t := &tally{sub: sub, reasons: map[string]int{}, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		for r := range sub.C {
			t.reasons[r.Reason.String()]++
		}
	}()
	return t
}

// stop closes the subscription and waits for the counts to settle.
func (t *tally) stop() {
	t.sub.Close()
	<-t.done
}

// lines reports each reason in name order, then anything the subscription
// missed. Call after stop.
func (t *tally) lines() []string {
	names := make([]string, 0, len(t.reasons))
	for name := range t.reasons {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names)+1)
	for _, name := range names {
		out = append(out, fmt.Sprintf("removed (%s): %d", name, t.reasons[name]))
	}
	if n := t.sub.Dropped(); n > 0 {
		out = append(out, fmt.Sprintf("removals not counted (subscriber buffer full): %d", n))
	}
	return out
}
