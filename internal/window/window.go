// Package window keeps a bounded, per-currency-pair set of recent rate samples
// together with an incrementally maintained running sum.
package window

import (
	"fmt"
	"strings"
)

// Ordering selects which sample is evicted once a window is full.
type Ordering string

const (
	// Arrival evicts strictly first-in first-out, ignoring timestamps.
	Arrival Ordering = "arrival"
	// Timestamp evicts the sample with the smallest timestamp held.
	Timestamp Ordering = "timestamp"
)

// ParseOrdering maps a configuration value onto an Ordering.
func ParseOrdering(v string) (Ordering, error) {
	switch Ordering(strings.ToLower(strings.TrimSpace(v))) {
	case Arrival:
		return Arrival, nil
	case Timestamp:
		return Timestamp, nil
	default:
		return "", fmt.Errorf("unknown window ordering %q (want %q or %q)", v, Arrival, Timestamp)
	}
}

// Entry is a single sample held in a window.
type Entry struct {
	Timestamp float64
	Rate      float64

	seq uint64
}

// bounded is implemented by the per-pair window variants.
// pop is only called on a non-empty window.
type bounded interface {
	push(e Entry)
	pop() Entry
	len() int
	// entries lists the held samples in eviction order.
	entries() []Entry
}

func newBounded(o Ordering, capacity int) bounded {
	if o == Timestamp {
		return newOrdered(capacity)
	}
	return newRing(capacity)
}
