package window

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownPair is returned for lookups against a pair that was never seeded.
	ErrUnknownPair = errors.New("window: unknown currency pair")
	// ErrAlreadySeeded is returned when Seed is called twice for the same pair.
	ErrAlreadySeeded = errors.New("window: currency pair already seeded")
	// ErrNonFiniteRate is returned when a sample's rate is NaN or infinite.
	ErrNonFiniteRate = errors.New("window: rate must be finite")
)

// Store holds one bounded window per currency pair.
//
// Every method is atomic for its pair. Callers that need a read-then-admit
// sequence to be atomic (the tracker does) serialise per pair themselves.
type Store struct {
	capacity int
	ordering Ordering

	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	mu   sync.Mutex
	win  bounded
	sum  decimal.Decimal
	next uint64
}

// NewStore creates an empty store whose windows hold at most capacity samples.
func NewStore(capacity int, ordering Ordering) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be greater than zero, got %d", capacity)
	}
	if _, err := ParseOrdering(string(ordering)); err != nil {
		return nil, err
	}
	return &Store{
		capacity: capacity,
		ordering: ordering,
		series:   make(map[string]*series),
	}, nil
}

// Capacity returns the per-pair window bound.
func (s *Store) Capacity() int { return s.capacity }

// Ordering returns the active eviction policy.
func (s *Store) Ordering() Ordering { return s.ordering }

// Seed creates the window for a pair holding a single sample.
func (s *Store) Seed(pair string, e Entry) error {
	if err := checkFinite(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.series[pair]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadySeeded, pair)
	}

	sr := &series{win: newBounded(s.ordering, s.capacity)}
	sr.admit(e)
	s.series[pair] = sr
	return nil
}

// Admit adds a sample to an existing window. When the window is full the
// sample chosen by the ordering policy is evicted first and returned.
func (s *Store) Admit(pair string, e Entry) (evicted Entry, wasFull bool, err error) {
	if err := checkFinite(e); err != nil {
		return Entry{}, false, err
	}
	sr, err := s.lookup(pair)
	if err != nil {
		return Entry{}, false, err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.win.len() >= s.capacity {
		evicted = sr.win.pop()
		sr.sum = sr.sum.Sub(decimal.NewFromFloat(evicted.Rate))
		wasFull = true
	}
	sr.admit(e)
	return evicted, wasFull, nil
}

// Average returns sum/count for the pair. The sum is exact, so a window
// holding only zeros averages to exactly zero.
func (s *Store) Average(pair string) (float64, error) {
	sr, err := s.lookup(pair)
	if err != nil {
		return 0, err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.sum.Div(decimal.NewFromInt(int64(sr.win.len()))).InexactFloat64(), nil
}

// Size returns the number of samples currently held for the pair.
func (s *Store) Size(pair string) (int, error) {
	sr, err := s.lookup(pair)
	if err != nil {
		return 0, err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.win.len(), nil
}

// sumOf returns the running sum of the rates held for the pair.
func (s *Store) sumOf(pair string) (decimal.Decimal, error) {
	sr, err := s.lookup(pair)
	if err != nil {
		return decimal.Zero, err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.sum, nil
}

// Entries returns a copy of the pair's samples in eviction order.
func (s *Store) Entries(pair string) ([]Entry, error) {
	sr, err := s.lookup(pair)
	if err != nil {
		return nil, err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.win.entries(), nil
}

// Known reports whether the pair has been seeded.
func (s *Store) Known(pair string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.series[pair]
	return ok
}

// Pairs lists every seeded pair, sorted.
func (s *Store) Pairs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.series))
}

func (s *Store) lookup(pair string) (*series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[pair]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	return sr, nil
}

func (sr *series) admit(e Entry) {
	e.seq = sr.next
	sr.next++
	sr.win.push(e)
	sr.sum = sr.sum.Add(decimal.NewFromFloat(e.Rate))
}

func checkFinite(e Entry) error {
	if math.IsNaN(e.Rate) || math.IsInf(e.Rate, 0) {
		return fmt.Errorf("%w: %v", ErrNonFiniteRate, e.Rate)
	}
	return nil
}
