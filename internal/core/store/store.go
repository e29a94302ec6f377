package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/evetools/fleetmeter/internal/core/model"
)

// ErrOutOfOrder is returned when an append would violate the per-source
// timestamp monotonicity guarantee. It indicates an upstream reader bug;
// the offending event is rejected rather than reordered.
var ErrOutOfOrder = errors.New("event store: same-source timestamp regression")

// Store is the append-only, globally time-ordered event collection for
// one session. Each per-source stream must be appended in non-decreasing
// timestamp order; the store performs the cross-source merge, keeping
// equal timestamps stable by insertion order.
//
// Writes happen on a single coordinator goroutine. The mutex exists for
// read-only consumers (status displays, exports) on other goroutines;
// the aggregator shares the writer's goroutine and uses View.
type Store struct {
	mu           sync.RWMutex
	events       []model.CombatEvent
	lastBySource map[string]time.Duration
	version      uint64
}

func New() *Store {
	return &Store{
		lastBySource: make(map[string]time.Duration),
	}
}

// Append inserts one classified event. Appends at the global tail are
// O(1) amortized; an event older than the current tail (another source
// lagging behind) is merged in by binary search, which bumps the version
// so incremental readers know their cursors are stale.
func (s *Store) Append(ev model.CombatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, seen := s.lastBySource[ev.Character]; seen && ev.Timestamp < last {
		return ErrOutOfOrder
	}
	s.lastBySource[ev.Character] = ev.Timestamp

	n := len(s.events)
	if n == 0 || s.events[n-1].Timestamp <= ev.Timestamp {
		s.events = append(s.events, ev)
		return nil
	}

	// Upper bound keeps earlier-inserted events first on timestamp ties.
	idx := sort.Search(n, func(i int) bool {
		return s.events[i].Timestamp > ev.Timestamp
	})
	s.events = append(s.events, model.CombatEvent{})
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
	s.version++
	return nil
}

// View returns the current sorted event slice and its version. The slice
// must only be used from the writer's goroutine; events are immutable but
// the backing array shifts on out-of-tail inserts.
func (s *Store) View() ([]model.CombatEvent, uint64) {
	return s.events, s.version
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Version increments whenever an insert lands anywhere but the tail.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// EventsIn copies the events with timestamp in [start, end). This is the
// cold path for exports and full recomputes; live sampling goes through
// the aggregator's cursors instead.
func (s *Store) EventsIn(start, end time.Duration) []model.CombatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Timestamp >= start
	})
	hi := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Timestamp >= end
	})
	out := make([]model.CombatEvent, hi-lo)
	copy(out, s.events[lo:hi])
	return out
}
