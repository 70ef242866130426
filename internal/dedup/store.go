// Package dedup tracks notification message ids that were already forwarded.
//
// The set has no size cap. Clearing it on a fixed cycle (see RunResetCycle) is
// the only eviction: with a long cycle and a high-volume topic the set grows
// without bound between resets.
package dedup

import "sync"

// Store is a set of message ids seen since the last reset.
//
// It is safe for concurrent use. All mutation goes through CheckAndMark and
// Clear; each holds the lock for its whole duration, so a concurrent Clear can
// never observe a half-inserted id and a CheckAndMark never sees a half-cleared set.
type Store struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func New() *Store {
	return &Store{seen: map[string]struct{}{}}
}

// CheckAndMark reports whether id was already present.
// If it was not, id is inserted and false is returned (the event must be forwarded).
func (s *Store) CheckAndMark(id string) (duplicate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

// Clear empties the set and returns how many ids were evicted.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.seen)
	s.seen = make(map[string]struct{})
	s.mu.Unlock()
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
