package mirror

import "sync"

// InFlightSet holds the identities of records between classification and
// completion. It is shared by the dispatch loop and pipeline workers.
type InFlightSet struct {
	mu      sync.Mutex
	pending map[RecordKey]struct{}
}

var _ InFlightChecker = (*InFlightSet)(nil)

func NewInFlightSet() *InFlightSet {
	return &InFlightSet{pending: make(map[RecordKey]struct{})}
}

// Add inserts key and reports whether it was absent.
func (s *InFlightSet) Add(key RecordKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok {
		return false
	}
	s.pending[key] = struct{}{}
	return true
}

func (s *InFlightSet) Remove(key RecordKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

func (s *InFlightSet) Contains(key RecordKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

func (s *InFlightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
