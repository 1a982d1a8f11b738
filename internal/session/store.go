package session

import "sync"

// Store holds the single current snapshot of a running session: its state,
// pause-reason set, and counters. It is the generalisation of a
// per-operation store (create one row per job, read/update it from many
// HTTP handlers) down to a single row owned by one engine task — the engine
// is still the only writer, but Snapshot lets any number of readers (a
// status server, a CLI poll loop) observe a consistent point-in-time copy
// without taking the engine's own lock.
type Store struct {
	mu       sync.RWMutex
	state    State
	reasons  PauseReasonSet
	counters Counters
}

// NewStore returns a Store in the Idle state with no pause reasons.
func NewStore() *Store {
	return &Store{
		state:   Idle,
		reasons: NewPauseReasonSet(),
	}
}

// Snapshot is a consistent, independent copy of the store's fields at one
// instant.
type Snapshot struct {
	State    State
	Reasons  PauseReasonSet
	Counters Counters
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:    s.state,
		Reasons:  s.reasons.Snapshot(),
		Counters: s.counters,
	}
}

func (s *Store) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// AddReason adds reason to the pause set and returns whether it was newly
// added (false if the reason was already present).
func (s *Store) AddReason(reason PauseReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reasons.Add(reason)
}

// ClearReason removes reason from the pause set and returns whether the set
// is now empty.
func (s *Store) ClearReason(reason PauseReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reasons.Clear(reason)
}

// HasReason reports whether reason is currently set.
func (s *Store) HasReason(reason PauseReason) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reasons.Has(reason)
}

// ReasonsEmpty reports whether the pause-reason set is currently empty.
func (s *Store) ReasonsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reasons.Empty()
}

// Counters returns a copy of the current counters.
func (s *Store) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters
}

func (s *Store) IncrCaptures()       { s.mu.Lock(); s.counters.Captures++; s.mu.Unlock() }
func (s *Store) IncrSkipped()        { s.mu.Lock(); s.counters.Skipped++; s.mu.Unlock() }
func (s *Store) IncrFailures()       { s.mu.Lock(); s.counters.Failures++; s.mu.Unlock() }
func (s *Store) IncrAnalyzed()       { s.mu.Lock(); s.counters.Analyzed++; s.mu.Unlock() }
func (s *Store) AddReclaimedFiles(n uint64) {
	s.mu.Lock()
	s.counters.ReclaimedFiles += n
	s.mu.Unlock()
}
func (s *Store) AddBytesWritten(n uint64) {
	s.mu.Lock()
	s.counters.BytesWritten += n
	s.mu.Unlock()
}
