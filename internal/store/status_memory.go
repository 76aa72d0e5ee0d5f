package store

import (
	"context"
	"sync"
)

// MemoryStatus is an in-process StatusStore for deployments without Redis.
type MemoryStatus struct {
	mu   sync.RWMutex
	jobs map[string]Status
}

func NewMemoryStatus() *MemoryStatus {
	return &MemoryStatus{jobs: make(map[string]Status)}
}

func (s *MemoryStatus) Set(_ context.Context, jobID string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Merge like the Redis hash does: zero-value fields keep prior values.
	prev, ok := s.jobs[jobID]
	if ok {
		if st.Start == nil {
			st.Start = prev.Start
		}
		if st.End == nil {
			st.End = prev.End
		}
		if st.Metadata == nil {
			st.Metadata = prev.Metadata
		}
	}
	s.jobs[jobID] = st
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, jobID string) (Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[jobID]
	return st, ok, nil
}

func (s *MemoryStatus) Close() error { return nil }
