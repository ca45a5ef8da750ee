package memory

import (
	"context"
	"sync"
)

// NumberSequencer hands out per-year order sequence values from process
// memory. The mutex guarantees two concurrent callers never see the same
// value; persistence across restarts needs the postgres sequencer.
type NumberSequencer struct {
	mu   sync.Mutex
	next map[int]int64
}

func NewNumberSequencer() *NumberSequencer {
	return &NumberSequencer{next: make(map[int]int64)}
}

func (s *NumberSequencer) Next(_ context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[year]++
	return s.next[year], nil
}
