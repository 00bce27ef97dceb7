package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// MemorySaver keeps checkpoints for the lifetime of the process.
type MemorySaver struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
}

func NewMemorySaver() *MemorySaver {
	return &MemorySaver{threads: make(map[string][]*Checkpoint)}
}

func (s *MemorySaver) Put(_ context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[cp.ThreadID] = append(s.threads[cp.ThreadID], clone(cp))
	return nil
}

func (s *MemorySaver) Latest(_ context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.threads[threadID]
	if len(cps) == 0 {
		return nil, ErrNotFound
	}
	return clone(cps[len(cps)-1]), nil
}

func (s *MemorySaver) List(_ context.Context, threadID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.threads[threadID]
	out := make([]*Checkpoint, 0, len(cps))
	for _, cp := range cps {
		out = append(out, clone(cp))
	}
	return out, nil
}

func (s *MemorySaver) Threads(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemorySaver) Close() error { return nil }
