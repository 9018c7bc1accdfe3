package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the journal in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]Run
	order       []string
	entries     map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]Run)
	s.order = nil
	s.entries = make(map[string][]Entry)
	return nil
}

func (s *MemoryStore) StartRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if _, dup := s.runs[run.ID]; dup {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	return nil
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[entry.RunID]; !ok {
		return fmt.Errorf("unknown run %s", entry.RunID)
	}
	s.entries[entry.RunID] = append(s.entries[entry.RunID], entry)
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, id string, endedAt time.Time, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("unknown run %s", id)
	}
	run.EndedAt = endedAt
	run.Outcome = outcome
	s.runs[id] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) Entries(_ context.Context, runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]Entry(nil), s.entries[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Run
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.runs[s.order[i]])
	}
	return out, nil
}
