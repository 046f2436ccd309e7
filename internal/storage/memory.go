package storage

import (
	"context"
	"sync"

	"github.com/user/listing-harvester/internal/domain"
)

// MemoryStore keeps run statuses in process when Redis is not configured.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]domain.RunStatus
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]domain.RunStatus)}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) SaveRun(_ context.Context, run *domain.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = copyRun(*run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*domain.RunStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	c := copyRun(run)
	return &c, nil
}

// copyRun detaches the maps and slices so callers cannot mutate stored state.
func copyRun(r domain.RunStatus) domain.RunStatus {
	r.Regions = append([]domain.Region(nil), r.Regions...)
	if r.Pages != nil {
		pages := make(map[domain.Region]int, len(r.Pages))
		for k, v := range r.Pages {
			pages[k] = v
		}
		r.Pages = pages
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		r.FinishedAt = &t
	}
	return r
}
