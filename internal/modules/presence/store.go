// README: Presence store contract and the in-process implementation.
package presence

import (
	"context"
	"sync"

	"ridehail/internal/geo"
	"ridehail/internal/types"
)

type Store interface {
	// Upsert creates the record if absent, otherwise applies u to it, and
	// returns the resulting record.
	Upsert(ctx context.Context, u Update) (*Record, error)
	Get(ctx context.Context, driverID types.ID) (*Record, error)
	// Candidates returns at least every located record within radiusKm of
	// near. It may return more; callers apply the exact filter.
	Candidates(ctx context.Context, near types.Point, radiusKm float64) ([]Record, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[types.ID]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[types.ID]*Record)}
}

func (s *MemoryStore) Upsert(_ context.Context, u Update) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[u.DriverID]
	if !ok {
		r = &Record{}
		s.records[u.DriverID] = r
	}
	u.apply(r, !ok)
	out := r.clone()
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, driverID types.ID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[driverID]
	if !ok {
		return nil, ErrDriverNotFound
	}
	out := r.clone()
	return &out, nil
}

func (s *MemoryStore) Candidates(_ context.Context, near types.Point, radiusKm float64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if r.Location == nil {
			continue
		}
		if geo.Between(near, *r.Location) > radiusKm {
			continue
		}
		out = append(out, r.clone())
	}
	return out, nil
}
