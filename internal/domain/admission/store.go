package admission

import (
	"context"
	"sort"
	"sync"
)

// Store persists admission records. Upsert is last-writer-wins; List orders
// by LastUpdated, newest first.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*Record, int, error) {
	s.mu.RLock()
	all := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		rec := rec
		all = append(all, &rec)
	}
	s.mu.RUnlock()

	sortNewestFirst(all)
	return page(all, limit, offset), len(all), nil
}

// sortNewestFirst orders by LastUpdated descending, then ID for a stable order.
func sortNewestFirst(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LastUpdated.Equal(recs[j].LastUpdated) {
			return recs[i].LastUpdated.After(recs[j].LastUpdated)
		}
		return recs[i].ID < recs[j].ID
	})
}

// page slices recs by limit and offset. A limit <= 0 means no limit.
func page(recs []*Record, limit, offset int) []*Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(recs) {
		return []*Record{}
	}
	end := len(recs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return recs[offset:end]
}
