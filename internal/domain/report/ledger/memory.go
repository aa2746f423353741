package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"cleancity-server-go/internal/domain/report/aggregate"
)

// memoryStore keeps the ledger in process memory. Used by tests and as the
// fallback driver when no persistence is configured.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*aggregate.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*aggregate.Record)}
}

func (s *memoryStore) Put(_ context.Context, record *aggregate.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*aggregate.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, aggregate.ErrReportNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *memoryStore) MarkVerified(_ context.Context, id string, at time.Time) (*aggregate.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, aggregate.ErrReportNotFound
	}
	record.Verified = true
	record.VerifiedAt = &at
	clone := *record
	return &clone, nil
}

func (s *memoryStore) List(_ context.Context) ([]*aggregate.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*aggregate.Record, 0, len(s.records))
	for _, record := range s.records {
		clone := *record
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{Total: len(s.records)}
	for _, record := range s.records {
		if record.Verified {
			stats.Verified++
		}
	}
	return stats, nil
}

func (s *memoryStore) Close() error {
	return nil
}
