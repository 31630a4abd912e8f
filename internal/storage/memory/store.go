package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
)

// Store is an in-memory implementation of ports.ActivityStore
type Store struct {
	mu      sync.RWMutex
	records []domain.ActivityRecord
}

var _ ports.ActivityStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{}
}

func (s *Store) AppendActivity(ctx context.Context, rec *domain.ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *Store) ListActivity(ctx context.Context, opts ports.ActivityListOptions) ([]*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActivityRecord
	for i := range s.records {
		if opts.ConnectionID != "" && s.records[i].ConnectionID != opts.ConnectionID {
			continue
		}
		rec := s.records[i]
		result = append(result, &rec)
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[len(result)-opts.Limit:]
	}
	return result, nil
}

func (s *Store) Close() error {
	return nil
}
