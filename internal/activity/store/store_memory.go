package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"credence/internal/activity/models"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	"credence/pkg/platform/tx"
)

// InMemoryStore keeps activities in a map. Writes made inside a tx.KeyedRunner
// unit are undone if the unit fails.
type InMemoryStore struct {
	mu         sync.RWMutex
	activities map[domain.ActivityID]*models.Activity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{activities: make(map[domain.ActivityID]*models.Activity)}
}

func (s *InMemoryStore) Create(ctx context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[a.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.activities[a.ID] = a.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.activities, a.ID)
	})
	return nil
}

// FindByID returns ErrNotFound for activities of other tenants.
func (s *InMemoryStore) FindByID(_ context.Context, tenantID domain.TenantID, id domain.ActivityID) (*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok || a.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

// Update replaces the stored activity if its version still equals expectedVersion.
func (s *InMemoryStore) Update(ctx context.Context, a *models.Activity, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.activities[a.ID]
	if !ok || current.TenantID != a.TenantID {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	s.activities[a.ID] = a.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.activities[current.ID] = current
	})
	return nil
}

func (s *InMemoryStore) List(_ context.Context, f ListFilter) ([]*models.Activity, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	matched := make([]*models.Activity, 0)
	for _, a := range s.activities {
		if a.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.StudentID.IsNil() && a.StudentID != f.StudentID {
			continue
		}
		if !f.AfterID.IsNil() && bytes.Compare(a.ID[:], f.AfterID[:]) <= 0 {
			continue
		}
		matched = append(matched, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return bytes.Compare(matched[i].ID[:], matched[j].ID[:]) < 0
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ListKeys pages through every activity of every tenant, ordered by id.
func (s *InMemoryStore) ListKeys(_ context.Context, afterID domain.ActivityID, limit int) ([]Key, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.RLock()
	keys := make([]Key, 0, len(s.activities))
	for _, a := range s.activities {
		if !afterID.IsNil() && bytes.Compare(a.ID[:], afterID[:]) <= 0 {
			continue
		}
		keys = append(keys, Key{TenantID: a.TenantID, ActivityID: a.ID})
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].ActivityID[:], keys[j].ActivityID[:]) < 0
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}
