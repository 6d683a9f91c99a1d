package store

import (
	"context"
	"sync"
	"time"

	"credence/internal/credential/models"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	"credence/pkg/platform/tx"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[domain.CredentialID]*models.Credential
	byActivity  map[domain.ActivityID][]domain.CredentialID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		credentials: make(map[domain.CredentialID]*models.Credential),
		byActivity:  make(map[domain.ActivityID][]domain.CredentialID),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byActivity[c.ActivityID] {
		if !s.credentials[id].IsRevoked() {
			return sentinel.ErrAlreadyExists
		}
	}
	cp := clone(c)
	s.credentials[c.ID] = cp
	s.byActivity[c.ActivityID] = append(s.byActivity[c.ActivityID], c.ID)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.credentials, c.ID)
		ids := s.byActivity[c.ActivityID]
		if n := len(ids); n > 0 && ids[n-1] == c.ID {
			s.byActivity[c.ActivityID] = ids[:n-1]
		}
	})
	return nil
}

func (s *InMemoryStore) FindByActivity(_ context.Context, tenantID domain.TenantID, activityID domain.ActivityID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byActivity[activityID]
	if len(ids) == 0 {
		return nil, sentinel.ErrNotFound
	}
	c := s.credentials[ids[len(ids)-1]]
	if c.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) Revoke(ctx context.Context, tenantID domain.TenantID, id domain.CredentialID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok || c.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	if c.IsRevoked() {
		return nil
	}
	c.RevokedAt = &at
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		c.RevokedAt = nil
	})
	return nil
}

func clone(c *models.Credential) *models.Credential {
	cp := *c
	cp.Payload = append([]byte(nil), c.Payload...)
	cp.Signature = append([]byte(nil), c.Signature...)
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
