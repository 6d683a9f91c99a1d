package store

import (
	"context"
	"sync"

	"credence/internal/ledger"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	"credence/pkg/platform/tx"
)

type activityKey struct {
	tenant   domain.TenantID
	activity domain.ActivityID
}

// InMemoryStore keeps each activity's records as a slice indexed by sequence-1.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[activityKey][]ledger.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[activityKey][]ledger.Record)}
}

func (s *InMemoryStore) Append(ctx context.Context, rec ledger.Record) error {
	key := activityKey{rec.TenantID, rec.ActivityID}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.records[key]
	last := int64(len(existing))
	if rec.SequenceNo <= last {
		return nil
	}
	if rec.SequenceNo != last+1 {
		return sentinel.ErrInvalidState
	}
	s.records[key] = append(existing, rec)
	tx.OnRollback(ctx, func() { s.truncate(key, last) })
	return nil
}

func (s *InMemoryStore) truncate(key activityKey, length int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if recs := s.records[key]; int64(len(recs)) > length {
		s.records[key] = recs[:length]
	}
}

func (s *InMemoryStore) List(_ context.Context, tenantID domain.TenantID, activityID domain.ActivityID, afterSeq int64, limit int) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[activityKey{tenantID, activityID}]
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(recs)) {
		return []ledger.Record{}, nil
	}
	end := int64(len(recs))
	if limit > 0 && afterSeq+int64(limit) < end {
		end = afterSeq + int64(limit)
	}
	return append([]ledger.Record(nil), recs[afterSeq:end]...), nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID domain.TenantID, activityID domain.ActivityID, seq int64) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[activityKey{tenantID, activityID}]
	if seq < 1 || seq > int64(len(recs)) {
		return nil, sentinel.ErrNotFound
	}
	rec := recs[seq-1]
	return &rec, nil
}

// Tamper overwrites a stored record in place. It exists so integrity checks can
// be exercised in tests; production stores never update records.
func (s *InMemoryStore) Tamper(rec ledger.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := activityKey{rec.TenantID, rec.ActivityID}
	if recs := s.records[key]; rec.SequenceNo >= 1 && rec.SequenceNo <= int64(len(recs)) {
		recs[rec.SequenceNo-1] = rec
	}
}
