package proof

import (
	"context"
	"sync"

	"credence/pkg/platform/sentinel"
)

// Store is content-addressable blob storage. Stored bytes are immutable.
type Store interface {
	Put(ctx context.Context, data []byte) (ContentHash, error)
	Get(ctx context.Context, hash ContentHash) ([]byte, error)
}

// InMemoryStore is a content-addressed store kept in process memory. It stands
// in for the external proof store in development and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	alg   Algorithm
	blobs map[ContentHash][]byte
}

func NewInMemoryStore(alg Algorithm) *InMemoryStore {
	if alg == "" {
		alg = AlgSHA256
	}
	return &InMemoryStore{alg: alg, blobs: make(map[ContentHash][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (ContentHash, error) {
	hash, err := Compute(s.alg, data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; !ok {
		s.blobs[hash] = append([]byte(nil), data...)
	}
	return hash, nil
}

func (s *InMemoryStore) Get(_ context.Context, hash ContentHash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Overwrite replaces the bytes stored under hash without rehashing.
// It exists to simulate storage corruption in tests.
func (s *InMemoryStore) Overwrite(hash ContentHash, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[hash] = append([]byte(nil), data...)
}
