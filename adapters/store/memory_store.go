// Package store holds the token revocation backends: Redis for deployments,
// an in-memory map for tests and single-node runs.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
)

// MemoryStore implements ports.Store with an in-memory map. Entries expire
// lazily on read; the HMAC key rotates on restart so nothing needs to
// survive the process.
type MemoryStore struct {
	mu      sync.RWMutex
	expires map[string]time.Time
	now     func() time.Time
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// InvalidateToken marks a token id revoked until expiry has passed.
func (s *MemoryStore) InvalidateToken(_ context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expires[tokenID] = s.now().Add(expiry)
	return nil
}

// IsTokenInvalidated reports whether a token id is currently revoked.
func (s *MemoryStore) IsTokenInvalidated(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.expires[tokenID]
	if !ok {
		return false, nil
	}
	if s.now().After(deadline) {
		delete(s.expires, tokenID)
		return false, nil
	}
	return true, nil
}

// Clear removes all entries. Used to reset state between tests.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expires = make(map[string]time.Time)
}
