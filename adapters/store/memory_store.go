package store

import (
	"context"
	"sync"

	"github.com/layer-3/walletbridge/core"
)

// MemoryStore is an in-memory session store, primarily for tests and local
// development. It honors the same legacy-migration contract as RedisStore.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot *core.SessionSnapshot
	legacy   *core.AuthTokens
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SeedLegacy installs a legacy tokens-only record, as a pre-migration
// persisted state would have left it.
func (s *MemoryStore) SeedLegacy(tokens core.AuthTokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy = &tokens
}

// Load returns the snapshot, migrating a legacy record when present.
func (s *MemoryStore) Load(ctx context.Context) (*core.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil {
		snap := *s.snapshot
		return &snap, nil
	}
	if s.legacy != nil {
		s.snapshot = &core.SessionSnapshot{Tokens: *s.legacy}
		s.legacy = nil
		snap := *s.snapshot
		return &snap, nil
	}
	return nil, nil
}

// Save stores the snapshot.
func (s *MemoryStore) Save(ctx context.Context, snapshot *core.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := *snapshot
	s.snapshot = &snap
	return nil
}

// Clear removes both records.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.legacy = nil
	return nil
}

// Empty reports whether nothing is persisted, for test assertions.
func (s *MemoryStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot == nil && s.legacy == nil
}
