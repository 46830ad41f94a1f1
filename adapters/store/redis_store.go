package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/walletbridge/core"
	"github.com/layer-3/walletbridge/ports"
)

const (
	snapshotKey = "walletbridge:session"
	// legacyKey held a bare AuthTokens JSON before the snapshot format
	// carried the wallet address.
	legacyKey = "walletbridge:tokens"
)

// RedisStore is a Redis implementation of the session store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) ports.Store {
	return &RedisStore{client: client}
}

// Load reads the current-format snapshot, falling back to the legacy
// tokens-only record. A legacy record is deleted once read, whether or not
// it parses; a parsable one is migrated to the current shape first.
func (s *RedisStore) Load(ctx context.Context) (*core.SessionSnapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey).Result()
	if err == nil {
		var snapshot core.SessionSnapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			return nil, fmt.Errorf("corrupt session snapshot: %w", err)
		}
		return &snapshot, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperation, err)
	}

	return s.loadLegacy(ctx)
}

func (s *RedisStore) loadLegacy(ctx context.Context) (*core.SessionSnapshot, error) {
	raw, err := s.client.Get(ctx, legacyKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperation, err)
	}

	defer s.client.Del(ctx, legacyKey)

	var tokens core.AuthTokens
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, nil
	}

	snapshot := &core.SessionSnapshot{Tokens: tokens}
	if err := s.Save(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Save writes the snapshot under the current-format key with no expiry;
// validity is decided by the token expirations, not the store.
func (s *RedisStore) Save(ctx context.Context, snapshot *core.SessionSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperation, err)
	}
	return nil
}

// Clear removes both the current and legacy records.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, snapshotKey, legacyKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperation, err)
	}
	return nil
}
