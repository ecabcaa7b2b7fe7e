// Package sessionkeys stores the per-session symmetric keys handed out at
// login. Keys live only in Redis and disappear with their TTL.
package sessionkeys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sonifoy/authsvc/internal/common"
)

// Store holds session keys with a bounded lifetime.
type Store interface {
	// Put stores key under sessionID. An existing key is replaced.
	Put(ctx context.Context, sessionID string, key []byte) error
	// Get returns the key of sessionID, or common.ErrorNotFound once it is
	// absent or expired.
	Get(ctx context.Context, sessionID string) ([]byte, error)
	// Delete removes the key of sessionID. Deleting an absent key succeeds.
	Delete(ctx context.Context, sessionID string) error
}

// RedisStore keeps session keys as raw bytes under "<prefix>:<session id>".
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a Store writing keys with the given ttl.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, key []byte) error {
	if err := s.redis.Set(ctx, s.key(sessionID), key, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}
