package sessionkeys

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sonifoy/authsvc/internal/common"
)

type memoryEntry struct {
	key       []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store with lazy expiry, used when no Redis
// address is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), ttl: ttl, now: now}
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string, key []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{key: bytes.Clone(key), expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, sessionID)
		return nil, common.ErrorNotFound
	}
	return bytes.Clone(e.key), nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
