package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sonifoy/authsvc/internal/common"
)

// RedisPublisher appends events to a Redis stream. Each entry carries the
// identity ID as "key" and the JSON envelope as "payload". The stream is
// trimmed approximately to maxLen entries.
type RedisPublisher struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisPublisher publishes to stream; maxLen <= 0 disables trimming.
func NewRedisPublisher(client redis.UniversalClient, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{redis: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"key":     event.IdentityID,
			"type":    event.Type,
			"payload": payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}
