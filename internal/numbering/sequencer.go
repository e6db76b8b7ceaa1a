package numbering

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the ticket counter in Redis.
const DefaultRedisKey = "ticket:number:seq"

// AtomicSequencer is an in-process counter. Numbers are only unique within one process.
type AtomicSequencer struct {
	value atomic.Int64
}

// NewAtomicSequencer starts counting after start.
func NewAtomicSequencer(start int64) *AtomicSequencer {
	s := &AtomicSequencer{}
	s.value.Store(start)
	return s
}

// Next increments and returns the counter.
func (s *AtomicSequencer) Next(context.Context) (int64, error) {
	return s.value.Add(1), nil
}

// RedisSequencer uses INCR on a shared key, so every service instance draws from one counter.
type RedisSequencer struct {
	client redis.Cmdable
	key    string
}

// NewRedisSequencer builds a sequencer on key; an empty key uses DefaultRedisKey.
func NewRedisSequencer(client redis.Cmdable, key string) *RedisSequencer {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSequencer{client: client, key: key}
}

// Next increments the Redis counter.
func (s *RedisSequencer) Next(ctx context.Context) (int64, error) {
	return s.client.Incr(ctx, s.key).Result()
}
