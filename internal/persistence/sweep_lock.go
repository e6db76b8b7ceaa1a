package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultSweepLockKey names the Redis key guarding the escalation sweep.
const DefaultSweepLockKey = "ticket:escalation:sweep:lock"

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// SweepLock is a single-holder lease stored in Redis so that only one service
// instance runs the escalation sweep at a time.
type SweepLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewSweepLock builds a lock on the Redis client. ttl bounds how long a crashed holder blocks others.
func NewSweepLock(r *Redis, key string, ttl time.Duration) *SweepLock {
	if key == "" {
		key = DefaultSweepLockKey
	}
	if ttl <= 0 {
		ttl = 4 * time.Minute
	}
	var client redis.Cmdable
	if r != nil && r.Client != nil {
		client = r.Client
	}
	return &SweepLock{client: client, key: key, ttl: ttl}
}

// Acquire tries to take the lease. It returns a release func when the lease was taken,
// and ok=false when another holder owns it.
func (l *SweepLock) Acquire(ctx context.Context) (release func(), ok bool, err error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("redis client not configured")
	}
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
