package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReleaseFunc releases a held lock.
type ReleaseFunc func(ctx context.Context) error

// Locker guards a critical section keyed by name.
type Locker interface {
	// TryLock acquires key for at most ttl. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

type redisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker returns a Locker backed by SET NX with a per-holder token.
func NewRedisLocker(r *Redis, prefix string) Locker {
	var client *redis.Client
	if r != nil {
		client = r.Client
	}
	return &redisLocker{client: client, prefix: prefix}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	if l.client == nil {
		return nil, false, errors.New("redis client not configured")
	}
	fullKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}
	return release, true, nil
}

type localLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLocalLocker returns an in-process Locker for single-instance deployments.
func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *localLocker) TryLock(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return nil, false, nil
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry
	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expiry) {
			delete(l.held, key)
		}
		return nil
	}
	return release, true, nil
}
