package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSyncInProgress is returned when a sync for the same panel is already running
var ErrSyncInProgress = errors.New("sync already in progress")

// Locker grants at most one holder per key. TryLock never waits: a held key
// fails with ErrSyncInProgress.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process keyed try-lock. Different keys never block
// each other.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an empty LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrSyncInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares sync locks between instances through Redis. A lock
// expires after ttl so a crashed holder cannot block syncs forever.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-backed Locker
func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, prefix: "panelsync:sync-lock:", ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be canceled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}
