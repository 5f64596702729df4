package reconciler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "a")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "a")
	assert.ErrorIs(t, err, ErrSyncInProgress)

	unlockB, err := l.TryLock(ctx, "b")
	require.NoError(t, err)
	unlockB()

	unlock()
	unlock() // idempotent

	again, err := l.TryLock(ctx, "a")
	require.NoError(t, err)
	again()
}

// TestRedisLocker needs a reachable Redis; set PANELSYNC_TEST_REDIS_ADDR to run it
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("PANELSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PANELSYNC_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	l := NewRedisLocker(client, time.Minute)
	key := "test-" + time.Now().Format("150405.000000")

	unlock, err := l.TryLock(ctx, key)
	require.NoError(t, err)

	_, err = NewRedisLocker(client, time.Minute).TryLock(ctx, key)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	unlock()
	exists, err := client.Exists(ctx, "panelsync:sync-lock:"+key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
