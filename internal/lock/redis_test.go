package lock

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*RedisLocker, *mr.Miniredis) {
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLocker(client), m
}

func TestRedisLocker_AcquireIsExclusive(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	ok, err := locker.Acquire(ctx, "refresh-lock:1", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.Acquire(ctx, "refresh-lock:1", "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = locker.Acquire(ctx, "refresh-lock:2", "owner-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLocker_ReleaseChecksOwner(t *testing.T) {
	locker, m := newLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "refresh-lock:1", "owner-a", time.Minute)
	require.NoError(t, err)

	released, err := locker.Release(ctx, "refresh-lock:1", "owner-b")
	require.NoError(t, err)
	require.False(t, released)
	require.True(t, m.Exists("refresh-lock:1"))

	released, err = locker.Release(ctx, "refresh-lock:1", "owner-a")
	require.NoError(t, err)
	require.True(t, released)
	require.False(t, m.Exists("refresh-lock:1"))

	ok, err := locker.Acquire(ctx, "refresh-lock:1", "owner-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLocker_LeaseExpires(t *testing.T) {
	locker, m := newLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "refresh-lock:1", "owner-a", 10*time.Second)
	require.NoError(t, err)

	m.FastForward(11 * time.Second)

	ok, err := locker.Acquire(ctx, "refresh-lock:1", "owner-b", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := locker.Release(ctx, "refresh-lock:1", "owner-a")
	require.NoError(t, err)
	require.False(t, released)
}
