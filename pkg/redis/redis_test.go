package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinusleroux/crowdbiz-graph/internal/testenv"
	"github.com/tinusleroux/crowdbiz-graph/pkg/redis"
)

func TestClient_LookupSet(t *testing.T) {
	ctx := context.Background()
	client := testenv.Redis(t)

	_, ok, err := client.Lookup(ctx, "crowdbiz:department:head coach")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, "crowdbiz:department:head coach", "Other", time.Minute))
	got, ok, err := client.Lookup(ctx, "crowdbiz:department:head coach")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Other", got)
}

func TestLocker_WithLock(t *testing.T) {
	ctx := context.Background()
	client := testenv.Redis(t)
	locker := redis.NewLocker(client, "test:lock:")

	t.Run("second holder fails fast", func(t *testing.T) {
		err := locker.WithLock(ctx, "commit:b1", time.Minute, func(ctx context.Context) error {
			inner := locker.WithLock(ctx, "commit:b1", time.Minute, func(context.Context) error {
				t.Fatal("lock acquired twice")
				return nil
			})
			assert.ErrorIs(t, inner, redis.ErrLockNotAcquired)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("lock is released after fn", func(t *testing.T) {
		boom := errors.New("boom")
		err := locker.WithLock(ctx, "commit:b2", time.Minute, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)

		ran := false
		err = locker.WithLock(ctx, "commit:b2", time.Minute, func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("different keys do not contend", func(t *testing.T) {
		err := locker.WithLock(ctx, "commit:b3", time.Minute, func(ctx context.Context) error {
			return locker.WithLock(ctx, "commit:b4", time.Minute, func(context.Context) error { return nil })
		})
		assert.NoError(t, err)
	})

	t.Run("lease is renewed past the ttl", func(t *testing.T) {
		ttl := 300 * time.Millisecond
		err := locker.WithLock(ctx, "commit:b5", ttl, func(ctx context.Context) error {
			time.Sleep(3 * ttl)
			return locker.WithLock(ctx, "commit:b5", ttl, func(context.Context) error {
				t.Fatal("lock expired while held")
				return nil
			})
		})
		assert.ErrorIs(t, err, redis.ErrLockNotAcquired)
	})

	t.Run("losing the lease cancels fn", func(t *testing.T) {
		ttl := 300 * time.Millisecond
		err := locker.WithLock(ctx, "commit:b6", ttl, func(ctx context.Context) error {
			require.NoError(t, client.Set(ctx, "test:lock:commit:b6", "someone else", time.Minute))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return errors.New("fn was not cancelled")
			}
		})
		assert.ErrorIs(t, err, redis.ErrLockLost)
	})
}
