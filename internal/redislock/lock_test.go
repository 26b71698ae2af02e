package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) Locker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewSlotLocker(client, 2*time.Second)
}

func TestWithSlotLockRunsCriticalSection(t *testing.T) {
	locker := newTestLocker(t)

	ran := false
	err := locker.WithSlotLock(context.Background(), "2024-01-15", "09:00:00", func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithSlotLockContention(t *testing.T) {
	locker := newTestLocker(t)

	err := locker.WithSlotLock(context.Background(), "2024-01-15", "09:00:00", func(ctx context.Context) error {
		// Same slot while held: must not be granted.
		inner := locker.WithSlotLock(ctx, "2024-01-15", "09:00:00", func(ctx context.Context) error {
			t.Fatal("second holder entered the critical section")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		// A different slot is an independent lock.
		other := locker.WithSlotLock(ctx, "2024-01-15", "10:00:00", func(ctx context.Context) error {
			return nil
		})
		assert.NoError(t, other)

		return nil
	})
	require.NoError(t, err)
}

func TestWithSlotLockReleasesOnReturn(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.WithSlotLock(ctx, "2024-01-15", "09:00:00", func(ctx context.Context) error {
		return nil
	}))

	// Immediately reacquirable once the first section returns.
	require.NoError(t, locker.WithSlotLock(ctx, "2024-01-15", "09:00:00", func(ctx context.Context) error {
		return nil
	}))
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	ran := false
	require.NoError(t, locker.WithSlotLock(ctx, "2024-01-15", "09:00:00", func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
