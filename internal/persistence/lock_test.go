package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	release, ok, err := locker.TryLock(ctx, "tx1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "tx1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, err = locker.TryLock(ctx, "tx2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")

	require.NoError(t, release(ctx))
	_, ok, err = locker.TryLock(ctx, "tx1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := &localLocker{held: map[string]time.Time{}, clock: func() time.Time { return now }}

	staleRelease, ok, _ := locker.TryLock(ctx, "tx1", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = locker.TryLock(ctx, "tx1", time.Second)
	require.True(t, ok, "expired lock can be taken over")

	require.NoError(t, staleRelease(ctx))
	_, ok, _ = locker.TryLock(ctx, "tx1", time.Second)
	assert.False(t, ok, "stale release must not drop the new holder")
}

func TestRedisLockerWithoutClient(t *testing.T) {
	_, ok, err := NewRedisLocker(nil, "settle:").TryLock(context.Background(), "tx1", time.Second)
	assert.Error(t, err)
	assert.False(t, ok)
}
