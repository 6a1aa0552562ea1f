package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/shared"
)

func TestLockerExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := New(ctx, mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client, 0)
	key := shared.CompanyLockKey("c1")
	lock, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, key, time.Minute)
	require.ErrorIs(t, err, shared.ErrLockHeld)

	require.NoError(t, lock.Release(ctx))
	again, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestNewRejectsUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), addr)
	require.Error(t, err)
}
