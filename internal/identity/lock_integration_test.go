//go:build integration

package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unify/internal/identity"
	"unify/pkg/testutil/containers"
)

func TestRedisLockSerializesOverlappingObservations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	lock := identity.NewRedisLock(rc.Client, 5*time.Second, 2*time.Second)
	keys := identity.LockKeys(identity.Observation{
		Email:       strptr("locked@x.com"),
		PhoneNumber: strptr("1234567890"),
	})

	release, err := lock.Acquire(ctx, keys)
	require.NoError(t, err)

	// A second holder times out while the first holds the keys.
	contender := identity.NewRedisLock(rc.Client, 5*time.Second, 200*time.Millisecond)
	_, err = contender.Acquire(ctx, keys)
	require.Error(t, err)

	release()

	// After release the keys are free again.
	release2, err := contender.Acquire(ctx, keys)
	require.NoError(t, err)
	release2()
}
