package identity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Resolutions that share an email or phone race: two concurrent requests for
// the same brand-new observation can each mint a primary, reconciled only by
// a later merge. When Redis is available we serialize instead, holding one
// advisory lock per observed value for the duration of the resolution. This
// strengthening is optional; without Redis the service runs lock-free and
// relies on the multi-primary merge to reconcile.
type ResolutionLock interface {
	// Acquire blocks until every key is held or the wait budget runs out.
	// The returned release func is safe to call exactly once.
	Acquire(ctx context.Context, keys []string) (release func(), err error)
}

// LockKeys derives the advisory lock keys for an observation. Keys are
// sorted so concurrent resolvers always acquire in the same order.
func LockKeys(obs Observation) []string {
	var keys []string
	if obs.Email != nil && *obs.Email != "" {
		keys = append(keys, "unify:lock:email:"+*obs.Email)
	}
	if obs.PhoneNumber != nil && *obs.PhoneNumber != "" {
		keys = append(keys, "unify:lock:phone:"+*obs.PhoneNumber)
	}
	sort.Strings(keys)
	return keys
}

// NoopLock disables serialization.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context, []string) (func(), error) {
	return func() {}, nil
}

// releaseScript deletes a lock key only if it still holds our token, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock serializes resolutions via per-value SET NX PX locks.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLock(client *redis.Client, ttl, wait time.Duration) *RedisLock {
	return &RedisLock{client: client, ttl: ttl, wait: wait}
}

func (l *RedisLock) Acquire(ctx context.Context, keys []string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	acquired := make([]string, 0, len(keys))
	releaseAll := func() {
		// Release on a fresh context: the request context may already be
		// canceled by the time we unlock.
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, key := range acquired {
			_ = releaseScript.Run(bg, l.client, []string{key}, token).Err()
		}
	}

	for _, key := range keys {
		for {
			ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
			if err != nil {
				releaseAll()
				return nil, fmt.Errorf("acquire resolution lock %s: %w", key, err)
			}
			if ok {
				acquired = append(acquired, key)
				break
			}
			if time.Now().After(deadline) {
				releaseAll()
				return nil, fmt.Errorf("resolution lock %s: wait budget exceeded", key)
			}
			select {
			case <-ctx.Done():
				releaseAll()
				return nil, ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
		}
	}

	return releaseAll, nil
}
