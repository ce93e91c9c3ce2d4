package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLease is a Lease backed by Redis SET NX PX, for deployments where
// sweeps are scheduled on more than one node.
type RedisLease struct {
	client    *redis.Client
	keyPrefix string
	ownerID   string
}

// releaseScript deletes the lease key only when this instance still owns
// it, so an expired-and-reacquired lease is never released by the old
// holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisLease creates a lease store over an existing Redis client.
// ownerID identifies this process; the prefix namespaces lease keys and
// defaults to "dispatch:lease:".
func NewRedisLease(client *redis.Client, keyPrefix, ownerID string) *RedisLease {
	if keyPrefix == "" {
		keyPrefix = "dispatch:lease:"
	}
	return &RedisLease{client: client, keyPrefix: keyPrefix, ownerID: ownerID}
}

// TryAcquire implements Lease.
func (l *RedisLease) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.keyPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", name, err)
	}
	return ok, nil
}

// Release implements Lease.
func (l *RedisLease) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + name}, l.ownerID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("releasing lease %s: %w", name, err)
	}
	return nil
}
