package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard is a Guard backed by Redis SET NX with expiry, for
// deployments where sweeps run on more than one node.
type RedisGuard struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisGuard creates a guard over an existing Redis client. The
// prefix namespaces claim keys; empty means "dispatch:claim:".
func NewRedisGuard(client *redis.Client, keyPrefix string) *RedisGuard {
	if keyPrefix == "" {
		keyPrefix = "dispatch:claim:"
	}
	return &RedisGuard{client: client, keyPrefix: keyPrefix}
}

// TryClaim implements Guard. SET NX PX is atomic on the server, so
// concurrent claimants across nodes resolve to exactly one winner.
func (g *RedisGuard) TryClaim(ctx context.Context, id string, window time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.keyPrefix+id, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", id, err)
	}
	return ok, nil
}
