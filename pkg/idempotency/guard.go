// Package idempotency prevents duplicate sends of the same logical
// notification within a batching window. A claim is a short-lived marker
// taken immediately before a sender invocation; claims expire on their
// own, so a crashed worker never blocks retries permanently.
//
// The guard is passed by reference to the components that need it rather
// than living in a process-wide singleton, so each test can inject an
// isolated instance.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Guard hands out short-lived claims keyed by notification id.
type Guard interface {
	// TryClaim records a claim for id lasting window, unless another
	// live claim exists. Exactly one of any set of concurrent callers
	// for the same id receives true.
	TryClaim(ctx context.Context, id string, window time.Duration) (bool, error)
}

// MemoryGuard is an in-process Guard for single-node deployments and
// tests.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewMemoryGuard creates an empty in-process guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

// TryClaim implements Guard.
func (g *MemoryGuard) TryClaim(_ context.Context, id string, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.claims[id]; ok && now.Before(expiry) {
		return false, nil
	}
	g.claims[id] = now.Add(window)

	// Opportunistically drop expired claims so the map does not grow
	// with the notification table.
	if len(g.claims) > 1024 {
		for k, expiry := range g.claims {
			if now.After(expiry) {
				delete(g.claims, k)
			}
		}
	}
	return true, nil
}
