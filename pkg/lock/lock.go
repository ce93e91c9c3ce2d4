// Package lock provides the per-sweep mutual exclusion lease. Each sweep
// type acquires its lease at the start of a run and releases it at the
// end; a scheduled firing that cannot acquire the lease skips the cycle
// instead of queueing up. The lease carries an expiry so a crashed
// worker's lock does not outlive it.
package lock

import (
	"context"
	"sync"
	"time"
)

// Lease is a named, expiring mutual-exclusion lock.
type Lease interface {
	// TryAcquire takes the named lease for ttl if it is free or expired.
	// It does not block: false means another holder is live.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release frees the named lease. Releasing a lease that is not held
	// is a no-op.
	Release(ctx context.Context, name string) error
}

// MemoryLease is an in-process Lease for single-node deployments and
// tests.
type MemoryLease struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

// NewMemoryLease creates an empty in-process lease store.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{
		leases: make(map[string]time.Time),
		now:    time.Now,
	}
}

// TryAcquire implements Lease.
func (l *MemoryLease) TryAcquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.leases[name]; ok && now.Before(expiry) {
		return false, nil
	}
	l.leases[name] = now.Add(ttl)
	return true, nil
}

// Release implements Lease.
func (l *MemoryLease) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, name)
	return nil
}
