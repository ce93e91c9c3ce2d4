package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard_ClaimOnceWithinWindow(t *testing.T) {
	g := NewMemoryGuard()

	ok, err := g.TryClaim(context.Background(), "n-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.TryClaim(context.Background(), "n-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim within the window must be rejected")

	// A different id is unaffected.
	ok, err = g.TryClaim(context.Background(), "n-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuard_ClaimExpires(t *testing.T) {
	g := NewMemoryGuard()

	now := time.Now()
	g.now = func() time.Time { return now }

	ok, err := g.TryClaim(context.Background(), "n-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Advance past the window: the claim must be reclaimable.
	g.now = func() time.Time { return now.Add(2 * time.Minute) }

	ok, err = g.TryClaim(context.Background(), "n-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired claims must not block retries")
}

func TestMemoryGuard_ConcurrentClaimsExactlyOneWinner(t *testing.T) {
	g := NewMemoryGuard()

	const racers = 32
	var winners int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := g.TryClaim(context.Background(), "n-contested", time.Minute)
			require.NoError(t, err)
			if ok {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), winners, "exactly one concurrent claimant may win")
}
