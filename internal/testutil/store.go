// Package testutil provides shared helpers for pipeline tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
	"github.com/grassrootza/grassroot-dispatch/pkg/storage"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations
// applied. It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	s, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedQueued persists a single notification in QUEUED state and returns
// it as stored.
func SeedQueued(t *testing.T, s *storage.SQLiteStore, n *notification.Notification) *notification.Notification {
	t.Helper()

	if err := s.SaveBundle(context.Background(), nil, []*notification.Notification{n}); err != nil {
		t.Fatalf("seeding notification: %v", err)
	}
	stored, err := s.GetNotification(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("reading seeded notification: %v", err)
	}
	return stored
}

// SeedLog persists a single action log entry.
func SeedLog(t *testing.T, s *storage.SQLiteStore, e *actionlog.Entry) {
	t.Helper()

	if err := s.SaveBundle(context.Background(), []*actionlog.Entry{e}, nil); err != nil {
		t.Fatalf("seeding action log: %v", err)
	}
}

// Eventually polls cond until it returns true or the deadline passes.
func Eventually(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
