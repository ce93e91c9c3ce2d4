// Package bundle provides the write-ahead accumulator a business
// operation uses to collect action logs and notifications before handing
// them to the broker as one atomic unit. A bundle is append-only during
// construction and is consumed exactly once.
package bundle

import (
	"sync"

	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
)

// Bundle aggregates the logs and notifications raised by a single
// business operation. Entries may be added, never removed.
type Bundle struct {
	mu            sync.Mutex
	logs          []*actionlog.Entry
	notifications []*notification.Notification
	consumed      bool
}

// New creates an empty bundle.
func New() *Bundle {
	return &Bundle{}
}

// AddLog appends an action log entry. Adding a nil or invalid entry
// fails with a NIL_ENTRY error.
func (b *Bundle) AddLog(entry *actionlog.Entry) error {
	if entry == nil {
		return errors.New(errors.ErrNilEntry, "nil action log entry")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return errors.New(errors.ErrBundleConsumed, "bundle already consumed by the broker")
	}
	b.logs = append(b.logs, entry)
	return nil
}

// AddNotification appends a notification. Adding a nil or invalid entry
// fails with a NIL_ENTRY error.
func (b *Bundle) AddNotification(n *notification.Notification) error {
	if n == nil {
		return errors.New(errors.ErrNilEntry, "nil notification")
	}
	if err := n.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return errors.New(errors.ErrBundleConsumed, "bundle already consumed by the broker")
	}
	b.notifications = append(b.notifications, n)
	return nil
}

// Merge appends every entry of other into b. Other is left untouched.
func (b *Bundle) Merge(other *Bundle) error {
	if other == nil {
		return errors.New(errors.ErrNilEntry, "nil bundle")
	}
	if other == b {
		return nil
	}
	other.mu.Lock()
	logs := append([]*actionlog.Entry(nil), other.logs...)
	notifs := append([]*notification.Notification(nil), other.notifications...)
	other.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return errors.New(errors.ErrBundleConsumed, "bundle already consumed by the broker")
	}
	b.logs = append(b.logs, logs...)
	b.notifications = append(b.notifications, notifs...)
	return nil
}

// Logs returns the collected action log entries.
func (b *Bundle) Logs() []*actionlog.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*actionlog.Entry(nil), b.logs...)
}

// Notifications returns the collected notifications.
func (b *Bundle) Notifications() []*notification.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*notification.Notification(nil), b.notifications...)
}

// Empty reports whether the bundle holds no entries.
func (b *Bundle) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.logs) == 0 && len(b.notifications) == 0
}

// Consume marks the bundle as handed to the broker. It fails if the
// bundle was already consumed, which guards against double storage.
func (b *Bundle) Consume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return errors.New(errors.ErrBundleConsumed, "bundle already consumed by the broker")
	}
	b.consumed = true
	return nil
}
