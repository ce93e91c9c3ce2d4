// Package storage persists notifications, action logs, and dead letters.
// The Store interface is the pipeline's only view of durable state; the
// SQLite implementation lives alongside it. All notification state
// transitions are conditional updates keyed on the row's current status
// (and attempt count where it matters) so a sweep racing an immediate
// send can never apply a lost update.
package storage

import (
	"context"
	"time"

	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
)

// DeadLetter records a bundle that could not be persisted after bounded
// retries, or that was rejected by the async queue under backpressure.
type DeadLetter struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Reason    string    `db:"reason" json:"reason"`

	// Payload is the JSON-encoded bundle contents, kept for manual
	// replay.
	Payload string `db:"payload" json:"payload"`
}

// Store is the durable state the dispatch pipeline operates on.
type Store interface {
	// SaveBundle persists every log and notification as one atomic
	// unit. On any failure nothing is committed. Notifications are
	// stored in QUEUED state.
	SaveBundle(ctx context.Context, logs []*actionlog.Entry, notifs []*notification.Notification) error

	// GetNotification returns the notification row with the given id.
	GetNotification(ctx context.Context, id string) (*notification.Notification, error)

	// ListPending returns QUEUED notifications last touched before
	// cutoff, oldest first, up to limit rows. The cutoff implements the
	// grace period that keeps sweeps from racing an in-flight immediate
	// send.
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*notification.Notification, error)

	// ListUnconfirmed returns SENT notifications on a best-effort
	// channel whose last attempt predates cutoff, that are unread and
	// have never been escalated.
	ListUnconfirmed(ctx context.Context, cutoff time.Time, limit int) ([]*notification.Notification, error)

	// ListRetryable returns FAILED notifications with attempts below
	// maxAttempts whose last attempt predates cutoff.
	ListRetryable(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]*notification.Notification, error)

	// RecordSent transitions QUEUED → SENT for the row whose attempt
	// count still equals expectedAttempts, stamping the channel used and
	// incrementing attempts.
	RecordSent(ctx context.Context, id string, channel notification.Channel, expectedAttempts int, at time.Time) error

	// RecordFailure transitions QUEUED → FAILED (or → ABANDONED when
	// abandoned is true) under the same conditional-update rule.
	RecordFailure(ctx context.Context, id string, channel notification.Channel, sendErr string, expectedAttempts int, at time.Time, abandoned bool) error

	// Requeue transitions FAILED → QUEUED for the retry sweep.
	Requeue(ctx context.Context, id string) error

	// AbandonExhausted transitions FAILED rows whose attempts have
	// reached maxAttempts to ABANDONED, returning how many rows moved.
	// Without it a negative receipt on a final-attempt send would leave
	// the row FAILED forever: over budget for retry, never terminal.
	AbandonExhausted(ctx context.Context, maxAttempts int, at time.Time) (int, error)

	// MarkEscalated re-queues a SENT best-effort notification on the
	// given fallback channel and stamps escalated_at, so the row is
	// escalated at most once. The original attempt's count and channel
	// history survive.
	MarkEscalated(ctx context.Context, id string, fallback notification.Channel, at time.Time) error

	// ApplyReceipt absorbs an out-of-band delivery receipt for a SENT
	// notification: delivered moves it to DELIVERED, otherwise back to
	// FAILED so the retry sweep can pick it up.
	ApplyReceipt(ctx context.Context, id string, delivered bool, at time.Time) error

	// MarkRead sets the read flag, legal only in SENT or DELIVERED.
	MarkRead(ctx context.Context, id string) error

	// CountByStatus returns row counts grouped by delivery status.
	CountByStatus(ctx context.Context) (map[notification.Status]int, error)

	// SaveDeadLetter records an unpersistable bundle.
	SaveDeadLetter(ctx context.Context, dl *DeadLetter) error

	// ListDeadLetters returns dead letters, newest first.
	ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error)

	// Close releases the underlying resources.
	Close() error
}
