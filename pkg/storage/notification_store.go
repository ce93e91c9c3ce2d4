package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
)

const notificationColumns = `
	id, created_at, updated_at, recipient_id, body, type, origin_id,
	channel_override, channel, status, attempts, last_attempt_at,
	last_error, priority, read, escalated_at`

// GetNotification returns the notification row with the given id.
func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*notification.Notification, error) {
	var n notification.Notification
	err := s.db.GetContext(ctx, &n,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "notification %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return &n, nil
}

// ListPending returns QUEUED notifications last touched before cutoff,
// oldest first.
func (s *SQLiteStore) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*notification.Notification, error) {
	var rows []*notification.Notification
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE status = ? AND updated_at <= ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		notification.StatusQueued, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending notifications: %w", err)
	}
	return rows, nil
}

// ListUnconfirmed returns SENT best-effort notifications whose last
// attempt predates cutoff, that are unread and never escalated.
func (s *SQLiteStore) ListUnconfirmed(ctx context.Context, cutoff time.Time, limit int) ([]*notification.Notification, error) {
	var rows []*notification.Notification
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE status = ? AND channel = ? AND read = 0
		   AND escalated_at IS NULL
		   AND last_attempt_at IS NOT NULL AND last_attempt_at <= ?
		 ORDER BY last_attempt_at ASC
		 LIMIT ?`,
		notification.StatusSent, notification.ChannelPush, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing unconfirmed notifications: %w", err)
	}
	return rows, nil
}

// ListRetryable returns FAILED notifications with remaining retry budget
// whose last attempt predates cutoff.
func (s *SQLiteStore) ListRetryable(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]*notification.Notification, error) {
	var rows []*notification.Notification
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE status = ? AND attempts < ?
		   AND last_attempt_at IS NOT NULL AND last_attempt_at <= ?
		 ORDER BY last_attempt_at ASC
		 LIMIT ?`,
		notification.StatusFailed, maxAttempts, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing retryable notifications: %w", err)
	}
	return rows, nil
}

// RecordSent transitions QUEUED → SENT, conditional on the row's current
// attempt count so a concurrent updater loses cleanly instead of
// clobbering.
func (s *SQLiteStore) RecordSent(ctx context.Context, id string, channel notification.Channel, expectedAttempts int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications
		 SET status = ?, channel = ?, attempts = attempts + 1,
		     last_attempt_at = ?, last_error = '', updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ?`,
		notification.StatusSent, channel, at.UTC(), at.UTC(),
		id, notification.StatusQueued, expectedAttempts)
	if err != nil {
		return fmt.Errorf("recording sent for %s: %w", id, err)
	}
	return s.requireRow(res, id, "record sent")
}

// RecordFailure transitions QUEUED → FAILED, or directly to ABANDONED for
// permanent failures, under the same conditional-update rule.
func (s *SQLiteStore) RecordFailure(ctx context.Context, id string, channel notification.Channel, sendErr string, expectedAttempts int, at time.Time, abandoned bool) error {
	next := notification.StatusFailed
	if abandoned {
		next = notification.StatusAbandoned
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications
		 SET status = ?, channel = ?, attempts = attempts + 1,
		     last_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ?`,
		next, channel, at.UTC(), sendErr, at.UTC(),
		id, notification.StatusQueued, expectedAttempts)
	if err != nil {
		return fmt.Errorf("recording failure for %s: %w", id, err)
	}
	return s.requireRow(res, id, "record failure")
}

// Requeue transitions FAILED → QUEUED so the pending sweep will pick the
// row up again.
func (s *SQLiteStore) Requeue(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		notification.StatusQueued, time.Now().UTC(),
		id, notification.StatusFailed)
	if err != nil {
		return fmt.Errorf("requeueing %s: %w", id, err)
	}
	return s.requireRow(res, id, "requeue")
}

// AbandonExhausted moves FAILED rows with no retry budget left to
// ABANDONED. Receipts can fail a final-attempt send after the
// dispatcher's own abandonment check has passed; this closes that gap.
func (s *SQLiteStore) AbandonExhausted(ctx context.Context, maxAttempts int, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, updated_at = ?
		 WHERE status = ? AND attempts >= ?`,
		notification.StatusAbandoned, at.UTC(),
		notification.StatusFailed, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("abandoning exhausted notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("abandoning exhausted notifications: %w", err)
	}
	return int(n), nil
}

// MarkEscalated re-queues a SENT notification on the fallback channel and
// stamps escalated_at. The escalated_at IS NULL condition makes the
// escalation happen at most once per row.
func (s *SQLiteStore) MarkEscalated(ctx context.Context, id string, fallback notification.Channel, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications
		 SET status = ?, channel_override = ?, escalated_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND escalated_at IS NULL`,
		notification.StatusQueued, fallback, at.UTC(), at.UTC(),
		id, notification.StatusSent)
	if err != nil {
		return fmt.Errorf("escalating %s: %w", id, err)
	}
	return s.requireRow(res, id, "escalate")
}

// ApplyReceipt absorbs an out-of-band delivery receipt for a SENT
// notification.
func (s *SQLiteStore) ApplyReceipt(ctx context.Context, id string, delivered bool, at time.Time) error {
	next := notification.StatusDelivered
	if !delivered {
		next = notification.StatusFailed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		next, at.UTC(), id, notification.StatusSent)
	if err != nil {
		return fmt.Errorf("applying receipt for %s: %w", id, err)
	}
	return s.requireRow(res, id, "apply receipt")
}

// MarkRead sets the read flag. Legal only while SENT or DELIVERED.
func (s *SQLiteStore) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		time.Now().UTC(), id, notification.StatusSent, notification.StatusDelivered)
	if err != nil {
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	return s.requireRow(res, id, "mark read")
}

// CountByStatus returns row counts grouped by delivery status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[notification.Status]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM notifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting notifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[notification.Status]int)
	for rows.Next() {
		var status notification.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// requireRow converts a zero-row conditional update into an
// INVALID_TRANSITION error: either the row does not exist or its state
// moved underneath us, and the caller should skip rather than overwrite.
func (s *SQLiteStore) requireRow(res sql.Result, id, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return errors.Newf(errors.ErrInvalidTransition, "%s matched no row (missing or stale state)", op).
			WithNotification(id)
	}
	return nil
}
