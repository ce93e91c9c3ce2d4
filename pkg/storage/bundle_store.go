package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
)

// SaveBundle persists every action log and notification from one bundle
// inside a single transaction. Notifications enter storage in QUEUED
// state; logs are append-only and never touched again.
func (s *SQLiteStore) SaveBundle(ctx context.Context, logs []*actionlog.Entry, notifs []*notification.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrPersistence, "beginning bundle transaction").WithCause(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for _, entry := range logs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO action_logs (id, created_at, entity_type, entity_id, actor_id, description)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.CreatedAt.UTC(), entry.Entity, entry.EntityID, entry.ActorID, entry.Description)
		if err != nil {
			return errors.Newf(errors.ErrPersistence, "inserting action log %s", entry.ID).WithCause(err)
		}
	}

	for _, n := range notifs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (
				id, created_at, updated_at, recipient_id, body, type, origin_id,
				channel_override, channel, status, attempts, last_attempt_at,
				last_error, priority, read, escalated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, '', ?, 0, NULL)`,
			n.ID, n.CreatedAt.UTC(), now, n.RecipientID, n.Body, n.Type, n.OriginID,
			n.ChannelOverride, n.Channel, notification.StatusQueued, n.Priority)
		if err != nil {
			return errors.Newf(errors.ErrPersistence, "inserting notification %s", n.ID).WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrPersistence, "committing bundle").WithCause(err)
	}
	return nil
}

// GetActionLog returns a single action log entry.
func (s *SQLiteStore) GetActionLog(ctx context.Context, id string) (*actionlog.Entry, error) {
	var entry actionlog.Entry
	err := s.db.GetContext(ctx, &entry,
		`SELECT id, created_at, entity_type, entity_id, actor_id, description
		 FROM action_logs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting action log %s: %w", id, err)
	}
	return &entry, nil
}

// ListActionLogs returns log entries for one originating entity, newest
// first.
func (s *SQLiteStore) ListActionLogs(ctx context.Context, entity actionlog.EntityType, entityID string, limit int) ([]*actionlog.Entry, error) {
	var entries []*actionlog.Entry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, created_at, entity_type, entity_id, actor_id, description
		 FROM action_logs
		 WHERE entity_type = ? AND entity_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		entity, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing action logs: %w", err)
	}
	return entries, nil
}

// SaveDeadLetter records a bundle that could not be persisted.
func (s *SQLiteStore) SaveDeadLetter(ctx context.Context, dl *DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, created_at, reason, payload) VALUES (?, ?, ?, ?)`,
		dl.ID, dl.CreatedAt.UTC(), dl.Reason, dl.Payload)
	if err != nil {
		return fmt.Errorf("saving dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead letters, newest first.
func (s *SQLiteStore) ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error) {
	var rows []*DeadLetter
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, created_at, reason, payload FROM dead_letters
		 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	return rows, nil
}
