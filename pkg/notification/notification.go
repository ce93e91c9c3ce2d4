// Package notification defines the notification entity and its delivery
// state machine. A Notification is one message that must reach one
// recipient through one channel. Rows are never deleted; they are retained
// for audit.
package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
)

// Type enumerates the kinds of notification the platform raises.
type Type string

const (
	TypeTaskReminder Type = "TASK_REMINDER"
	TypeEventAlert   Type = "EVENT_ALERT"
	TypeBroadcast    Type = "BROADCAST_MESSAGE"
	TypeUnreadDigest Type = "UNREAD_DIGEST"
)

// Notification represents one outbound message to one recipient.
type Notification struct {
	ID          string    `db:"id" json:"id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	Body        string    `db:"body" json:"body"`
	Type        Type      `db:"type" json:"type"`

	// OriginID references the action log or source entity this
	// notification relates to. Empty when the notification stands alone.
	OriginID string `db:"origin_id" json:"origin_id,omitempty"`

	// ChannelOverride, when set, forces delivery on a specific channel
	// regardless of the recipient's preference.
	ChannelOverride Channel `db:"channel_override" json:"channel_override,omitempty"`

	// Channel is the channel actually used for the most recent attempt.
	// Empty until the router has chosen one.
	Channel Channel `db:"channel" json:"channel,omitempty"`

	Status        Status     `db:"status" json:"status"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LastError     string     `db:"last_error" json:"last_error,omitempty"`

	// Priority marks a user-requested notification, which is eligible
	// for one opportunistic immediate send after its bundle commits.
	// System-triggered notifications wait for the pending sweep.
	Priority bool `db:"priority" json:"priority"`

	// Read is the in-app read flag. Only settable in SENT or DELIVERED.
	Read bool `db:"read" json:"read"`

	// EscalatedAt is stamped when the escalation sweep re-routes this
	// notification from a best-effort channel to SMS. Non-nil means the
	// row is never escalated again.
	EscalatedAt *time.Time `db:"escalated_at" json:"escalated_at,omitempty"`
}

// New creates a notification in CREATED state.
func New(recipientID string, typ Type, body string) *Notification {
	now := time.Now().UTC()
	return &Notification{
		ID:          uuid.New().String(),
		CreatedAt:   now,
		UpdatedAt:   now,
		RecipientID: recipientID,
		Body:        body,
		Type:        typ,
		Status:      StatusCreated,
	}
}

// WithOrigin links the notification to the action log or entity that
// triggered it.
func (n *Notification) WithOrigin(originID string) *Notification {
	n.OriginID = originID
	return n
}

// WithOverride forces delivery on the given channel.
func (n *Notification) WithOverride(c Channel) *Notification {
	n.ChannelOverride = c
	return n
}

// AsPriority marks the notification user-requested.
func (n *Notification) AsPriority() *Notification {
	n.Priority = true
	return n
}

// Validate checks the fields the pipeline depends on.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return errors.New(errors.ErrNilEntry, "notification id must not be empty")
	}
	if n.RecipientID == "" {
		return errors.New(errors.ErrNilEntry, "notification recipient must not be empty").WithNotification(n.ID)
	}
	if n.Body == "" {
		return errors.New(errors.ErrNilEntry, "notification body must not be empty").WithNotification(n.ID)
	}
	if !n.Status.Valid() {
		return errors.Newf(errors.ErrInvalidTransition, "unknown status %q", n.Status).WithNotification(n.ID)
	}
	if n.ChannelOverride != "" && !n.ChannelOverride.Valid() {
		return errors.Newf(errors.ErrInvalidTransition, "unknown channel override %q", n.ChannelOverride).WithNotification(n.ID)
	}
	return nil
}

// Transition applies a state change, enforcing the state machine.
func (n *Notification) Transition(next Status) error {
	if !n.Status.CanTransition(next) {
		return errors.Newf(errors.ErrInvalidTransition, "cannot transition %s -> %s", n.Status, next).
			WithNotification(n.ID)
	}
	n.Status = next
	return nil
}

// MarkRead sets the read flag, which is only legal in SENT or DELIVERED.
func (n *Notification) MarkRead() error {
	if !n.Status.Readable() {
		return errors.Newf(errors.ErrInvalidTransition, "cannot mark read in status %s", n.Status).
			WithNotification(n.ID)
	}
	n.Read = true
	return nil
}
