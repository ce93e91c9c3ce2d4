// Package routing decides which outbound channel a notification is sent
// on. The decision is total and deterministic: an explicit override
// always wins, else the recipient's stored preference, else the system
// default (SMS). Both the immediate-send path and the scheduled sweeps
// call the same decision, so a retried notification routes identically
// to its first attempt for the same inputs.
package routing

import (
	"context"

	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
)

// PreferenceStore is the read-only recipient preference collaborator.
type PreferenceStore interface {
	// GetChannelPreference returns the recipient's default channel.
	// An empty channel means the recipient has no stored preference.
	GetChannelPreference(ctx context.Context, recipientID string) (notification.Channel, error)
}

// PreferenceFunc adapts a function to the PreferenceStore interface.
type PreferenceFunc func(ctx context.Context, recipientID string) (notification.Channel, error)

// GetChannelPreference implements PreferenceStore.
func (f PreferenceFunc) GetChannelPreference(ctx context.Context, recipientID string) (notification.Channel, error) {
	return f(ctx, recipientID)
}

// StaticPreferences is a fixed recipient→channel map. Recipients absent
// from the map have no preference.
type StaticPreferences map[string]notification.Channel

// GetChannelPreference implements PreferenceStore.
func (p StaticPreferences) GetChannelPreference(_ context.Context, recipientID string) (notification.Channel, error) {
	return p[recipientID], nil
}

// Router maps a notification to exactly one channel.
type Router struct {
	prefs  PreferenceStore
	logger logger.Logger
}

// NewRouter creates a router over the given preference store. A nil
// store means every notification without an override routes to the
// default channel.
func NewRouter(prefs PreferenceStore, log logger.Logger) *Router {
	if log == nil {
		log = logger.New()
	}
	return &Router{prefs: prefs, logger: log}
}

// Route returns the channel the notification must be sent on. It never
// returns an empty channel for a valid notification; the only error is
// a nil notification, which is a programming-invariant violation.
func (r *Router) Route(ctx context.Context, n *notification.Notification) (notification.Channel, error) {
	if n == nil {
		return "", errors.New(errors.ErrRoutingInvariant, "route called with nil notification")
	}

	if n.ChannelOverride.Valid() {
		return n.ChannelOverride, nil
	}

	if r.prefs != nil {
		pref, err := r.prefs.GetChannelPreference(ctx, n.RecipientID)
		if err != nil {
			// The preference store is an external collaborator; its
			// failure must not make routing partial.
			r.logger.Warn("Preference lookup failed, using default channel",
				"recipient_id", n.RecipientID, "error", err)
			return notification.DefaultChannel, nil
		}
		if pref.Valid() {
			return pref, nil
		}
	}

	return notification.DefaultChannel, nil
}

// Resolve is the pure precedence rule underlying Route, usable when the
// preference snapshot is already in hand.
func Resolve(override, preference notification.Channel) notification.Channel {
	if override.Valid() {
		return override
	}
	if preference.Valid() {
		return preference
	}
	return notification.DefaultChannel
}
