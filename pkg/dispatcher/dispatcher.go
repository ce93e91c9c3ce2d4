// Package dispatcher performs one delivery attempt for one notification:
// claim the idempotency guard, ask the router for a channel, invoke the
// matching sender, and record the outcome back onto the notification row
// with a conditional update. Both the broker's immediate-send path and
// the scheduled sweeps run their attempts through this one piece, so the
// claim/route/record rules cannot drift between the two paths.
package dispatcher

import (
	"context"
	"time"

	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/idempotency"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
	"github.com/grassrootza/grassroot-dispatch/pkg/observability"
	"github.com/grassrootza/grassroot-dispatch/pkg/routing"
	"github.com/grassrootza/grassroot-dispatch/pkg/sender"
	"github.com/grassrootza/grassroot-dispatch/pkg/storage"
)

// AddressResolver maps a recipient to the destination address for a
// channel. The address format is owned by the channel gateway; the
// default resolver passes the recipient id through unchanged.
type AddressResolver interface {
	Resolve(ctx context.Context, recipientID string, channel notification.Channel) (string, error)
}

// ResolverFunc adapts a function to the AddressResolver interface.
type ResolverFunc func(ctx context.Context, recipientID string, channel notification.Channel) (string, error)

// Resolve implements AddressResolver.
func (f ResolverFunc) Resolve(ctx context.Context, recipientID string, channel notification.Channel) (string, error) {
	return f(ctx, recipientID, channel)
}

// IdentityResolver returns the recipient id as the address.
var IdentityResolver AddressResolver = ResolverFunc(
	func(_ context.Context, recipientID string, _ notification.Channel) (string, error) {
		return recipientID, nil
	})

// Config controls a Dispatcher's attempt behavior.
type Config struct {
	// MaxAttempts is the retry budget. A transient failure on the final
	// attempt abandons the notification.
	MaxAttempts int

	// ClaimWindow is the idempotency claim TTL taken before every send.
	ClaimWindow time.Duration

	// SendTimeout bounds each sender invocation; exceeding it counts as
	// a transient failure.
	SendTimeout time.Duration
}

// DefaultConfig returns the standard attempt configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		ClaimWindow: 30 * time.Second,
		SendTimeout: 10 * time.Second,
	}
}

// Result reports what one attempt did.
type Result struct {
	// Skipped means the idempotency guard rejected the claim; another
	// worker is handling this notification.
	Skipped bool

	// Channel is the channel the router chose.
	Channel notification.Channel

	// Outcome is the sender's reported outcome, valid when not Skipped.
	Outcome sender.Outcome
}

// Dispatcher executes single delivery attempts.
type Dispatcher struct {
	store     storage.Store
	router    *routing.Router
	senders   *sender.Registry
	guard     idempotency.Guard
	resolver  AddressResolver
	telemetry *observability.Telemetry
	logger    logger.Logger
	config    Config
}

// New creates a dispatcher. A nil resolver means IdentityResolver.
func New(store storage.Store, router *routing.Router, senders *sender.Registry,
	guard idempotency.Guard, resolver AddressResolver,
	telemetry *observability.Telemetry, log logger.Logger, cfg Config) *Dispatcher {
	if resolver == nil {
		resolver = IdentityResolver
	}
	if log == nil {
		log = logger.New()
	}
	return &Dispatcher{
		store:     store,
		router:    router,
		senders:   senders,
		guard:     guard,
		resolver:  resolver,
		telemetry: telemetry,
		logger:    log,
		config:    cfg,
	}
}

// Dispatch performs one delivery attempt for a QUEUED notification.
// When immediate is true a transient failure re-queues the row instead
// of leaving it FAILED, so the sweeps see the same pending state they
// would have seen without the opportunistic attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification, immediate bool) (*Result, error) {
	claimed, err := d.guard.TryClaim(ctx, n.ID, d.config.ClaimWindow)
	if err != nil {
		return nil, errors.New(errors.ErrTransientSend, "idempotency claim failed").
			WithCause(err).WithNotification(n.ID)
	}
	if !claimed {
		// Someone else is handling this row; normal, not an error.
		d.logger.Debug("Claim rejected, skipping", "notification_id", n.ID)
		return &Result{Skipped: true}, nil
	}

	channel, err := d.router.Route(ctx, n)
	if err != nil {
		// The router is total by contract; reaching this is a
		// programming error and must be loud.
		d.logger.Error("Routing invariant violated", "notification_id", n.ID, "error", err)
		return nil, err
	}

	address, err := d.resolver.Resolve(ctx, n.RecipientID, channel)
	if err != nil {
		return nil, errors.New(errors.ErrTransientSend, "address resolution failed").
			WithCause(err).WithNotification(n.ID).WithChannel(string(channel))
	}

	outcome, sendErr := sender.WithTimeout(registrySender{d.senders, channel}, d.config.SendTimeout).
		Send(ctx, address, n.Body)

	if d.telemetry != nil {
		d.telemetry.RecordSend(ctx, string(channel), outcome.String())
	}

	now := time.Now().UTC()
	res := &Result{Channel: channel, Outcome: outcome}

	switch outcome {
	case sender.Success:
		if err := d.store.RecordSent(ctx, n.ID, channel, n.Attempts, now); err != nil {
			d.logger.Warn("Recording sent lost a conditional update", "notification_id", n.ID, "error", err)
			return res, err
		}
		d.logger.Info("Notification sent", "notification_id", n.ID, "channel", channel, "attempt", n.Attempts+1)

	case sender.PermanentFailure:
		msg := ""
		if sendErr != nil {
			msg = sendErr.Error()
		}
		if err := d.store.RecordFailure(ctx, n.ID, channel, msg, n.Attempts, now, true); err != nil {
			return res, err
		}
		d.logger.Warn("Notification abandoned after permanent failure",
			"notification_id", n.ID, "channel", channel, "error", msg)

	case sender.TransientFailure:
		msg := ""
		if sendErr != nil {
			msg = sendErr.Error()
		}
		abandoned := n.Attempts+1 >= d.config.MaxAttempts
		if err := d.store.RecordFailure(ctx, n.ID, channel, msg, n.Attempts, now, abandoned); err != nil {
			return res, err
		}
		if abandoned {
			d.logger.Warn("Notification abandoned after exhausting retries",
				"notification_id", n.ID, "attempts", n.Attempts+1)
		} else if immediate {
			// The opportunistic path must leave the row pending for the
			// sweeps, not FAILED.
			if err := d.store.Requeue(ctx, n.ID); err != nil {
				d.logger.Warn("Re-queue after immediate failure lost a conditional update",
					"notification_id", n.ID, "error", err)
			}
		}
		d.logger.Debug("Transient send failure recorded",
			"notification_id", n.ID, "channel", channel, "attempt", n.Attempts+1, "error", msg)
	}

	return res, nil
}

// registrySender adapts the registry's per-channel lookup to the Sender
// interface for the timeout wrapper.
type registrySender struct {
	registry *sender.Registry
	channel  notification.Channel
}

func (r registrySender) Send(ctx context.Context, address, body string) (sender.Outcome, error) {
	return r.registry.Send(ctx, r.channel, address, body)
}
