package sender

import (
	"context"
	"sync"

	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
)

// Registry holds one Sender per channel. It is the piece the router's
// decision is executed against.
type Registry struct {
	mu      sync.RWMutex
	senders map[notification.Channel]Sender
	logger  logger.Logger
}

// NewRegistry creates an empty sender registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.New()
	}
	return &Registry{
		senders: make(map[notification.Channel]Sender),
		logger:  log,
	}
}

// Register installs the sender for a channel, replacing any previous one.
func (r *Registry) Register(channel notification.Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channel] = s
	r.logger.Debug("Sender registered", "channel", channel)
}

// Get returns the sender for a channel.
func (r *Registry) Get(channel notification.Channel) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[channel]
	return s, ok
}

// Channels returns the channels that currently have a sender installed.
func (r *Registry) Channels() []notification.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]notification.Channel, 0, len(r.senders))
	for c := range r.senders {
		channels = append(channels, c)
	}
	return channels
}

// Send routes a single send through the registered sender for the
// channel. A missing sender is an invariant violation: the router only
// produces channels the registry was built with.
func (r *Registry) Send(ctx context.Context, channel notification.Channel, address, body string) (Outcome, error) {
	s, ok := r.Get(channel)
	if !ok {
		return PermanentFailure, errors.Newf(errors.ErrRoutingInvariant, "no sender registered for channel %s", channel).
			WithChannel(string(channel))
	}
	return s.Send(ctx, address, body)
}

// LoggingSender returns a Sender that records each send on the logger
// and always succeeds. Useful for smoke deployments where a channel's
// gateway is not yet wired up.
func LoggingSender(channel notification.Channel, log logger.Logger) Sender {
	if log == nil {
		log = logger.New()
	}
	return Func(func(ctx context.Context, address, body string) (Outcome, error) {
		log.Info("Send (logging sender)", "channel", channel, "address", address, "bytes", len(body))
		return Success, nil
	})
}
