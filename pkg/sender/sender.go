// Package sender defines the narrow contract the pipeline holds against
// the external channel gateways. The gateways' wire protocols are owned
// by the collaborators behind this interface; the pipeline only sees the
// reported outcome.
package sender

import (
	"context"
	"time"
)

// Outcome classifies the result of a send attempt.
type Outcome int

const (
	// Success means the gateway accepted the message. For best-effort
	// channels this is not a delivery confirmation.
	Success Outcome = iota
	// TransientFailure is retryable: network error, rate limit, timeout.
	TransientFailure
	// PermanentFailure is not retryable: invalid destination, revoked
	// token. The notification is abandoned.
	PermanentFailure
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	}
	return "unknown"
}

// Sender is the contract a channel gateway adapter must satisfy.
type Sender interface {
	// Send delivers body to the channel-specific destination address and
	// reports the outcome. A non-nil error accompanies the failure
	// outcomes with detail; Success always returns a nil error.
	Send(ctx context.Context, address, body string) (Outcome, error)
}

// Func adapts a plain function to the Sender interface.
type Func func(ctx context.Context, address, body string) (Outcome, error)

// Send implements Sender.
func (f Func) Send(ctx context.Context, address, body string) (Outcome, error) {
	return f(ctx, address, body)
}

// WithTimeout wraps s so every send is bounded by d. A send that exceeds
// the bound reports TransientFailure; the pipeline relies on the
// idempotency guard to make a late-arriving success harmless.
func WithTimeout(s Sender, d time.Duration) Sender {
	return Func(func(ctx context.Context, address, body string) (Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			outcome Outcome
			err     error
		}
		done := make(chan result, 1)
		go func() {
			outcome, err := s.Send(ctx, address, body)
			done <- result{outcome, err}
		}()

		select {
		case r := <-done:
			if r.err != nil && ctx.Err() == context.DeadlineExceeded {
				return TransientFailure, ctx.Err()
			}
			return r.outcome, r.err
		case <-ctx.Done():
			return TransientFailure, ctx.Err()
		}
	})
}
