// Package sweep implements the scheduled batch passes over the
// notification table: the pending sweep delivers rows never attempted,
// the escalation sweep re-routes unconfirmed best-effort sends to SMS,
// and the retry sweep re-queues failed rows whose backoff has elapsed.
// Every pass processes rows in discovery order with a per-row error
// boundary: one bad row never aborts the rest of the batch.
package sweep

import (
	"context"
	"time"

	"github.com/grassrootza/grassroot-dispatch/pkg/dispatcher"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
	"github.com/grassrootza/grassroot-dispatch/pkg/storage"
)

// Sweep is one scheduled batch pass.
type Sweep interface {
	// Name identifies the sweep type; it is also the lease name that
	// keeps two instances of the same sweep from overlapping.
	Name() string

	// Run executes one pass and reports how many rows it processed.
	Run(ctx context.Context) (int, error)
}

// Config holds the knobs shared by the sweeps.
type Config struct {
	// BatchSize bounds how many rows one pass picks up.
	BatchSize int

	// GracePeriod keeps the pending sweep off rows younger than this,
	// so it cannot race an in-flight immediate send.
	GracePeriod time.Duration

	// EscalationWindow is how long a best-effort send may stay
	// unconfirmed before it is re-routed to SMS.
	EscalationWindow time.Duration

	// MaxAttempts is the retry budget; rows at or past it are never
	// re-queued.
	MaxAttempts int

	// BackoffBase is the first retry delay; each subsequent attempt
	// doubles it.
	BackoffBase time.Duration
}

// DefaultConfig returns the standard sweep configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:        100,
		GracePeriod:      2 * time.Minute,
		EscalationWindow: 30 * time.Minute,
		MaxAttempts:      3,
		BackoffBase:      5 * time.Minute,
	}
}

// PendingSweep delivers QUEUED notifications older than the grace
// period.
type PendingSweep struct {
	store      storage.Store
	dispatcher *dispatcher.Dispatcher
	logger     logger.Logger
	config     Config

	// now is replaceable in tests.
	now func() time.Time
}

// NewPendingSweep creates the pending-notification sweep.
func NewPendingSweep(store storage.Store, disp *dispatcher.Dispatcher, log logger.Logger, cfg Config) *PendingSweep {
	if log == nil {
		log = logger.New()
	}
	return &PendingSweep{store: store, dispatcher: disp, logger: log, config: cfg, now: time.Now}
}

// Name implements Sweep.
func (s *PendingSweep) Name() string { return "pending" }

// Run implements Sweep.
func (s *PendingSweep) Run(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.config.GracePeriod)
	rows, err := s.store.ListPending(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, n := range rows {
		res, err := s.dispatcher.Dispatch(ctx, n, false)
		if err != nil {
			// Row-level isolation: log and continue with the rest.
			s.logger.Warn("Pending sweep row failed", "notification_id", n.ID, "error", err)
			continue
		}
		if !res.Skipped {
			processed++
		}
	}

	if processed > 0 {
		s.logger.Info("Pending sweep completed", "eligible", len(rows), "processed", processed)
	}
	return processed, nil
}

// EscalationSweep re-routes unconfirmed best-effort sends to the
// guaranteed-delivery channel. The original attempt stays in the row's
// history; the escalated_at stamp makes each row escalate at most once.
type EscalationSweep struct {
	store  storage.Store
	logger logger.Logger
	config Config
	now    func() time.Time
}

// NewEscalationSweep creates the undelivered-escalation sweep.
func NewEscalationSweep(store storage.Store, log logger.Logger, cfg Config) *EscalationSweep {
	if log == nil {
		log = logger.New()
	}
	return &EscalationSweep{store: store, logger: log, config: cfg, now: time.Now}
}

// Name implements Sweep.
func (s *EscalationSweep) Name() string { return "escalation" }

// Run implements Sweep.
func (s *EscalationSweep) Run(ctx context.Context) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.config.EscalationWindow)
	rows, err := s.store.ListUnconfirmed(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, n := range rows {
		if err := s.store.MarkEscalated(ctx, n.ID, notification.ChannelSMS, now); err != nil {
			s.logger.Warn("Escalation row failed", "notification_id", n.ID, "error", err)
			continue
		}
		s.logger.Info("Notification escalated to SMS",
			"notification_id", n.ID, "original_channel", n.Channel)
		processed++
	}
	return processed, nil
}

// RetrySweep re-queues FAILED notifications whose exponential backoff
// has elapsed and whose retry budget remains.
type RetrySweep struct {
	store  storage.Store
	logger logger.Logger
	config Config
	now    func() time.Time
}

// NewRetrySweep creates the retry-with-backoff sweep.
func NewRetrySweep(store storage.Store, log logger.Logger, cfg Config) *RetrySweep {
	if log == nil {
		log = logger.New()
	}
	return &RetrySweep{store: store, logger: log, config: cfg, now: time.Now}
}

// Name implements Sweep.
func (s *RetrySweep) Name() string { return "retry" }

// Run implements Sweep.
func (s *RetrySweep) Run(ctx context.Context) (int, error) {
	now := s.now().UTC()

	// Rows failed by a receipt after their final attempt carry no retry
	// budget and would otherwise sit FAILED forever.
	abandoned, err := s.store.AbandonExhausted(ctx, s.config.MaxAttempts, now)
	if err != nil {
		return 0, err
	}
	if abandoned > 0 {
		s.logger.Warn("Exhausted notifications abandoned", "count", abandoned)
	}

	// Select with the smallest possible threshold, then apply each
	// row's exact backoff in process.
	rows, err := s.store.ListRetryable(ctx, now.Add(-s.config.BackoffBase), s.config.MaxAttempts, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, n := range rows {
		if n.LastAttemptAt == nil {
			continue
		}
		if n.LastAttemptAt.Add(backoffFor(s.config.BackoffBase, n.Attempts)).After(now) {
			continue
		}
		if err := s.store.Requeue(ctx, n.ID); err != nil {
			s.logger.Warn("Retry re-queue failed", "notification_id", n.ID, "error", err)
			continue
		}
		s.logger.Debug("Notification re-queued for retry",
			"notification_id", n.ID, "attempts", n.Attempts)
		processed++
	}
	return processed, nil
}

// backoffFor returns the delay after the given number of attempts:
// base, 2*base, 4*base, ...
func backoffFor(base time.Duration, attempts int) time.Duration {
	if attempts <= 1 {
		return base
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
