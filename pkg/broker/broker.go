// Package broker is the transactional boundary between business
// operations and the dispatch pipeline. StoreBundle persists a bundle's
// logs and notifications as one atomic unit; AsyncStoreBundle hands the
// same work to a bounded worker pool and returns immediately. After a
// successful store the broker opportunistically attempts one immediate
// send per priority notification; everything else waits for the sweeps.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/bundle"
	"github.com/grassrootza/grassroot-dispatch/pkg/dispatcher"
	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
	"github.com/grassrootza/grassroot-dispatch/pkg/observability"
	"github.com/grassrootza/grassroot-dispatch/pkg/storage"
)

// Config controls the broker's async path.
type Config struct {
	// QueueCapacity bounds the async store queue. A full queue rejects
	// new bundles (and dead-letters them) rather than blocking the
	// caller or silently dropping older work.
	QueueCapacity int

	// Workers is the size of the background store pool.
	Workers int

	// StoreRetries bounds local persistence retries on the async path
	// before a bundle is dead-lettered.
	StoreRetries int

	// StoreRetryDelay is the pause between local retries.
	StoreRetryDelay time.Duration

	// ShutdownTimeout bounds how long Close waits for workers to drain.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the standard broker configuration.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:   256,
		Workers:         4,
		StoreRetries:    3,
		StoreRetryDelay: 250 * time.Millisecond,
		ShutdownTimeout: 10 * time.Second,
	}
}

// queuedBundle is one unit of async work.
type queuedBundle struct {
	logs   []*actionlog.Entry
	notifs []*notification.Notification
}

// Broker accepts bundles from business operations.
type Broker struct {
	store      storage.Store
	dispatcher *dispatcher.Dispatcher
	telemetry  *observability.Telemetry
	logger     logger.Logger
	config     Config

	queue   chan *queuedBundle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// New creates a broker. The dispatcher may be nil, in which case no
// immediate sends are attempted and every notification waits for the
// pending sweep.
func New(store storage.Store, disp *dispatcher.Dispatcher, telemetry *observability.Telemetry, log logger.Logger, cfg Config) *Broker {
	if log == nil {
		log = logger.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		store:      store,
		dispatcher: disp,
		telemetry:  telemetry,
		logger:     log,
		config:     cfg,
		queue:      make(chan *queuedBundle, cfg.QueueCapacity),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the async store workers.
func (b *Broker) Start() {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return
	}
	b.started = true

	b.logger.Info("Starting bundle broker workers", "workers", b.config.Workers)
	for i := 0; i < b.config.Workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

// StoreBundle persists the bundle synchronously and atomically. Any
// persistence failure is surfaced to the caller with nothing committed.
func (b *Broker) StoreBundle(ctx context.Context, bnd *bundle.Bundle) error {
	logs, notifs, err := b.consume(bnd)
	if err != nil {
		return err
	}
	if err := b.persist(ctx, logs, notifs); err != nil {
		return err
	}
	b.immediateSends(ctx, notifs)
	return nil
}

// AsyncStoreBundle queues the bundle for background persistence and
// returns immediately. The atomicity guarantee is unchanged; persistence
// failures are retried a bounded number of times and then dead-lettered
// rather than surfaced.
func (b *Broker) AsyncStoreBundle(ctx context.Context, bnd *bundle.Bundle) error {
	logs, notifs, err := b.consume(bnd)
	if err != nil {
		return err
	}

	select {
	case b.queue <- &queuedBundle{logs: logs, notifs: notifs}:
		return nil
	default:
		// Backpressure policy: reject, never block the business
		// operation. The bundle is preserved as a dead letter.
		b.deadLetter(ctx, "async queue full", logs, notifs)
		return errors.Newf(errors.ErrQueueFull, "async store queue full (capacity %d)", b.config.QueueCapacity)
	}
}

// consume validates and takes ownership of the bundle exactly once.
func (b *Broker) consume(bnd *bundle.Bundle) ([]*actionlog.Entry, []*notification.Notification, error) {
	if bnd == nil {
		return nil, nil, errors.New(errors.ErrNilEntry, "nil bundle")
	}
	if err := bnd.Consume(); err != nil {
		return nil, nil, err
	}
	return bnd.Logs(), bnd.Notifications(), nil
}

// persist stores one bundle with a span and metrics around it.
func (b *Broker) persist(ctx context.Context, logs []*actionlog.Entry, notifs []*notification.Notification) error {
	if b.telemetry != nil {
		var span trace.Span
		ctx, span = b.telemetry.StartSpan(ctx, "bundle.persist",
			attribute.Int("logs", len(logs)),
			attribute.Int("notifications", len(notifs)),
		)
		defer span.End()
	}

	start := time.Now()
	err := b.store.SaveBundle(ctx, logs, notifs)
	if b.telemetry != nil {
		b.telemetry.RecordBundlePersisted(ctx, err == nil, time.Since(start))
	}
	if err != nil {
		b.logger.Error("Bundle persistence failed",
			"logs", len(logs), "notifications", len(notifs), "error", err)
		return err
	}
	b.logger.Debug("Bundle persisted", "logs", len(logs), "notifications", len(notifs))
	return nil
}

// immediateSends runs one opportunistic attempt per priority
// notification. Failures never propagate: the row stays pending for the
// sweeps.
func (b *Broker) immediateSends(ctx context.Context, notifs []*notification.Notification) {
	if b.dispatcher == nil {
		return
	}
	for _, n := range notifs {
		if !n.Priority {
			continue
		}
		stored, err := b.store.GetNotification(ctx, n.ID)
		if err != nil {
			b.logger.Warn("Immediate send skipped, row not readable", "notification_id", n.ID, "error", err)
			continue
		}
		if _, err := b.dispatcher.Dispatch(ctx, stored, true); err != nil {
			b.logger.Warn("Immediate send attempt failed", "notification_id", n.ID, "error", err)
		}
	}
}

// worker drains the async store queue.
func (b *Broker) worker(id int) {
	defer b.wg.Done()
	b.logger.Debug("Broker worker started", "worker_id", id)

	for {
		select {
		case <-b.ctx.Done():
			// Drain what is already queued before exiting so accepted
			// bundles are not lost on shutdown.
			for {
				select {
				case qb := <-b.queue:
					b.storeWithRetry(qb)
				default:
					return
				}
			}
		case qb := <-b.queue:
			b.storeWithRetry(qb)
		}
	}
}

// storeWithRetry persists one queued bundle with bounded local retry,
// then falls back to a dead letter.
func (b *Broker) storeWithRetry(qb *queuedBundle) {
	ctx := context.Background()

	var err error
	for attempt := 0; attempt <= b.config.StoreRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.config.StoreRetryDelay):
			case <-b.ctx.Done():
				// Shutdown mid-retry: still try once more immediately so
				// the bundle lands either in storage or the dead letters.
			}
		}
		if err = b.persist(ctx, qb.logs, qb.notifs); err == nil {
			b.immediateSends(ctx, qb.notifs)
			return
		}
	}

	b.logger.Error("Async bundle store exhausted retries, dead-lettering",
		"retries", b.config.StoreRetries, "error", err)
	b.deadLetter(ctx, "persistence retries exhausted: "+err.Error(), qb.logs, qb.notifs)
}

// deadLetter preserves an unpersistable bundle for manual replay.
func (b *Broker) deadLetter(ctx context.Context, reason string, logs []*actionlog.Entry, notifs []*notification.Notification) {
	payload, err := json.Marshal(struct {
		Logs          []*actionlog.Entry           `json:"logs"`
		Notifications []*notification.Notification `json:"notifications"`
	}{logs, notifs})
	if err != nil {
		b.logger.Error("Dead letter payload encoding failed", "error", err)
		payload = []byte("{}")
	}

	dl := &storage.DeadLetter{Reason: reason, Payload: string(payload)}
	if err := b.store.SaveDeadLetter(ctx, dl); err != nil {
		// Last resort: the bundle exists only in this log line.
		b.logger.Error("Dead letter write failed", "reason", reason, "payload", string(payload), "error", err)
		return
	}
	if b.telemetry != nil {
		b.telemetry.RecordDeadLetter(ctx, reason)
	}
}

// Close stops the workers, draining queued bundles within the shutdown
// timeout.
func (b *Broker) Close() error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(b.config.ShutdownTimeout):
		return errors.New(errors.ErrPersistence, "broker shutdown timed out with bundles in flight")
	}
}
