// Package pipeline assembles the dispatch components from configuration:
// store, router, senders, idempotency guard, sweep leases, broker, and
// scheduler. Business operations interact with the pipeline through the
// broker's StoreBundle/AsyncStoreBundle and the receipt/read methods
// here; everything else runs on its own schedule.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grassrootza/grassroot-dispatch/pkg/broker"
	"github.com/grassrootza/grassroot-dispatch/pkg/bundle"
	"github.com/grassrootza/grassroot-dispatch/pkg/config"
	"github.com/grassrootza/grassroot-dispatch/pkg/dispatcher"
	"github.com/grassrootza/grassroot-dispatch/pkg/idempotency"
	"github.com/grassrootza/grassroot-dispatch/pkg/lock"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
	"github.com/grassrootza/grassroot-dispatch/pkg/observability"
	"github.com/grassrootza/grassroot-dispatch/pkg/routing"
	"github.com/grassrootza/grassroot-dispatch/pkg/sender"
	"github.com/grassrootza/grassroot-dispatch/pkg/storage"
	"github.com/grassrootza/grassroot-dispatch/pkg/sweep"
)

// Options carries the collaborators the pipeline cannot construct
// itself: the channel gateways and the recipient preference store.
type Options struct {
	// Senders maps each channel to its gateway adapter. Channels
	// without an entry fall back to a logging sender.
	Senders map[notification.Channel]sender.Sender

	// Preferences is the read-only recipient preference collaborator.
	// Nil routes every non-overridden notification to the default
	// channel.
	Preferences routing.PreferenceStore

	// Resolver maps recipients to channel-specific addresses. Nil means
	// the recipient id is the address.
	Resolver dispatcher.AddressResolver

	// Logger overrides the default stdout logger.
	Logger logger.Logger
}

// Pipeline is the assembled dispatch subsystem.
type Pipeline struct {
	Broker *broker.Broker
	Store  storage.Store

	scheduler   *sweep.Scheduler
	telemetry   *observability.Telemetry
	redisClient *redis.Client
	logger      logger.Logger
}

// New builds a pipeline from configuration. Call Start to launch the
// broker workers and sweep schedules, and Close to shut everything down.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	lg := opts.Logger
	if lg == nil {
		lg = logger.NewStandardLogger(log.New(os.Stdout, "", log.LstdFlags), levelFor(cfg.LogLevel), "[dispatch]")
	}

	telemetry, err := observability.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var (
		guard       idempotency.Guard
		lease       lock.Lease
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		hostname, _ := os.Hostname()
		guard = idempotency.NewRedisGuard(redisClient, "")
		lease = lock.NewRedisLease(redisClient, "", hostname)
		lg.Info("Using redis-backed guard and leases", "addr", cfg.Redis.Addr)
	} else {
		guard = idempotency.NewMemoryGuard()
		lease = lock.NewMemoryLease()
	}

	registry := sender.NewRegistry(lg)
	for _, channel := range []notification.Channel{notification.ChannelSMS, notification.ChannelPush, notification.ChannelEmail} {
		if s, ok := opts.Senders[channel]; ok {
			registry.Register(channel, s)
		} else {
			registry.Register(channel, sender.LoggingSender(channel, lg))
		}
	}

	router := routing.NewRouter(opts.Preferences, lg)

	disp := dispatcher.New(store, router, registry, guard, opts.Resolver, telemetry, lg, dispatcher.Config{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		ClaimWindow: cfg.Dispatch.ClaimWindow,
		SendTimeout: cfg.Dispatch.SendTimeout,
	})

	brk := broker.New(store, disp, telemetry, lg, broker.Config{
		QueueCapacity:   cfg.Broker.QueueCapacity,
		Workers:         cfg.Broker.Workers,
		StoreRetries:    cfg.Broker.StoreRetries,
		StoreRetryDelay: cfg.Broker.StoreRetryDelay,
		ShutdownTimeout: cfg.Broker.ShutdownTimeout,
	})

	sweepCfg := sweep.Config{
		BatchSize:        cfg.Sweeps.BatchSize,
		GracePeriod:      cfg.Sweeps.GracePeriod,
		EscalationWindow: cfg.Sweeps.EscalationWindow,
		MaxAttempts:      cfg.Dispatch.MaxAttempts,
		BackoffBase:      cfg.Sweeps.BackoffBase,
	}
	scheduler := sweep.NewScheduler([]sweep.Job{
		{Sweep: sweep.NewPendingSweep(store, disp, lg, sweepCfg), Interval: cfg.Sweeps.PendingInterval},
		{Sweep: sweep.NewEscalationSweep(store, lg, sweepCfg), Interval: cfg.Sweeps.EscalationInterval},
		{Sweep: sweep.NewRetrySweep(store, lg, sweepCfg), Interval: cfg.Sweeps.RetryInterval},
	}, lease, cfg.Sweeps.LeaseTTL, telemetry, lg)

	return &Pipeline{
		Broker:      brk,
		Store:       store,
		scheduler:   scheduler,
		telemetry:   telemetry,
		redisClient: redisClient,
		logger:      lg,
	}, nil
}

// Start launches the broker workers and the sweep schedules.
func (p *Pipeline) Start() {
	p.Broker.Start()
	p.scheduler.Start()
	p.logger.Info("Dispatch pipeline started")
}

// StoreBundle persists a bundle synchronously; see broker.StoreBundle.
func (p *Pipeline) StoreBundle(ctx context.Context, b *bundle.Bundle) error {
	return p.Broker.StoreBundle(ctx, b)
}

// AsyncStoreBundle queues a bundle for background persistence; see
// broker.AsyncStoreBundle.
func (p *Pipeline) AsyncStoreBundle(ctx context.Context, b *bundle.Bundle) error {
	return p.Broker.AsyncStoreBundle(ctx, b)
}

// ApplyReceipt absorbs an out-of-band delivery receipt from a gateway.
func (p *Pipeline) ApplyReceipt(ctx context.Context, notificationID string, delivered bool) error {
	return p.Store.ApplyReceipt(ctx, notificationID, delivered, time.Now().UTC())
}

// MarkRead flags an in-app notification as read.
func (p *Pipeline) MarkRead(ctx context.Context, notificationID string) error {
	return p.Store.MarkRead(ctx, notificationID)
}

// Close stops the schedules, drains the broker, and releases resources.
func (p *Pipeline) Close() error {
	p.scheduler.Stop()

	var firstErr error
	if err := p.Broker.Close(); err != nil {
		firstErr = err
	}
	if p.redisClient != nil {
		if err := p.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.telemetry.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	p.logger.Info("Dispatch pipeline stopped")
	return firstErr
}

func levelFor(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "debug":
		return logger.Debug
	default:
		return logger.Info
	}
}
