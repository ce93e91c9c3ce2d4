package sweep

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/grassrootza/grassroot-dispatch/pkg/lock"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/observability"
)

// leasePrefix namespaces sweep leases in the lock store.
const leasePrefix = "sweep:"

// Runner executes one sweep under its mutual-exclusion lease. A firing
// that finds the lease held skips the cycle; it never queues up behind
// the running instance.
type Runner struct {
	sweep     Sweep
	lease     lock.Lease
	leaseTTL  time.Duration
	telemetry *observability.Telemetry
	logger    logger.Logger
}

// NewRunner wraps a sweep with lease handling and telemetry.
func NewRunner(s Sweep, lease lock.Lease, leaseTTL time.Duration, telemetry *observability.Telemetry, log logger.Logger) *Runner {
	if log == nil {
		log = logger.New()
	}
	return &Runner{sweep: s, lease: lease, leaseTTL: leaseTTL, telemetry: telemetry, logger: log}
}

// RunOnce executes a single guarded pass. It returns the processed row
// count and whether the pass actually ran.
func (r *Runner) RunOnce(ctx context.Context) (int, bool, error) {
	name := leasePrefix + r.sweep.Name()

	if r.telemetry != nil {
		var span trace.Span
		ctx, span = r.telemetry.StartSpan(ctx, "sweep."+r.sweep.Name())
		defer span.End()
	}

	acquired, err := r.lease.TryAcquire(ctx, name, r.leaseTTL)
	if err != nil {
		return 0, false, err
	}
	if !acquired {
		r.logger.Debug("Sweep skipped, prior instance still running", "sweep", r.sweep.Name())
		if r.telemetry != nil {
			r.telemetry.RecordSweepSkip(ctx, r.sweep.Name())
		}
		return 0, false, nil
	}
	defer func() {
		if err := r.lease.Release(context.Background(), name); err != nil {
			r.logger.Warn("Lease release failed", "sweep", r.sweep.Name(), "error", err)
		}
	}()

	processed, err := r.sweep.Run(ctx)
	if r.telemetry != nil {
		r.telemetry.RecordSweepRun(ctx, r.sweep.Name(), processed)
	}
	return processed, true, err
}

// Job pairs a sweep with its firing interval.
type Job struct {
	Sweep    Sweep
	Interval time.Duration
}

// Scheduler fires each registered sweep on its own independent ticker.
type Scheduler struct {
	jobs      []Job
	lease     lock.Lease
	leaseTTL  time.Duration
	telemetry *observability.Telemetry
	logger    logger.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// NewScheduler creates a scheduler over the given jobs. leaseTTL bounds
// how long a crashed run can hold a sweep's lease.
func NewScheduler(jobs []Job, lease lock.Lease, leaseTTL time.Duration, telemetry *observability.Telemetry, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.New()
	}
	return &Scheduler{
		jobs:      jobs,
		lease:     lease,
		leaseTTL:  leaseTTL,
		telemetry: telemetry,
		logger:    log,
	}
}

// Start launches one ticker goroutine per job.
func (s *Scheduler) Start() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, job := range s.jobs {
		runner := NewRunner(job.Sweep, s.lease, s.leaseTTL, s.telemetry, s.logger)
		s.wg.Add(1)
		go s.loop(ctx, runner, job.Interval)
		s.logger.Info("Sweep scheduled", "sweep", job.Sweep.Name(), "interval", job.Interval)
	}
}

func (s *Scheduler) loop(ctx context.Context, runner *Runner, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := runner.RunOnce(ctx); err != nil {
				s.logger.Error("Sweep run failed", "sweep", runner.sweep.Name(), "error", err)
			}
		}
	}
}

// Stop halts the tickers and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.started = false
	s.logger.Info("Sweep scheduler stopped")
}
