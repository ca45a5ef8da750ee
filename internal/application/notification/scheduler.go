package notification

import (
	"context"
	"time"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
)

const (
	sweepDue   = "notification_due"
	sweepRetry = "notification_retry"

	// DefaultBatchSize caps how many rows one sweep pass touches so a slow
	// provider cannot stall the loop for long.
	DefaultBatchSize = 100

	DefaultDueInterval   = time.Minute
	DefaultRetryInterval = 10 * time.Minute
)

// Scheduler runs the two periodic sweeps over persisted notification state:
// the due sweep for scheduled rows and the retry sweep for failed ones with
// attempts left. Because backoff lives in scheduledFor, both sweeps survive
// process restarts.
type Scheduler struct {
	repo       domain.Repository
	dispatcher *Dispatcher
	log        observability.Logger
	sweepRuns  observability.Counter
	sweepItems observability.Counter
	now        func() time.Time

	dueInterval   time.Duration
	retryInterval time.Duration
	batchSize     int
}

func NewScheduler(repo domain.Repository, dispatcher *Dispatcher, tel observability.Observability) *Scheduler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Scheduler{
		repo:          repo,
		dispatcher:    dispatcher,
		log:           tel.Logger().With(observability.F("component", "notification_scheduler")),
		sweepRuns:     tel.Metrics().Counter(observability.MSweepRuns),
		sweepItems:    tel.Metrics().Counter(observability.MSweepItems),
		now:           func() time.Time { return time.Now().UTC() },
		dueInterval:   DefaultDueInterval,
		retryInterval: DefaultRetryInterval,
		batchSize:     DefaultBatchSize,
	}
}

// WithClock overrides the scheduler's clock. Intended for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// WithIntervals overrides the sweep cadence. Intended for wiring and tests.
func (s *Scheduler) WithIntervals(due, retry time.Duration) *Scheduler {
	if due > 0 {
		s.dueInterval = due
	}
	if retry > 0 {
		s.retryInterval = retry
	}
	return s
}

// Start launches both sweep loops until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.dueInterval, s.RunDueSweep)
	go s.loop(ctx, s.retryInterval, s.RunRetrySweep)
	s.log.Info("notification_scheduler_started",
		observability.F("due_interval", s.dueInterval.String()),
		observability.F("retry_interval", s.retryInterval.String()),
	)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, run func(context.Context) int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// RunDueSweep sends pending notifications whose scheduled time has arrived.
// Returns the number of rows processed.
func (s *Scheduler) RunDueSweep(ctx context.Context) int {
	now := s.now()
	batch, err := s.repo.FindDue(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("due_sweep_query_failed", observability.F("error", err.Error()))
		s.sweepRuns.Add(1, observability.L("sweep", sweepDue), observability.L("outcome", "error"))
		return 0
	}

	for _, n := range batch {
		s.dispatcher.Deliver(ctx, n, nil)
	}

	s.sweepRuns.Add(1, observability.L("sweep", sweepDue), observability.L("outcome", "success"))
	if len(batch) > 0 {
		s.sweepItems.Add(float64(len(batch)), observability.L("sweep", sweepDue))
		s.log.Info("due_sweep_done", observability.F("processed", len(batch)))
	}
	return len(batch)
}

// RunRetrySweep resubmits failed notifications that still have attempts left
// and whose backoff deadline has passed. Exhausted rows are never selected
// again.
func (s *Scheduler) RunRetrySweep(ctx context.Context) int {
	now := s.now()
	batch, err := s.repo.FindRetryable(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("retry_sweep_query_failed", observability.F("error", err.Error()))
		s.sweepRuns.Add(1, observability.L("sweep", sweepRetry), observability.L("outcome", "error"))
		return 0
	}

	for _, n := range batch {
		n.Resubmit(now)
		s.dispatcher.Deliver(ctx, n, nil)
	}

	s.sweepRuns.Add(1, observability.L("sweep", sweepRetry), observability.L("outcome", "success"))
	if len(batch) > 0 {
		s.sweepItems.Add(float64(len(batch)), observability.L("sweep", sweepRetry))
		s.log.Info("retry_sweep_done", observability.F("processed", len(batch)))
	}
	return len(batch)
}
