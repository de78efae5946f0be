package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/lms-portal-api/internal/dto"
	"github.com/learnhub/lms-portal-api/pkg/jobs"
)

const (
	jobTypeCycleCheck    = "cycle-check"
	jobTypeExportCleanup = "export-cleanup"
)

type eventChecker interface {
	CheckEnrollmentEvents(ctx context.Context) (dto.CheckEventsResult, error)
}

type exportJanitor interface {
	CleanupExports() ([]string, error)
}

// Scheduler periodically enqueues cycle-check jobs so ended enrollment
// windows activate batches without an admin pressing the button. Checks run
// through a worker queue so a slow database pass never stacks tickers. The
// same loop sweeps expired export files when a janitor is provided.
type Scheduler struct {
	cycles   eventChecker
	janitor  exportJanitor
	queue    *jobs.Queue
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New constructs a scheduler polling at the given interval. A nil janitor
// disables export cleanup.
func New(cycles eventChecker, janitor exportJanitor, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{cycles: cycles, janitor: janitor, interval: interval, logger: logger}
	s.queue = jobs.NewQueue("cycle-scheduler", s.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 2,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers and the ticker loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.queue.Start(ctx)
	s.started = true

	go s.loop(ctx)
	s.logger.Info("cycle scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the ticker and waits for in-flight checks to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.queue.Stop()
	s.logger.Info("cycle scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// One immediate pass so a restart does not wait a full interval.
	s.enqueue()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueue()
		}
	}
}

func (s *Scheduler) enqueue() {
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeCycleCheck}); err != nil {
		s.logger.Warn("failed to enqueue cycle check", zap.Error(err))
	}
	if s.janitor == nil {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeExportCleanup}); err != nil {
		s.logger.Warn("failed to enqueue export cleanup", zap.Error(err))
	}
}

func (s *Scheduler) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeExportCleanup:
		_, err := s.janitor.CleanupExports()
		return err
	default:
		result, err := s.cycles.CheckEnrollmentEvents(ctx)
		if err != nil {
			return err
		}
		if result.Activated > 0 && result.Event != nil {
			s.logger.Info("scheduler activated batch from event",
				zap.String("job_id", job.ID), zap.String("event_id", result.Event.ID))
		}
		return nil
	}
}
