package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a settlement job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job represents one due payment obligation queued for settlement. Attempt
// counting lives here, decoupled from any queue technology: the executor sees
// which attempt it is on and whether it is the last one.
type Job struct {
	ID          uuid.UUID
	PaymentID   uuid.UUID
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Attempt     int // 0-based; incremented when a retry is scheduled
	MaxAttempts int
	NextRetryAt *time.Time
}

// NewJob creates a job for a payment obligation
func NewJob(paymentID uuid.UUID, maxAttempts int) *Job {
	return &Job{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// IsFinalAttempt reports whether the current attempt is the last one in the budget
func (j *Job) IsFinalAttempt() bool {
	return j.Attempt >= j.MaxAttempts-1
}

// ShouldRetry returns true if the job still has attempt budget left
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.Attempt < j.MaxAttempts-1
}

// ScheduleRetry schedules the job for another attempt after delay
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.Attempt++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor is the interface for executing settlement jobs. Returning an
// error wrapped with ErrNoRetry stops the retry loop immediately, regardless
// of remaining attempt budget.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	MaxAttempts       int
	Backoff           []time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration: three
// attempts spaced one, five and fifteen minutes apart.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 3,
		JobTimeout:        2 * time.Minute,
		MaxAttempts:       3,
		Backoff:           []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
	}
}

// backoffFor returns the delay preceding the given attempt number
func (c SchedulerConfig) backoffFor(attempt int) time.Duration {
	if len(c.Backoff) == 0 {
		return time.Minute
	}
	if attempt >= len(c.Backoff) {
		return c.Backoff[len(c.Backoff)-1]
	}
	return c.Backoff[attempt]
}

// Scheduler drives settlement attempts through a worker pool. Obligations are
// processed concurrently and independently, so the executor's own status
// re-check is what prevents two workers from double-charging one obligation.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, 100),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Settlement scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Int("max_attempts", s.config.MaxAttempts),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	close(s.jobs)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Settlement scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Settlement scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitPayment queues a settlement attempt for the given payment record
func (s *Scheduler) SubmitPayment(paymentID uuid.UUID) error {
	return s.SubmitJob(NewJob(paymentID, s.config.MaxAttempts))
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("payment_id", job.PaymentID.String()),
			zap.Int("attempt", job.Attempt),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Job channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	// A retry whose backoff has not elapsed waits out the remainder here,
	// keeping the worker but not the queue busy
	if job.NextRetryAt != nil {
		if wait := time.Until(*job.NextRetryAt); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}

	job.Start()
	s.logger.Info("Processing settlement job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("payment_id", job.PaymentID.String()),
		zap.Int("attempt", job.Attempt),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err != nil {
		job.Fail(err.Error())
		s.logger.Error("Settlement job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("payment_id", job.PaymentID.String()),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)

		if errors.Is(err, ErrNoRetry) {
			return
		}

		if job.ShouldRetry() {
			delay := s.config.backoffFor(job.Attempt)
			job.ScheduleRetry(delay)
			s.logger.Info("Settlement job scheduled for retry",
				zap.String("job_id", job.ID.String()),
				zap.Int("attempt", job.Attempt),
				zap.Int("max_attempts", job.MaxAttempts),
				zap.Duration("delay", delay),
			)
			select {
			case s.jobs <- job:
			default:
				s.logger.Warn("Failed to re-queue job for retry",
					zap.String("job_id", job.ID.String()),
				)
			}
		}
		return
	}

	job.Complete()
	s.logger.Info("Settlement job completed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("payment_id", job.PaymentID.String()),
	)
}
