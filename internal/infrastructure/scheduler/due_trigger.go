package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ObligationSource yields the payment records that are due for settlement as
// of a point in time. Implementations also materialize pending records for
// recurring schedules whose next due date has arrived.
type ObligationSource interface {
	CollectDue(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error)
}

// DueTriggerConfig holds configuration for the due-obligation trigger
type DueTriggerConfig struct {
	// PollInterval is how often the local store is scanned for due obligations
	PollInterval time.Duration

	// BatchLimit caps how many obligations one scan may enqueue
	BatchLimit int
}

// DefaultDueTriggerConfig returns default trigger configuration
func DefaultDueTriggerConfig() DueTriggerConfig {
	return DueTriggerConfig{
		PollInterval: time.Minute,
		BatchLimit:   100,
	}
}

// DueTrigger periodically scans for due obligations and feeds them to the
// settlement scheduler. Double submission across poll cycles is harmless:
// the executor re-checks the record status before charging.
type DueTrigger struct {
	config    DueTriggerConfig
	scheduler *Scheduler
	source    ObligationSource
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewDueTrigger creates a new due-obligation trigger
func NewDueTrigger(config DueTriggerConfig, sched *Scheduler, source ObligationSource, logger *zap.Logger) *DueTrigger {
	return &DueTrigger{
		config:    config,
		scheduler: sched,
		source:    source,
		logger:    logger,
	}
}

// Start starts the trigger loop
func (t *DueTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Due-obligation trigger started",
		zap.Duration("poll_interval", t.config.PollInterval),
		zap.Int("batch_limit", t.config.BatchLimit),
	)

	return nil
}

// Stop stops the trigger loop
func (t *DueTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Due-obligation trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *DueTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scanAndSubmit(ctx)
		}
	}
}

// scanAndSubmit runs one poll cycle
func (t *DueTrigger) scanAndSubmit(ctx context.Context) {
	paymentIDs, err := t.source.CollectDue(ctx, time.Now(), t.config.BatchLimit)
	if err != nil {
		t.logger.Error("Failed to collect due obligations", zap.Error(err))
		return
	}
	if len(paymentIDs) == 0 {
		return
	}

	t.logger.Info("Enqueueing due obligations", zap.Int("count", len(paymentIDs)))

	for _, id := range paymentIDs {
		if err := t.scheduler.SubmitPayment(id); err != nil {
			t.logger.Error("Failed to submit due obligation",
				zap.String("payment_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

// TriggerNow runs a single scan outside the poll cadence, for operator use
func (t *DueTrigger) TriggerNow(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := t.source.CollectDue(ctx, time.Now(), t.config.BatchLimit)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := t.scheduler.SubmitPayment(id); err != nil {
			return ids, err
		}
	}
	return ids, nil
}
