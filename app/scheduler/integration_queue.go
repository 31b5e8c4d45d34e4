// Package scheduler runs the background retry loop for partner deliveries
package scheduler

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/retry"
	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// QueueStore is the persistence the queue service needs; repository.DeliveryQueueRepository satisfies it
type QueueStore interface {
	Insert(ctx context.Context, job *models.DeliveryJob) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	FetchDueBatch(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryJob, error)
	UpdateAttempts(ctx context.Context, id uuid.UUID, attempts int) error
	Reschedule(ctx context.Context, id uuid.UUID, scheduledFor time.Time) error
	ByFilter(ctx context.Context, filter models.DeliveryJobFilter, orderBy string, limit, offset int) ([]*models.DeliveryJob, error)
	Count(ctx context.Context, filter models.DeliveryJobFilter) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeliveryLogStore reads a job's log and writes the terminal failure
type DeliveryLogStore interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.DeliveryLog, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, upd models.DeliveryLogUpdate) (bool, error)
}

// Redeliverer re-sends the payload of an existing log.
// A returned error is an infrastructure fault; a delivery failure is reported in the result.
type Redeliverer interface {
	RetryDelivery(ctx context.Context, deliveryLog *models.DeliveryLog) (*dto.IntegrationResult, error)
}

// QueueLock keeps replicas from running overlapping passes
type QueueLock interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// QueueOptions tunes the poll loop
type QueueOptions struct {
	Interval      time.Duration
	BatchSize     int
	FallbackDelay time.Duration
	Backoff       retry.Policy
	Lock          QueueLock
	Logger        *log.Logger
	Now           func() time.Time
	// Random feeds backoff jitter; nil uses math/rand
	Random func() float64
}

// QueueStats summarises the queue table
type QueueStats struct {
	TotalItems int `json:"total_items"`
	// ReadyToProcess counts every due job, including exhausted ones awaiting cleanup
	ReadyToProcess         int   `json:"ready_to_process"`
	FailedItems            int   `json:"failed_items"`
	AverageWaitTimeSeconds int64 `json:"average_wait_time"`
}

// IntegrationQueueService polls due retry jobs and redelivers them
type IntegrationQueueService struct {
	store    QueueStore
	logs     DeliveryLogStore
	sender   Redeliverer
	lock     QueueLock
	backoff  *retry.Strategy
	logger   *log.Logger
	now      func() time.Time
	interval time.Duration
	batch    int
	fallback time.Duration

	processing atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewIntegrationQueueService(store QueueStore, logs DeliveryLogStore, sender Redeliverer, opts QueueOptions) *IntegrationQueueService {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.FallbackDelay <= 0 {
		opts.FallbackDelay = time.Minute
	}
	if opts.Backoff.BaseDelay <= 0 {
		opts.Backoff = retry.DefaultPolicy()
	}
	if opts.Lock == nil {
		opts.Lock = NoopQueueLock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = utils.UTCNow
	}

	return &IntegrationQueueService{
		store:    store,
		logs:     logs,
		sender:   sender,
		lock:     opts.Lock,
		backoff:  retry.NewStrategy(opts.Backoff, opts.Random),
		logger:   opts.Logger,
		now:      opts.Now,
		interval: opts.Interval,
		batch:    opts.BatchSize,
		fallback: opts.FallbackDelay,
	}
}

// Start runs one pass immediately and then one per interval until Stop or the returned
// function is called. Calling Start on a running service is a no-op.
func (s *IntegrationQueueService) Start(parent context.Context) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return s.Stop
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.logger.Printf("queue: starting, interval=%s batch=%d", s.interval, s.batch)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()

	return s.Stop
}

// Stop prevents future passes. A pass already running finishes on its own.
func (s *IntegrationQueueService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.logger.Printf("queue: stopped")
}

// Running reports whether the poll loop is active
func (s *IntegrationQueueService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *IntegrationQueueService) tick(ctx context.Context) {
	// in-flight passes outlive Stop
	s.ProcessQueue(context.WithoutCancel(ctx))
}

// ProcessQueue runs one pass. It returns immediately when a pass is already running
// here or on another replica.
func (s *IntegrationQueueService) ProcessQueue(ctx context.Context) {
	if !s.processing.CompareAndSwap(false, true) {
		passesTotal.WithLabelValues("skipped").Inc()
		return
	}
	defer s.processing.Store(false)

	release, ok, err := s.lock.TryLock(ctx)
	if err != nil {
		s.logger.Printf("queue: lock failed: %v", err)
		passesTotal.WithLabelValues("error").Inc()
		return
	}
	if !ok {
		passesTotal.WithLabelValues("skipped").Inc()
		return
	}
	defer release()

	start := time.Now()
	defer func() { passDuration.Observe(time.Since(start).Seconds()) }()

	jobs, err := s.store.FetchDueBatch(ctx, s.now(), s.batch)
	if err != nil {
		s.logger.Printf("queue: fetch due batch failed: %v", err)
		passesTotal.WithLabelValues("error").Inc()
		return
	}
	passesTotal.WithLabelValues("completed").Inc()
	if len(jobs) == 0 {
		return
	}
	s.logger.Printf("queue: processing %d jobs", len(jobs))

	var g errgroup.Group
	for _, job := range jobs {
		g.Go(func() error {
			s.processJobSafely(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *IntegrationQueueService) processJobSafely(ctx context.Context, job *models.DeliveryJob) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("queue: job %s panicked: %v", job.ID, r)
			s.rescheduleAfterFault(ctx, job)
		}
	}()

	if err := s.processJob(ctx, job); err != nil {
		s.logger.Printf("queue: job %s failed: %v", job.ID, err)
		s.rescheduleAfterFault(ctx, job)
	}
}

func (s *IntegrationQueueService) processJob(ctx context.Context, job *models.DeliveryJob) error {
	attempts := job.Attempts + 1
	s.logger.Printf("queue: processing job %s (attempt %d/%d)", job.ID, attempts, job.MaxAttempts)

	if err := s.store.UpdateAttempts(ctx, job.ID, attempts); err != nil {
		return fmt.Errorf("update attempts: %w", err)
	}
	job.Attempts = attempts

	deliveryLog, err := s.logs.ByID(ctx, job.LogID)
	if err != nil {
		return fmt.Errorf("load log %s: %w", job.LogID, err)
	}
	if deliveryLog == nil || deliveryLog.Payload.IsZero() {
		s.logger.Printf("queue: job %s has no log data, removing", job.ID)
		s.remove(ctx, job, "orphaned")
		return nil
	}
	if deliveryLog.Status.IsTerminal() {
		s.logger.Printf("queue: job %s log already %s, removing", job.ID, deliveryLog.Status)
		s.remove(ctx, job, "settled")
		return nil
	}

	result, err := s.sender.RetryDelivery(ctx, deliveryLog)
	if err != nil {
		return fmt.Errorf("redeliver: %w", err)
	}

	if result != nil && result.Success {
		s.logger.Printf("queue: job %s delivered", job.ID)
		s.remove(ctx, job, "succeeded")
		return nil
	}

	if attempts >= job.MaxAttempts {
		s.logger.Printf("queue: job %s failed after %d attempts", job.ID, attempts)
		s.abandon(ctx, job)
		return nil
	}

	delay := s.backoff.Delay(attempts)
	if err := s.store.Reschedule(ctx, job.ID, s.now().Add(delay)); err != nil {
		s.logger.Printf("queue: reschedule job %s failed: %v", job.ID, err)
		return nil
	}
	jobOutcomes.WithLabelValues("rescheduled").Inc()
	s.logger.Printf("queue: job %s rescheduled in %s", job.ID, delay)
	return nil
}

func (s *IntegrationQueueService) remove(ctx context.Context, job *models.DeliveryJob, outcome string) {
	if _, err := s.store.Delete(ctx, job.ID); err != nil {
		s.logger.Printf("queue: removing job %s failed: %v", job.ID, err)
		return
	}
	jobOutcomes.WithLabelValues(outcome).Inc()
}

func (s *IntegrationQueueService) abandon(ctx context.Context, job *models.DeliveryJob) {
	s.remove(ctx, job, "abandoned")
	if _, err := s.logs.UpdateStatus(ctx, job.LogID, models.DeliveryLogUpdate{
		Status:       models.DeliveryStatusFailed,
		ErrorMessage: utils.ToPtr(utils.FinalFailureMessage),
	}); err != nil {
		s.logger.Printf("queue: marking log %s failed: %v", job.LogID, err)
	}
}

// rescheduleAfterFault retries later unless this pass already spent the last attempt,
// since FetchDueBatch never returns an exhausted job again
func (s *IntegrationQueueService) rescheduleAfterFault(ctx context.Context, job *models.DeliveryJob) {
	jobOutcomes.WithLabelValues("faulted").Inc()
	if job.IsExhausted() {
		s.abandon(ctx, job)
		return
	}
	if err := s.store.Reschedule(ctx, job.ID, s.now().Add(s.fallback)); err != nil {
		s.logger.Printf("queue: fallback reschedule of job %s failed: %v", job.ID, err)
	}
}

// AddToQueue schedules a retry of logID after delaySeconds. It returns nil when the store rejects it.
func (s *IntegrationQueueService) AddToQueue(ctx context.Context, logID uuid.UUID, delaySeconds, maxAttempts int) *uuid.UUID {
	if delaySeconds < 0 {
		delaySeconds = utils.DefaultQueueDelaySeconds
	}
	if maxAttempts <= 0 {
		maxAttempts = utils.DefaultQueueMaxAttempts
	}

	job := &models.DeliveryJob{
		LogID:        logID,
		ScheduledFor: s.now().Add(time.Duration(delaySeconds) * time.Second),
		Attempts:     0,
		MaxAttempts:  maxAttempts,
	}
	if err := s.store.Insert(ctx, job); err != nil {
		s.logger.Printf("queue: adding log %s failed: %v", logID, err)
		return nil
	}
	jobOutcomes.WithLabelValues("enqueued").Inc()
	return &job.ID
}

// RemoveFromQueue deletes a job and reports whether the store call succeeded
func (s *IntegrationQueueService) RemoveFromQueue(ctx context.Context, jobID uuid.UUID) bool {
	if _, err := s.store.Delete(ctx, jobID); err != nil {
		s.logger.Printf("queue: removing job %s failed: %v", jobID, err)
		return false
	}
	return true
}

// GetQueueStats returns zeroed stats when the store is unavailable
func (s *IntegrationQueueService) GetQueueStats(ctx context.Context) QueueStats {
	now := s.now()
	jobs, err := s.store.ByFilter(ctx, models.DeliveryJobFilter{}, "created_at ASC", 0, 0)
	if err != nil {
		s.logger.Printf("queue: stats failed: %v", err)
		return QueueStats{}
	}
	ready, err := s.store.Count(ctx, models.DeliveryJobFilter{DueBefore: &now})
	if err != nil {
		s.logger.Printf("queue: stats failed: %v", err)
		return QueueStats{}
	}
	failed, err := s.store.Count(ctx, models.DeliveryJobFilter{OnlyExhausted: true})
	if err != nil {
		s.logger.Printf("queue: stats failed: %v", err)
		return QueueStats{}
	}

	stats := QueueStats{
		TotalItems:     len(jobs),
		ReadyToProcess: int(ready),
		FailedItems:    int(failed),
	}
	var waited time.Duration
	for _, job := range jobs {
		waited += now.Sub(job.CreatedAt)
	}
	if len(jobs) > 0 {
		stats.AverageWaitTimeSeconds = int64(math.Round(waited.Seconds() / float64(len(jobs))))
	}
	queueDepth.Set(float64(stats.TotalItems))
	return stats
}

// CleanupOldItems deletes jobs created more than olderThanHours ago, whatever their state
func (s *IntegrationQueueService) CleanupOldItems(ctx context.Context, olderThanHours int) int64 {
	if olderThanHours <= 0 {
		olderThanHours = utils.DefaultCleanupOlderThanHours
	}
	cutoff := s.now().Add(-time.Duration(olderThanHours) * time.Hour)

	n, err := s.store.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Printf("queue: cleanup failed: %v", err)
		return 0
	}
	s.logger.Printf("queue: cleaned up %d old jobs", n)
	return n
}

// StartCleanup purges old jobs every interval until the returned function is called
func (s *IntegrationQueueService) StartCleanup(parent context.Context, every time.Duration, olderThanHours int) func() {
	ctx, cancel := context.WithCancel(parent)
	if every <= 0 {
		return cancel
	}

	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.CleanupOldItems(ctx, olderThanHours)
			}
		}
	}()

	return cancel
}
