package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/retry"
	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store unavailable")

type memoryQueueStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.DeliveryJob
	fail      bool
	failOnJob map[uuid.UUID]bool
}

func newMemoryQueueStore() *memoryQueueStore {
	return &memoryQueueStore{jobs: make(map[uuid.UUID]*models.DeliveryJob), failOnJob: make(map[uuid.UUID]bool)}
}

func (m *memoryQueueStore) Insert(_ context.Context, job *models.DeliveryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.ScheduledFor
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryQueueStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errStoreDown
	}
	_, ok := m.jobs[id]
	delete(m.jobs, id)
	return ok, nil
}

func (m *memoryQueueStore) FetchDueBatch(_ context.Context, now time.Time, limit int) ([]*models.DeliveryJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStoreDown
	}
	var due []*models.DeliveryJob
	for _, j := range m.jobs {
		if !j.ScheduledFor.After(now) && j.Attempts < j.MaxAttempts {
			cp := *j
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].ScheduledFor.Before(due[b].ScheduledFor) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memoryQueueStore) UpdateAttempts(_ context.Context, id uuid.UUID, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail || m.failOnJob[id] {
		return errStoreDown
	}
	j, ok := m.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	j.Attempts = attempts
	return nil
}

func (m *memoryQueueStore) Reschedule(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	j, ok := m.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	j.ScheduledFor = at
	return nil
}

func (m *memoryQueueStore) matching(filter models.DeliveryJobFilter) []*models.DeliveryJob {
	var out []*models.DeliveryJob
	for _, j := range m.jobs {
		if filter.DueBefore != nil && !j.IsDue(*filter.DueBefore) {
			continue
		}
		if filter.OnlyExhausted && !j.IsExhausted() {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out
}

func (m *memoryQueueStore) ByFilter(_ context.Context, filter models.DeliveryJobFilter, _ string, limit, offset int) ([]*models.DeliveryJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStoreDown
	}
	out := m.matching(filter)
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if offset > 0 {
		out = out[min(offset, len(out)):]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryQueueStore) Count(_ context.Context, filter models.DeliveryJobFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errStoreDown
	}
	return int64(len(m.matching(filter))), nil
}

func (m *memoryQueueStore) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errStoreDown
	}
	var n int64
	for id, j := range m.jobs {
		if j.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryQueueStore) get(id uuid.UUID) *models.DeliveryJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

func (m *memoryQueueStore) jobsForLog(logID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.LogID == logID {
			n++
		}
	}
	return n
}

type memoryLogStore struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*models.DeliveryLog
}

func newMemoryLogStore() *memoryLogStore {
	return &memoryLogStore{logs: make(map[uuid.UUID]*models.DeliveryLog)}
}

func (m *memoryLogStore) add(status models.DeliveryStatus) *models.DeliveryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &models.DeliveryLog{
		ID:     uuid.New(),
		UserID: uuid.NewString(),
		Status: status,
		Payload: models.NewUserDataPayload(models.InstitutoUserData{
			Nome:  "Maria Silva",
			Email: "maria@example.com",
		}),
	}
	m.logs[l.ID] = l
	return l
}

func (m *memoryLogStore) ByID(_ context.Context, id uuid.UUID) (*models.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memoryLogStore) UpdateStatus(_ context.Context, id uuid.UUID, upd models.DeliveryLogUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok || !l.Status.CanTransitionTo(upd.Status) {
		return false, nil
	}
	l.Status = upd.Status
	if upd.ErrorMessage != nil {
		l.ErrorMessage = upd.ErrorMessage
	}
	return true, nil
}

func (m *memoryLogStore) status(id uuid.UUID) models.DeliveryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs[id].Status
}

// scriptedSender answers each call with the next outcome for that log
type scriptedSender struct {
	logs     *memoryLogStore
	mu       sync.Mutex
	calls    map[uuid.UUID]int
	outcomes func(logID uuid.UUID, call int) (bool, error)
}

func newScriptedSender(logs *memoryLogStore, outcomes func(uuid.UUID, int) (bool, error)) *scriptedSender {
	return &scriptedSender{logs: logs, calls: make(map[uuid.UUID]int), outcomes: outcomes}
}

func (s *scriptedSender) RetryDelivery(ctx context.Context, l *models.DeliveryLog) (*dto.IntegrationResult, error) {
	s.mu.Lock()
	s.calls[l.ID]++
	call := s.calls[l.ID]
	s.mu.Unlock()

	ok, err := s.outcomes(l.ID, call)
	if err != nil {
		return nil, err
	}
	if ok {
		_, _ = s.logs.UpdateStatus(ctx, l.ID, models.DeliveryLogUpdate{Status: models.DeliveryStatusSuccess})
		return &dto.IntegrationResult{Success: true, LogID: &l.ID}, nil
	}
	_, _ = s.logs.UpdateStatus(ctx, l.ID, models.DeliveryLogUpdate{Status: models.DeliveryStatusRetry})
	return &dto.IntegrationResult{Success: false, Error: "HTTP 503", Retryable: true, LogID: &l.ID}, nil
}

func (s *scriptedSender) callCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

type queueFixture struct {
	store  *memoryQueueStore
	logs   *memoryLogStore
	sender *scriptedSender
	svc    *IntegrationQueueService
	now    time.Time
	mu     sync.Mutex
}

func newQueueFixture(t *testing.T, outcomes func(uuid.UUID, int) (bool, error)) *queueFixture {
	t.Helper()
	f := &queueFixture{
		store: newMemoryQueueStore(),
		logs:  newMemoryLogStore(),
		now:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.sender = newScriptedSender(f.logs, outcomes)
	policy := retry.DefaultPolicy()
	policy.Jitter = false
	f.svc = NewIntegrationQueueService(f.store, f.logs, f.sender, QueueOptions{
		Interval:      time.Hour,
		BatchSize:     10,
		FallbackDelay: time.Minute,
		Backoff:       policy,
		Logger:        utils.DiscardLogger(),
		Now:           f.clock,
	})
	return f
}

func (f *queueFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *queueFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *queueFixture) enqueue(t *testing.T, maxAttempts int) (*models.DeliveryLog, uuid.UUID) {
	t.Helper()
	l := f.logs.add(models.DeliveryStatusRetry)
	id := f.svc.AddToQueue(context.Background(), l.ID, 0, maxAttempts)
	require.NotNil(t, id)
	return l, *id
}

func TestProcessQueue_SuccessOnFirstAttempt(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	l, _ := f.enqueue(t, 3)

	f.svc.ProcessQueue(context.Background())

	assert.Equal(t, 0, f.store.jobsForLog(l.ID))
	assert.Equal(t, models.DeliveryStatusSuccess, f.logs.status(l.ID))

	f.advance(time.Hour)
	f.svc.ProcessQueue(context.Background())
	assert.Equal(t, 1, f.sender.callCount(l.ID), "a delivered job is never reprocessed")
}

func TestProcessQueue_RetryThenSuccess(t *testing.T) {
	f := newQueueFixture(t, func(_ uuid.UUID, call int) (bool, error) { return call >= 2, nil })
	l, jobID := f.enqueue(t, 3)

	f.svc.ProcessQueue(context.Background())

	job := f.store.get(jobID)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, f.clock().Add(5*time.Second), job.ScheduledFor)
	assert.Equal(t, models.DeliveryStatusRetry, f.logs.status(l.ID))

	f.svc.ProcessQueue(context.Background())
	assert.Equal(t, 1, f.sender.callCount(l.ID), "job is not due before its backoff elapses")

	f.advance(5 * time.Second)
	f.svc.ProcessQueue(context.Background())

	assert.Nil(t, f.store.get(jobID))
	assert.Equal(t, models.DeliveryStatusSuccess, f.logs.status(l.ID))
	assert.Equal(t, 2, f.sender.callCount(l.ID))
}

func TestProcessQueue_Exhaustion(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return false, nil })
	l, jobID := f.enqueue(t, 2)

	f.svc.ProcessQueue(context.Background())
	require.NotNil(t, f.store.get(jobID))

	f.advance(time.Minute)
	f.svc.ProcessQueue(context.Background())

	assert.Nil(t, f.store.get(jobID))
	assert.Equal(t, models.DeliveryStatusFailed, f.logs.status(l.ID))

	f.advance(time.Hour)
	f.svc.ProcessQueue(context.Background())
	assert.Equal(t, 2, f.sender.callCount(l.ID))
}

func TestProcessQueue_ExhaustedJobNeverRemains(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 5} {
		f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return false, nil })
		l, jobID := f.enqueue(t, maxAttempts)

		for pass := 1; pass <= maxAttempts; pass++ {
			f.svc.ProcessQueue(context.Background())
			job := f.store.get(jobID)
			if pass == maxAttempts {
				assert.Nil(t, job, "max=%d", maxAttempts)
			} else {
				require.NotNil(t, job, "max=%d pass=%d", maxAttempts, pass)
				assert.Less(t, job.Attempts, job.MaxAttempts)
			}
			f.advance(10 * time.Minute)
		}
		assert.Equal(t, models.DeliveryStatusFailed, f.logs.status(l.ID))
	}
}

func TestProcessQueue_IsolatesFailingJob(t *testing.T) {
	var bad uuid.UUID
	var panicked uuid.UUID
	f := newQueueFixture(t, func(id uuid.UUID, _ int) (bool, error) {
		switch id {
		case bad:
			return false, errors.New("connection reset")
		case panicked:
			panic("unexpected nil")
		}
		return id[0]%2 == 0, nil
	})

	var jobs []uuid.UUID
	var logs []uuid.UUID
	for i := 0; i < 8; i++ {
		l, id := f.enqueue(t, 3)
		jobs = append(jobs, id)
		logs = append(logs, l.ID)
	}
	bad = logs[2]
	panicked = logs[5]

	f.svc.ProcessQueue(context.Background())

	for i, id := range jobs {
		assert.Equal(t, 1, f.sender.callCount(logs[i]), "job %d was attempted", i)
		job := f.store.get(id)
		if f.logs.status(logs[i]) == models.DeliveryStatusSuccess {
			assert.Nil(t, job, "job %d delivered and removed", i)
			continue
		}
		require.NotNil(t, job, "job %d rescheduled", i)
		assert.Equal(t, 1, job.Attempts)
		assert.True(t, job.ScheduledFor.After(f.clock()), "job %d pushed into the future", i)
	}

	assert.Equal(t, f.clock().Add(time.Minute), f.store.get(jobs[2]).ScheduledFor)
	assert.Equal(t, f.clock().Add(time.Minute), f.store.get(jobs[5]).ScheduledFor)
}

func TestProcessQueue_FaultOnLastAttemptAbandons(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return false, errors.New("boom") })
	l, jobID := f.enqueue(t, 1)

	f.svc.ProcessQueue(context.Background())

	assert.Nil(t, f.store.get(jobID))
	assert.Equal(t, models.DeliveryStatusFailed, f.logs.status(l.ID))
}

func TestProcessQueue_OrphanAndSettledJobsRemoved(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })

	orphan := f.svc.AddToQueue(context.Background(), uuid.New(), 0, 3)
	require.NotNil(t, orphan)

	settled := f.logs.add(models.DeliveryStatusSuccess)
	settledJob := f.svc.AddToQueue(context.Background(), settled.ID, 0, 3)
	require.NotNil(t, settledJob)

	f.svc.ProcessQueue(context.Background())

	assert.Nil(t, f.store.get(*orphan))
	assert.Nil(t, f.store.get(*settledJob))
	assert.Equal(t, 0, f.sender.callCount(settled.ID))
}

func TestProcessQueue_AttemptUpdateFailureReschedules(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	l, jobID := f.enqueue(t, 3)
	f.store.failOnJob[jobID] = true

	f.svc.ProcessQueue(context.Background())

	job := f.store.get(jobID)
	require.NotNil(t, job)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, f.clock().Add(time.Minute), job.ScheduledFor)
	assert.Equal(t, 0, f.sender.callCount(l.ID))
}

func TestProcessQueue_BatchSizeAndOrder(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	for i := 0; i < 15; i++ {
		f.enqueue(t, 3)
	}

	f.svc.ProcessQueue(context.Background())
	assert.Equal(t, 5, f.svc.GetQueueStats(context.Background()).TotalItems)

	f.svc.ProcessQueue(context.Background())
	assert.Equal(t, 0, f.svc.GetQueueStats(context.Background()).TotalItems)
}

func TestProcessQueue_StoreDownIsNoop(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	_, jobID := f.enqueue(t, 3)
	f.store.fail = true

	assert.NotPanics(t, func() { f.svc.ProcessQueue(context.Background()) })

	f.store.fail = false
	assert.NotNil(t, f.store.get(jobID))
}

type blockingLock struct {
	granted atomic.Bool
}

func (l *blockingLock) TryLock(context.Context) (func(), bool, error) {
	if !l.granted.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() { l.granted.Store(false) }, true, nil
}

func TestProcessQueue_SkipsWhenLockHeld(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	lock := &blockingLock{}
	f.svc.lock = lock
	l, _ := f.enqueue(t, 3)

	lock.granted.Store(true)
	f.svc.ProcessQueue(context.Background())
	assert.Equal(t, 0, f.sender.callCount(l.ID))

	lock.granted.Store(false)
	f.svc.ProcessQueue(context.Background())
	assert.Equal(t, 1, f.sender.callCount(l.ID))
	assert.False(t, lock.granted.Load(), "lock released after the pass")
}

func TestProcessQueue_OverlappingPassIsSkipped(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) {
		once.Do(func() { close(entered) })
		<-unblock
		return true, nil
	})
	l, _ := f.enqueue(t, 3)

	done := make(chan struct{})
	go func() {
		f.svc.ProcessQueue(context.Background())
		close(done)
	}()

	<-entered
	f.svc.ProcessQueue(context.Background())
	close(unblock)
	<-done

	assert.Equal(t, 1, f.sender.callCount(l.ID))
}

func TestStartStop(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	l, _ := f.enqueue(t, 3)

	stop := f.svc.Start(context.Background())
	assert.True(t, f.svc.Running())

	again := f.svc.Start(context.Background())
	assert.NotNil(t, again)

	assert.Eventually(t, func() bool { return f.sender.callCount(l.ID) == 1 }, time.Second, 5*time.Millisecond)

	stop()
	assert.False(t, f.svc.Running())
	f.svc.Stop()
}

func TestAddAndRemoveFromQueue(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	logID := uuid.New()

	id := f.svc.AddToQueue(context.Background(), logID, 120, 0)
	require.NotNil(t, id)
	job := f.store.get(*id)
	require.NotNil(t, job)
	assert.Equal(t, f.clock().Add(2*time.Minute), job.ScheduledFor)
	assert.Equal(t, utils.DefaultQueueMaxAttempts, job.MaxAttempts)
	assert.Equal(t, 0, job.Attempts)

	assert.True(t, f.svc.RemoveFromQueue(context.Background(), *id))
	assert.Nil(t, f.store.get(*id))

	f.store.fail = true
	assert.Nil(t, f.svc.AddToQueue(context.Background(), logID, 0, 3))
	assert.False(t, f.svc.RemoveFromQueue(context.Background(), *id))
}

func TestGetQueueStats(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	ctx := context.Background()
	now := f.clock()

	require.NoError(t, f.store.Insert(ctx, &models.DeliveryJob{LogID: uuid.New(), ScheduledFor: now.Add(-time.Minute), MaxAttempts: 3, CreatedAt: now.Add(-100 * time.Second)}))
	require.NoError(t, f.store.Insert(ctx, &models.DeliveryJob{LogID: uuid.New(), ScheduledFor: now.Add(time.Minute), MaxAttempts: 3, CreatedAt: now.Add(-200 * time.Second)}))
	require.NoError(t, f.store.Insert(ctx, &models.DeliveryJob{LogID: uuid.New(), ScheduledFor: now.Add(-time.Hour), Attempts: 3, MaxAttempts: 3, CreatedAt: now.Add(-301 * time.Second)}))

	stats := f.svc.GetQueueStats(ctx)
	assert.Equal(t, QueueStats{
		TotalItems:             3,
		ReadyToProcess:         2,
		FailedItems:            1,
		AverageWaitTimeSeconds: 200,
	}, stats)

	f.store.fail = true
	assert.Equal(t, QueueStats{}, f.svc.GetQueueStats(ctx))
}

func TestCleanupOldItems(t *testing.T) {
	f := newQueueFixture(t, func(uuid.UUID, int) (bool, error) { return true, nil })
	ctx := context.Background()
	now := f.clock()

	require.NoError(t, f.store.Insert(ctx, &models.DeliveryJob{LogID: uuid.New(), ScheduledFor: now, MaxAttempts: 3, CreatedAt: now.Add(-25 * time.Hour)}))
	require.NoError(t, f.store.Insert(ctx, &models.DeliveryJob{LogID: uuid.New(), ScheduledFor: now, Attempts: 3, MaxAttempts: 3, CreatedAt: now.Add(-30 * time.Hour)}))
	require.NoError(t, f.store.Insert(ctx, &models.DeliveryJob{LogID: uuid.New(), ScheduledFor: now, MaxAttempts: 3, CreatedAt: now.Add(-time.Hour)}))

	assert.Equal(t, int64(2), f.svc.CleanupOldItems(ctx, 24))
	assert.Equal(t, 1, f.svc.GetQueueStats(ctx).TotalItems)

	f.store.fail = true
	assert.Equal(t, int64(0), f.svc.CleanupOldItems(ctx, 24))
}
