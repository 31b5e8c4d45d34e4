package businessflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coracaovalente/instituto-integration/app/ratelimit"
	"github.com/coracaovalente/instituto-integration/app/scheduler"
	"github.com/coracaovalente/instituto-integration/app/services"
	"github.com/coracaovalente/instituto-integration/models"
	"github.com/google/uuid"
)

var errStoreDown = errors.New("store unavailable")

type memoryLogRepo struct {
	mu       sync.Mutex
	logs     map[uuid.UUID]*models.DeliveryLog
	failSave bool
	failRead bool
}

func newMemoryLogRepo() *memoryLogRepo {
	return &memoryLogRepo{logs: make(map[uuid.UUID]*models.DeliveryLog)}
}

func (r *memoryLogRepo) ByID(_ context.Context, id uuid.UUID) (*models.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return nil, errStoreDown
	}
	l, ok := r.logs[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memoryLogRepo) matching(filter models.DeliveryLogFilter) []*models.DeliveryLog {
	var out []*models.DeliveryLog
	for _, l := range r.logs {
		if filter.UserID != nil && l.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.CreatedAfter != nil && l.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		if filter.CreatedBefore != nil && !l.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memoryLogRepo) ByFilter(_ context.Context, filter models.DeliveryLogFilter, _ string, limit, offset int) ([]*models.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return nil, errStoreDown
	}
	rows := r.matching(filter)
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *memoryLogRepo) Count(_ context.Context, filter models.DeliveryLogFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return 0, errStoreDown
	}
	return int64(len(r.matching(filter))), nil
}

func (r *memoryLogRepo) Save(_ context.Context, l *models.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave {
		return errStoreDown
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
		l.UpdatedAt = l.CreatedAt
	}
	cp := *l
	r.logs[l.ID] = &cp
	return nil
}

func (r *memoryLogRepo) UpdateStatus(_ context.Context, id uuid.UUID, upd models.DeliveryLogUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok || !l.Status.CanTransitionTo(upd.Status) {
		return false, nil
	}
	l.Status = upd.Status
	if len(upd.Response) > 0 {
		l.Response = upd.Response
	}
	if upd.ErrorMessage != nil {
		msg := *upd.ErrorMessage
		l.ErrorMessage = &msg
		l.ErrorHistory = append(l.ErrorHistory, msg)
	}
	if upd.NextRetryAt != nil {
		l.NextRetryAt = upd.NextRetryAt
	}
	return true, nil
}

func (r *memoryLogRepo) MarkRetry(_ context.Context, id uuid.UUID, nextRetryAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return false, errStoreDown
	}
	l, ok := r.logs[id]
	if !ok || !l.Status.CanTransitionTo(models.DeliveryStatusRetry) {
		return false, nil
	}
	l.Status = models.DeliveryStatusRetry
	l.AttemptCount++
	l.NextRetryAt = nextRetryAt
	return true, nil
}

func (r *memoryLogRepo) Stats(context.Context, time.Time) (*models.DeliveryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return nil, errStoreDown
	}
	s := &models.DeliveryStats{TotalAttempts: int64(len(r.logs))}
	for _, l := range r.logs {
		switch l.Status {
		case models.DeliveryStatusSuccess:
			s.SuccessfulSends++
		case models.DeliveryStatusFailed:
			s.FailedSends++
		case models.DeliveryStatusRetry:
			s.PendingRetries++
		}
	}
	if s.TotalAttempts > 0 {
		s.SuccessRate = float64(s.SuccessfulSends) / float64(s.TotalAttempts) * 100
	}
	return s, nil
}

func (r *memoryLogRepo) only() *models.DeliveryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		cp := *l
		return &cp
	}
	return nil
}

func (r *memoryLogRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

type staticConfigs struct {
	cfg         *models.APIConfig
	err         error
	invalidated int
}

func (s *staticConfigs) Active(context.Context) (*models.APIConfig, error) {
	if s.err != nil || s.cfg == nil {
		return nil, s.err
	}
	cp := *s.cfg
	return &cp, nil
}

func (s *staticConfigs) Invalidate() { s.invalidated++ }

type enqueueCall struct {
	LogID        uuid.UUID
	DelaySeconds int
	MaxAttempts  int
}

// recordingQueue fakes the retry queue surface used by the flows
type recordingQueue struct {
	mu       sync.Mutex
	calls    []enqueueCall
	jobs     map[uuid.UUID]uuid.UUID
	fail     bool
	passes   int
	stats    scheduler.QueueStats
	cleanups []int
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{jobs: make(map[uuid.UUID]uuid.UUID)}
}

func (q *recordingQueue) AddToQueue(_ context.Context, logID uuid.UUID, delaySeconds, maxAttempts int) *uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, enqueueCall{LogID: logID, DelaySeconds: delaySeconds, MaxAttempts: maxAttempts})
	if q.fail {
		return nil
	}
	id := uuid.New()
	q.jobs[id] = logID
	return &id
}

func (q *recordingQueue) RemoveFromQueue(_ context.Context, jobID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[jobID]; !ok {
		return false
	}
	delete(q.jobs, jobID)
	return true
}

func (q *recordingQueue) GetQueueStats(context.Context) scheduler.QueueStats {
	return q.stats
}

func (q *recordingQueue) CleanupOldItems(_ context.Context, olderThanHours int) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleanups = append(q.cleanups, olderThanHours)
	return 4
}

func (q *recordingQueue) ProcessQueue(context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.passes++
}

func (q *recordingQueue) enqueued() []enqueueCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]enqueueCall(nil), q.calls...)
}

// healthClient wraps the mock client with a configurable health check result
type healthClient struct {
	*services.MockInstitutoClient
	healthErr error
	checked   []string
}

func (c *healthClient) HealthCheck(_ context.Context, cfg *models.APIConfig) error {
	c.checked = append(c.checked, cfg.HealthEndpoint())
	return c.healthErr
}

type flowFixture struct {
	now     time.Time
	limiter *ratelimit.InstitutoLimiter
	logs    *memoryLogRepo
	configs *staticConfigs
	client  *healthClient
	queue   *recordingQueue
	flow    *IntegrationFlowImpl
}

func activeConfig() *models.APIConfig {
	return &models.APIConfig{
		ID:            uuid.New(),
		Endpoint:      "https://api.instituto.example/users",
		Method:        "POST",
		AuthType:      models.AuthTypeAPIKey,
		IsActive:      true,
		RetryAttempts: 4,
		RetryDelayMs:  5000,
		Credentials:   models.Credentials{APIKey: "k"},
	}
}

func newFlowFixture(policy ratelimit.Policy) *flowFixture {
	fx := &flowFixture{
		now:     time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		logs:    newMemoryLogRepo(),
		configs: &staticConfigs{cfg: activeConfig()},
		queue:   newRecordingQueue(),
	}
	mock := services.NewMockInstitutoClient(0, 0)
	mock.ScaleDelays = 0
	fx.client = &healthClient{MockInstitutoClient: mock}

	clock := func() time.Time { return fx.now }
	fx.limiter = ratelimit.NewInstitutoLimiter(ratelimit.New(ratelimit.WithClock(clock)), policy, nil, nil)
	fx.flow = NewIntegrationFlow(fx.limiter, fx.logs, fx.configs, fx.client, nil)
	fx.flow.now = clock
	fx.flow.SetEnqueuer(fx.queue)
	return fx
}

func validUserData() models.InstitutoUserData {
	return models.InstitutoUserData{
		Nome:                     "Maria da Silva",
		Email:                    "Maria.Silva@Example.com",
		Telefone:                 "(11) 98765-4321",
		CPF:                      "529.982.247-25",
		OrigemCadastro:           models.OrigemVisaoItinerante,
		ConsentimentoDataSharing: true,
		CreatedAt:                "2024-03-01T10:00:00Z",
	}
}
