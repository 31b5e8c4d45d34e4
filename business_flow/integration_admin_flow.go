package businessflow

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/ratelimit"
	"github.com/coracaovalente/instituto-integration/app/scheduler"
	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/repository"
	"github.com/coracaovalente/instituto-integration/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultLogsPageSize = 50
	maxExportRows       = 10000
)

// QueueAdmin is the operator surface of the retry queue
type QueueAdmin interface {
	RetryEnqueuer
	RemoveFromQueue(ctx context.Context, jobID uuid.UUID) bool
	GetQueueStats(ctx context.Context) scheduler.QueueStats
	CleanupOldItems(ctx context.Context, olderThanHours int) int64
	ProcessQueue(ctx context.Context)
}

// RateLimitInspector exposes limiter state to operators
type RateLimitInspector interface {
	UserStatus(userID string) ratelimit.Status
	APIStatus() ratelimit.Status
	ClearUser(userID string)
}

// CredentialSealer encrypts credentials before they are stored
type CredentialSealer interface {
	Encrypt(authType models.AuthType, creds models.Credentials) (string, error)
}

// IntegrationAdminFlow groups the operator use cases of the integration
type IntegrationAdminFlow interface {
	QueueStats(ctx context.Context) *dto.QueueStatsResponse
	Enqueue(ctx context.Context, req *dto.EnqueueRequest) (*dto.EnqueueResponse, error)
	RemoveJob(ctx context.Context, jobID uuid.UUID) error
	ProcessQueue(ctx context.Context)
	CleanupQueue(ctx context.Context, req *dto.CleanupQueueRequest) *dto.CleanupQueueResponse
	Stats(ctx context.Context) *dto.IntegrationStatsResponse
	ListLogs(ctx context.Context, req *dto.ListDeliveryLogsRequest) (*dto.ListDeliveryLogsResponse, error)
	ExportLogs(ctx context.Context, req *dto.ListDeliveryLogsRequest) (string, []byte, error)
	RateLimitStatus(userID string) *dto.RateLimitStatusResponse
	ClearRateLimit(userID string)
	ValidateConfig(ctx context.Context, req *dto.ValidateConfigRequest) *dto.ValidateConfigResponse
	GetConfig(ctx context.Context) (*dto.APIConfigResponse, error)
	SaveConfig(ctx context.Context, req *dto.SaveConfigRequest) (*dto.APIConfigResponse, error)
}

// IntegrationAdminFlowImpl implements IntegrationAdminFlow
type IntegrationAdminFlowImpl struct {
	queue      QueueAdmin
	limits     RateLimitInspector
	delivery   IntegrationFlow
	logRepo    repository.DeliveryLogRepository
	configRepo repository.APIConfigRepository
	configs    ConfigProvider
	sealer     CredentialSealer
	db         *gorm.DB
	logger     *log.Logger
}

func NewIntegrationAdminFlow(
	queue QueueAdmin,
	limits RateLimitInspector,
	delivery IntegrationFlow,
	logRepo repository.DeliveryLogRepository,
	configRepo repository.APIConfigRepository,
	configs ConfigProvider,
	sealer CredentialSealer,
	db *gorm.DB,
	logger *log.Logger,
) IntegrationAdminFlow {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &IntegrationAdminFlowImpl{
		queue:      queue,
		limits:     limits,
		delivery:   delivery,
		logRepo:    logRepo,
		configRepo: configRepo,
		configs:    configs,
		sealer:     sealer,
		db:         db,
		logger:     logger,
	}
}

func (f *IntegrationAdminFlowImpl) QueueStats(ctx context.Context) *dto.QueueStatsResponse {
	s := f.queue.GetQueueStats(ctx)
	return &dto.QueueStatsResponse{
		TotalItems:             s.TotalItems,
		ReadyToProcess:         s.ReadyToProcess,
		FailedItems:            s.FailedItems,
		AverageWaitTimeSeconds: s.AverageWaitTimeSeconds,
	}
}

func (f *IntegrationAdminFlowImpl) Enqueue(ctx context.Context, req *dto.EnqueueRequest) (*dto.EnqueueResponse, error) {
	if req == nil || req.LogID == uuid.Nil {
		return nil, NewBusinessError("DELIVERY_LOG_REQUIRED", "Delivery log id is required", ErrDeliveryLogNotFound)
	}

	deliveryLog, err := f.logRepo.ByID(ctx, req.LogID)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_LOG_LOOKUP_FAILED", "Failed to lookup delivery log", err)
	}
	if deliveryLog == nil {
		return nil, NewBusinessError("DELIVERY_LOG_NOT_FOUND", "Delivery log not found", ErrDeliveryLogNotFound)
	}
	if deliveryLog.Status.IsTerminal() {
		return nil, NewBusinessErrorf("DELIVERY_ALREADY_SETTLED", "Delivery log is already %s", ErrInvalidStatusTransition, deliveryLog.Status)
	}

	delay := utils.DefaultQueueDelaySeconds
	if req.DelaySeconds != nil {
		delay = *req.DelaySeconds
	}
	maxAttempts := utils.DefaultQueueMaxAttempts
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}

	jobID := f.queue.AddToQueue(ctx, req.LogID, delay, maxAttempts)
	if jobID == nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue delivery retry", ErrEnqueueFailed)
	}
	return &dto.EnqueueResponse{JobID: *jobID}, nil
}

func (f *IntegrationAdminFlowImpl) RemoveJob(ctx context.Context, jobID uuid.UUID) error {
	if !f.queue.RemoveFromQueue(ctx, jobID) {
		return NewBusinessError("QUEUE_JOB_NOT_FOUND", "Queue job not found", ErrQueueJobNotFound)
	}
	return nil
}

// ProcessQueue runs one pass now; it is skipped when a pass is already running
func (f *IntegrationAdminFlowImpl) ProcessQueue(ctx context.Context) {
	f.queue.ProcessQueue(ctx)
}

func (f *IntegrationAdminFlowImpl) CleanupQueue(ctx context.Context, req *dto.CleanupQueueRequest) *dto.CleanupQueueResponse {
	hours := utils.DefaultCleanupOlderThanHours
	if req != nil && req.OlderThanHours != nil {
		hours = *req.OlderThanHours
	}
	return &dto.CleanupQueueResponse{Deleted: f.queue.CleanupOldItems(ctx, hours)}
}

func (f *IntegrationAdminFlowImpl) Stats(ctx context.Context) *dto.IntegrationStatsResponse {
	return f.delivery.GetStats(ctx)
}

func (f *IntegrationAdminFlowImpl) ListLogs(ctx context.Context, req *dto.ListDeliveryLogsRequest) (*dto.ListDeliveryLogsResponse, error) {
	filter, page, pageSize, err := logFilterFromRequest(req)
	if err != nil {
		return nil, err
	}

	total, err := f.logRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_LOGS_COUNT_FAILED", "Failed to count delivery logs", err)
	}
	rows, err := f.logRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_LOGS_FETCH_FAILED", "Failed to fetch delivery logs", err)
	}

	items := make([]dto.DeliveryLogItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToDeliveryLogItem(row))
	}
	return &dto.ListDeliveryLogsResponse{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// ExportLogs renders the filtered logs, newest first, as an XLSX workbook
func (f *IntegrationAdminFlowImpl) ExportLogs(ctx context.Context, req *dto.ListDeliveryLogsRequest) (string, []byte, error) {
	filter, _, _, err := logFilterFromRequest(req)
	if err != nil {
		return "", nil, err
	}
	rows, err := f.logRepo.ByFilter(ctx, filter, "created_at DESC", maxExportRows, 0)
	if err != nil {
		return "", nil, NewBusinessError("DELIVERY_LOGS_FETCH_FAILED", "Failed to fetch delivery logs", err)
	}
	data, err := BuildDeliveryLogWorkbook(rows)
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := "instituto_integration_logs_" + utils.UTCNow().Format("20060102_150405") + ".xlsx"
	return filename, data, nil
}

func (f *IntegrationAdminFlowImpl) RateLimitStatus(userID string) *dto.RateLimitStatusResponse {
	user := f.limits.UserStatus(userID)
	global := f.limits.APIStatus()
	return &dto.RateLimitStatusResponse{
		UserID: userID,
		User:   dto.RateLimitWindow{Count: user.Count, Remaining: user.Remaining, ResetTime: user.ResetTime},
		Global: dto.RateLimitWindow{Count: global.Count, Remaining: global.Remaining, ResetTime: global.ResetTime},
	}
}

func (f *IntegrationAdminFlowImpl) ClearRateLimit(userID string) {
	f.limits.ClearUser(userID)
	f.logger.Printf("rate limit of user %s cleared by operator", userID)
}

func (f *IntegrationAdminFlowImpl) ValidateConfig(ctx context.Context, req *dto.ValidateConfigRequest) *dto.ValidateConfigResponse {
	return f.delivery.ValidateConfig(ctx, req)
}

func (f *IntegrationAdminFlowImpl) GetConfig(ctx context.Context) (*dto.APIConfigResponse, error) {
	cfg, err := f.configs.Active(ctx)
	if err != nil {
		return nil, NewBusinessError("CONFIG_LOOKUP_FAILED", "Failed to load integration config", err)
	}
	if cfg == nil {
		return nil, NewBusinessError("CONFIG_NOT_FOUND", "Integration config not found", ErrConfigNotFound)
	}
	resp := ToAPIConfigResponse(cfg)
	return &resp, nil
}

// SaveConfig stores a new configuration with sealed credentials. An active one replaces the current.
func (f *IntegrationAdminFlowImpl) SaveConfig(ctx context.Context, req *dto.SaveConfigRequest) (*dto.APIConfigResponse, error) {
	if req == nil {
		return nil, NewBusinessError("CONFIG_INVALID", "Integration config is required", ErrConfigInvalid)
	}
	if errs := NewUserDataValidator().ValidateConfig(&req.ValidateConfigRequest); len(errs) > 0 {
		return nil, NewBusinessError("CONFIG_INVALID", strings.Join(errs, "; "), ErrConfigInvalid)
	}

	cfg := configFromRequest(&req.ValidateConfigRequest)
	cfg.IsActive = req.IsActive
	sealed, err := f.sealer.Encrypt(cfg.AuthType, cfg.Credentials)
	if err != nil {
		return nil, NewBusinessError("CREDENTIALS_ENCRYPTION_FAILED", "Failed to encrypt credentials", err)
	}
	cfg.EncryptedCredentials = sealed

	err = f.inTx(ctx, func(txCtx context.Context) error {
		if cfg.IsActive {
			if _, err := f.configRepo.DeactivateAll(txCtx); err != nil {
				return err
			}
		}
		return f.configRepo.Save(txCtx, cfg)
	})
	if err != nil {
		return nil, NewBusinessError("CONFIG_SAVE_FAILED", "Failed to save integration config", err)
	}
	f.configs.Invalidate()
	f.logger.Printf("integration config %s saved (active=%t, sandbox=%t)", cfg.ID, cfg.IsActive, cfg.IsSandbox)

	resp := ToAPIConfigResponse(cfg)
	return &resp, nil
}

func (f *IntegrationAdminFlowImpl) inTx(ctx context.Context, fn func(context.Context) error) error {
	if f.db == nil {
		return fn(ctx)
	}
	return repository.WithTransaction(ctx, f.db, fn)
}

func logFilterFromRequest(req *dto.ListDeliveryLogsRequest) (models.DeliveryLogFilter, int, int, error) {
	var filter models.DeliveryLogFilter
	page, pageSize := 1, defaultLogsPageSize
	if req == nil {
		return filter, page, pageSize, nil
	}

	if req.Page < 0 {
		return filter, 0, 0, NewBusinessError("INVALID_PAGE", "Page must be positive", ErrInvalidPage)
	}
	if req.Page > 0 {
		page = req.Page
	}
	if req.PageSize < 0 || req.PageSize > 500 {
		return filter, 0, 0, NewBusinessError("INVALID_PAGE_SIZE", "Page size must be between 1 and 500", ErrInvalidPageSize)
	}
	if req.PageSize > 0 {
		pageSize = req.PageSize
	}
	if req.CreatedAfter != nil && req.CreatedBefore != nil && req.CreatedAfter.After(*req.CreatedBefore) {
		return filter, 0, 0, NewBusinessError("INVALID_DATE_RANGE", "created_after must not be after created_before", ErrStartDateAfterEndDate)
	}

	if req.UserID != "" {
		filter.UserID = &req.UserID
	}
	if req.Status != "" {
		status := models.DeliveryStatus(req.Status)
		filter.Status = &status
	}
	filter.CreatedAfter = utils.TimeToUTCPtr(req.CreatedAfter)
	filter.CreatedBefore = utils.TimeToUTCPtr(req.CreatedBefore)
	return filter, page, pageSize, nil
}

// ToAPIConfigResponse hides the credentials of cfg
func ToAPIConfigResponse(cfg *models.APIConfig) dto.APIConfigResponse {
	return dto.APIConfigResponse{
		ID:              cfg.ID,
		Endpoint:        cfg.Endpoint,
		SandboxEndpoint: cfg.SandboxEndpoint,
		Method:          cfg.Method,
		AuthType:        string(cfg.AuthType),
		IsSandbox:       cfg.IsSandbox,
		RetryAttempts:   cfg.RetryAttempts,
		RetryDelayMs:    cfg.RetryDelayMs,
		IsActive:        cfg.IsActive,
		HasCredentials:  cfg.EncryptedCredentials != "" || cfg.HasCredentials(),
		UpdatedAt:       cfg.UpdatedAt.UTC().Truncate(time.Second),
	}
}
