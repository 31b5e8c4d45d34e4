package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/ratelimit"
	"github.com/coracaovalente/instituto-integration/app/services"
	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/repository"
	"github.com/coracaovalente/instituto-integration/utils"
	"github.com/google/uuid"
)

const (
	msgUserRateLimited   = "Limite de tentativas excedido. Tente novamente em %s"
	msgGlobalRateLimited = "Limite global de API excedido. Tente novamente mais tarde"
	msgConfigNotFound    = "Configuração da integração não encontrada"
	msgConfigInactive    = "Integração está desativada"
	msgUnexpected        = "Erro inesperado: %v"
	msgHealthCheckFailed = "Falha no teste de conectividade: %s"
)

// DeliveryLimiter is the admission control applied around partner calls
type DeliveryLimiter interface {
	CanSendUserData(ctx context.Context, userID string) ratelimit.Decision
	CanMakeAPICall(ctx context.Context) ratelimit.Decision
	RecordUserDataSend(userID string, success bool)
	RecordAPICall(success bool)
}

// RetryEnqueuer schedules a later redelivery of a log
type RetryEnqueuer interface {
	AddToQueue(ctx context.Context, logID uuid.UUID, delaySeconds, maxAttempts int) *uuid.UUID
}

// IntegrationFlow forwards user registrations to the partner API
type IntegrationFlow interface {
	SendUserData(ctx context.Context, userID string, data models.InstitutoUserData) (*dto.IntegrationResult, error)
	RetryDelivery(ctx context.Context, deliveryLog *models.DeliveryLog) (*dto.IntegrationResult, error)
	ValidateConfig(ctx context.Context, req *dto.ValidateConfigRequest) *dto.ValidateConfigResponse
	GetStats(ctx context.Context) *dto.IntegrationStatsResponse
}

// IntegrationFlowImpl implements IntegrationFlow
type IntegrationFlowImpl struct {
	limiter   DeliveryLimiter
	logRepo   repository.DeliveryLogRepository
	configs   ConfigProvider
	client    services.InstitutoClient
	enqueuer  RetryEnqueuer
	validator *UserDataValidator
	logger    *log.Logger
	now       func() time.Time
}

func NewIntegrationFlow(
	limiter DeliveryLimiter,
	logRepo repository.DeliveryLogRepository,
	configs ConfigProvider,
	client services.InstitutoClient,
	logger *log.Logger,
) *IntegrationFlowImpl {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &IntegrationFlowImpl{
		limiter:   limiter,
		logRepo:   logRepo,
		configs:   configs,
		client:    client,
		validator: NewUserDataValidator(),
		logger:    logger,
		now:       utils.UTCNow,
	}
}

// SetEnqueuer wires the retry queue. The queue also depends on the flow, so it is set after both exist.
func (f *IntegrationFlowImpl) SetEnqueuer(enqueuer RetryEnqueuer) {
	f.enqueuer = enqueuer
}

// SendUserData runs admission, validation and delivery for one registration.
// Domain failures come back as an unsuccessful result; the error is reserved for infrastructure faults.
func (f *IntegrationFlowImpl) SendUserData(ctx context.Context, userID string, data models.InstitutoUserData) (*dto.IntegrationResult, error) {
	now := f.now()

	userDecision := f.limiter.CanSendUserData(ctx, userID)
	if !userDecision.Allowed {
		reset := userDecision.ResetTime
		if reset.IsZero() {
			reset = now.Add(5 * time.Minute)
		}
		res := failureResult(NewIntegrationError(KindRateLimit, fmt.Sprintf(msgUserRateLimited, utils.FormatClock(reset)), false, ErrUserRateLimited), nil)
		res.ResetTime = &reset
		deliveriesTotal.WithLabelValues(pathSend, "denied", string(KindRateLimit)).Inc()
		return res, nil
	}

	if apiDecision := f.limiter.CanMakeAPICall(ctx); !apiDecision.Allowed {
		deliveriesTotal.WithLabelValues(pathSend, "denied", string(KindRateLimit)).Inc()
		return failureResult(NewIntegrationError(KindRateLimit, msgGlobalRateLimited, true, ErrGlobalRateLimited), nil), nil
	}

	sanitized, err := SanitizeUserData(data)
	if err == nil {
		err = f.validator.ValidateUserData(&sanitized)
	}
	if err != nil {
		ie, _ := AsIntegrationError(err)
		deliveriesTotal.WithLabelValues(pathSend, "rejected", string(ie.Kind)).Inc()
		return failureResult(ie, nil), nil
	}

	cfg, err := f.activeConfig(ctx)
	if err != nil {
		if ie, ok := AsIntegrationError(err); ok {
			deliveriesTotal.WithLabelValues(pathSend, "rejected", string(ie.Kind)).Inc()
			return failureResult(ie, nil), nil
		}
		return nil, NewBusinessError("CONFIG_LOOKUP_FAILED", "Failed to load integration config", err)
	}

	deliveryLog := &models.DeliveryLog{
		UserID:       userID,
		Status:       models.DeliveryStatusPending,
		Payload:      models.NewUserDataPayload(sanitized),
		AttemptCount: 1,
	}
	if err := f.logRepo.Save(ctx, deliveryLog); err != nil {
		return nil, NewBusinessError("DELIVERY_LOG_CREATE_FAILED", "Failed to create delivery log", err)
	}
	logID := deliveryLog.ID

	response, sendErr := f.send(ctx, pathSend, cfg, deliveryLog.Payload)

	// Outcome bookkeeping must survive a caller that went away mid-call
	persistCtx := context.WithoutCancel(ctx)

	if sendErr == nil {
		f.limiter.RecordUserDataSend(userID, true)
		f.limiter.RecordAPICall(true)
		f.updateLog(persistCtx, logID, models.DeliveryLogUpdate{Status: models.DeliveryStatusSuccess, Response: response})
		f.logger.Printf("delivery %s for user %s succeeded %v", logID, userID, MaskUserData(&sanitized))
		deliveriesTotal.WithLabelValues(pathSend, "success", "").Inc()
		return &dto.IntegrationResult{Success: true, Data: response, LogID: &logID}, nil
	}

	ie := f.classify(sendErr)
	f.limiter.RecordUserDataSend(userID, false)
	f.limiter.RecordAPICall(false)

	status := models.DeliveryStatusFailed
	if ie.Retryable {
		status = models.DeliveryStatusRetry
	}
	f.updateLog(persistCtx, logID, models.DeliveryLogUpdate{Status: status, ErrorMessage: &ie.Message})
	f.logger.Printf("delivery %s for user %s failed (%s): %s", logID, userID, ie.Kind, ie.Message)
	deliveriesTotal.WithLabelValues(pathSend, "failure", string(ie.Kind)).Inc()

	if ie.Retryable {
		f.scheduleRetry(persistCtx, logID, cfg)
	}

	return failureResult(ie, &logID), nil
}

// RetryDelivery redelivers an existing log for the retry queue. Only the global limiter applies
// and the log stays in retry on failure; abandoning it is the queue's decision.
func (f *IntegrationFlowImpl) RetryDelivery(ctx context.Context, deliveryLog *models.DeliveryLog) (*dto.IntegrationResult, error) {
	if deliveryLog == nil {
		return nil, ErrDeliveryLogNotFound
	}
	logID := deliveryLog.ID

	if err := deliveryLog.Payload.Validate(); err != nil {
		ie := NewIntegrationError(KindValidationError, "Dados inválidos: "+err.Error(), false, errors.Join(ErrInvalidUserData, err))
		return failureResult(ie, &logID), nil
	}

	settled := NewIntegrationError(KindValidationError, "Entrega já finalizada", false, ErrInvalidStatusTransition)
	if deliveryLog.Status.IsTerminal() {
		return failureResult(settled, &logID), nil
	}

	// a denied retry must leave the attempt count and status untouched
	if d := f.limiter.CanMakeAPICall(ctx); !d.Allowed {
		deliveriesTotal.WithLabelValues(pathRetry, "denied", string(KindRateLimit)).Inc()
		return failureResult(NewIntegrationError(KindRateLimit, msgGlobalRateLimited, true, ErrGlobalRateLimited), &logID), nil
	}

	moved, err := f.logRepo.MarkRetry(ctx, logID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to mark delivery %s for retry: %w", logID, err)
	}
	if !moved {
		return failureResult(settled, &logID), nil
	}

	cfg, err := f.activeConfig(ctx)
	if err != nil {
		if ie, ok := AsIntegrationError(err); ok {
			f.updateLog(ctx, logID, models.DeliveryLogUpdate{Status: models.DeliveryStatusRetry, ErrorMessage: &ie.Message})
			return failureResult(ie, &logID), nil
		}
		return nil, err
	}

	response, sendErr := f.send(ctx, pathRetry, cfg, deliveryLog.Payload)
	persistCtx := context.WithoutCancel(ctx)

	if sendErr == nil {
		f.limiter.RecordAPICall(true)
		f.updateLog(persistCtx, logID, models.DeliveryLogUpdate{Status: models.DeliveryStatusSuccess, Response: response})
		deliveriesTotal.WithLabelValues(pathRetry, "success", "").Inc()
		return &dto.IntegrationResult{Success: true, Data: response, LogID: &logID}, nil
	}

	ie := f.classify(sendErr)
	f.limiter.RecordAPICall(false)
	f.updateLog(persistCtx, logID, models.DeliveryLogUpdate{Status: models.DeliveryStatusRetry, ErrorMessage: &ie.Message})
	deliveriesTotal.WithLabelValues(pathRetry, "failure", string(ie.Kind)).Inc()
	return failureResult(ie, &logID), nil
}

// ValidateConfig checks the candidate configuration and then calls its health endpoint
func (f *IntegrationFlowImpl) ValidateConfig(ctx context.Context, req *dto.ValidateConfigRequest) *dto.ValidateConfigResponse {
	if req == nil {
		return &dto.ValidateConfigResponse{Valid: false, Errors: []string{"Configuração ausente"}}
	}
	if errs := f.validator.ValidateConfig(req); len(errs) > 0 {
		return &dto.ValidateConfigResponse{Valid: false, Errors: errs}
	}

	cfg := configFromRequest(req)
	if err := f.client.HealthCheck(ctx, cfg); err != nil {
		f.logger.Printf("config validation: health check of %s failed: %v", cfg.HealthEndpoint(), err)
		msg := err.Error()
		var apiErr *services.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		return &dto.ValidateConfigResponse{Valid: false, Errors: []string{fmt.Sprintf(msgHealthCheckFailed, msg)}}
	}
	return &dto.ValidateConfigResponse{Valid: true}
}

// GetStats aggregates delivery logs; a failed query yields zeroed stats
func (f *IntegrationFlowImpl) GetStats(ctx context.Context) *dto.IntegrationStatsResponse {
	stats, err := f.logRepo.Stats(ctx, f.now())
	if err != nil || stats == nil {
		if err != nil {
			f.logger.Printf("stats: query failed: %v", err)
		}
		return &dto.IntegrationStatsResponse{}
	}
	return &dto.IntegrationStatsResponse{
		TotalAttempts:      stats.TotalAttempts,
		SuccessfulSends:    stats.SuccessfulSends,
		FailedSends:        stats.FailedSends,
		PendingRetries:     stats.PendingRetries,
		SuccessRate:        stats.SuccessRate,
		Last24hAttempts:    stats.Last24hAttempts,
		Last24hSuccessRate: stats.Last24hSuccessRate,
	}
}

func (f *IntegrationFlowImpl) activeConfig(ctx context.Context) (*models.APIConfig, error) {
	cfg, err := f.configs.Active(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, NewIntegrationError(KindConfigError, msgConfigNotFound, false, ErrConfigNotFound)
	}
	if !cfg.IsActive {
		return nil, NewIntegrationError(KindConfigError, msgConfigInactive, false, ErrIntegrationInactive)
	}
	return cfg, nil
}

func (f *IntegrationFlowImpl) send(ctx context.Context, path string, cfg *models.APIConfig, payload models.Payload) (json.RawMessage, error) {
	start := time.Now()
	defer func() { deliveryDuration.WithLabelValues(path).Observe(time.Since(start).Seconds()) }()
	return f.client.Send(ctx, cfg, payload)
}

// classify turns a client failure into an IntegrationError
func (f *IntegrationFlowImpl) classify(err error) *IntegrationError {
	if ie, ok := AsIntegrationError(err); ok {
		return ie
	}
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 0 {
			return &IntegrationError{Kind: KindNetworkError, Message: apiErr.Message, Retryable: true, Err: err}
		}
		kind, retryable := ClassifyHTTPStatus(apiErr.StatusCode)
		return &IntegrationError{Kind: kind, Message: apiErr.Message, Retryable: retryable, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &IntegrationError{Kind: KindServerError, Message: fmt.Sprintf(msgUnexpected, err), Retryable: true, Err: err}
}

func (f *IntegrationFlowImpl) updateLog(ctx context.Context, logID uuid.UUID, upd models.DeliveryLogUpdate) {
	ok, err := f.logRepo.UpdateStatus(ctx, logID, upd)
	if err != nil {
		f.logger.Printf("delivery %s: failed to record %s: %v", logID, upd.Status, err)
		return
	}
	if !ok {
		f.logger.Printf("delivery %s: status %s not applied", logID, upd.Status)
	}
}

func (f *IntegrationFlowImpl) scheduleRetry(ctx context.Context, logID uuid.UUID, cfg *models.APIConfig) {
	if f.enqueuer == nil {
		f.logger.Printf("delivery %s: retry queue not configured", logID)
		return
	}
	delaySeconds := int(cfg.RetryDelay() / time.Second)
	maxAttempts := cfg.RetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = utils.DefaultQueueMaxAttempts
	}
	if jobID := f.enqueuer.AddToQueue(ctx, logID, delaySeconds, maxAttempts); jobID == nil {
		f.logger.Printf("delivery %s: %v", logID, ErrEnqueueFailed)
	}
}

func failureResult(ie *IntegrationError, logID *uuid.UUID) *dto.IntegrationResult {
	return &dto.IntegrationResult{
		Success:   false,
		Error:     ie.Message,
		ErrorKind: string(ie.Kind),
		Retryable: ie.Retryable,
		LogID:     logID,
	}
}

func configFromRequest(req *dto.ValidateConfigRequest) *models.APIConfig {
	cfg := &models.APIConfig{
		Endpoint:        req.Endpoint,
		SandboxEndpoint: req.SandboxEndpoint,
		Method:          req.Method,
		AuthType:        models.AuthType(req.AuthType),
		IsSandbox:       req.IsSandbox,
		RetryAttempts:   req.RetryAttempts,
		RetryDelayMs:    req.RetryDelayMs,
		Credentials: models.Credentials{
			APIKey:        req.APIKey,
			BearerToken:   req.BearerToken,
			BasicUsername: req.BasicUsername,
			BasicPassword: req.BasicPassword,
		},
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = utils.DefaultQueueMaxAttempts
	}
	if cfg.RetryDelayMs == 0 {
		cfg.RetryDelayMs = 5000
	}
	return cfg
}
