package handlers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	businessflow "github.com/coracaovalente/instituto-integration/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// IntegrationAdminHandlerInterface defines the operator endpoints of the integration
type IntegrationAdminHandlerInterface interface {
	QueueStats(c fiber.Ctx) error
	Enqueue(c fiber.Ctx) error
	RemoveJob(c fiber.Ctx) error
	ProcessQueue(c fiber.Ctx) error
	CleanupQueue(c fiber.Ctx) error
	Stats(c fiber.Ctx) error
	ListLogs(c fiber.Ctx) error
	ExportLogs(c fiber.Ctx) error
	RateLimitStatus(c fiber.Ctx) error
	ClearRateLimit(c fiber.Ctx) error
	ValidateConfig(c fiber.Ctx) error
	GetConfig(c fiber.Ctx) error
	SaveConfig(c fiber.Ctx) error
}

// IntegrationAdminHandler implements IntegrationAdminHandlerInterface
type IntegrationAdminHandler struct {
	baseHandler
	flow businessflow.IntegrationAdminFlow
}

func NewIntegrationAdminHandler(flow businessflow.IntegrationAdminFlow) IntegrationAdminHandlerInterface {
	return &IntegrationAdminHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
	}
}

// QueueStats
// @Summary Retry queue statistics
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.QueueStatsResponse}
// @Router /api/v1/admin/integration/queue/stats [get]
func (h *IntegrationAdminHandler) QueueStats(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/queue/stats")
	defer cancel()
	return h.SuccessResponse(c, fiber.StatusOK, "Queue statistics retrieved", h.flow.QueueStats(ctx))
}

// Enqueue schedules a retry for an existing delivery log
// @Summary Enqueue delivery retry
// @Tags Admin Integration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.EnqueueRequest true "Delivery log and schedule"
// @Success 201 {object} dto.APIResponse{data=dto.EnqueueResponse}
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 404 {object} dto.APIResponse "Delivery log not found"
// @Failure 409 {object} dto.APIResponse "Delivery already settled"
// @Failure 500 {object} dto.APIResponse "Failed to enqueue"
// @Router /api/v1/admin/integration/queue [post]
func (h *IntegrationAdminHandler) Enqueue(c fiber.Ctx) error {
	var req dto.EnqueueRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/queue")
	defer cancel()

	resp, err := h.flow.Enqueue(ctx, &req)
	if err != nil {
		switch {
		case businessflow.IsDeliveryLogNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Delivery log not found", "DELIVERY_LOG_NOT_FOUND", nil)
		case businessflow.IsInvalidStatusTransition(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Delivery log is already settled", "DELIVERY_ALREADY_SETTLED", nil)
		}
		log.Println("Enqueue failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enqueue delivery", "ENQUEUE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Delivery enqueued", resp)
}

// RemoveJob deletes a queued retry
// @Summary Remove queued retry
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Param id path string true "Queue job ID"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse "Invalid job ID"
// @Failure 404 {object} dto.APIResponse "Job not found"
// @Router /api/v1/admin/integration/queue/{id} [delete]
func (h *IntegrationAdminHandler) RemoveJob(c fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid job ID", "INVALID_JOB_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/queue/:id")
	defer cancel()

	if err := h.flow.RemoveJob(ctx, jobID); err != nil {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Queue job not found", "QUEUE_JOB_NOT_FOUND", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue job removed", fiber.Map{"job_id": jobID})
}

// ProcessQueue triggers one poll pass
// @Summary Process retry queue now
// @Description Runs one pass synchronously; a pass already in progress makes this a no-op
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.QueueStatsResponse}
// @Router /api/v1/admin/integration/queue/process [post]
func (h *IntegrationAdminHandler) ProcessQueue(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/queue/process")
	defer cancel()

	h.flow.ProcessQueue(ctx)
	return h.SuccessResponse(c, fiber.StatusOK, "Queue processed", h.flow.QueueStats(ctx))
}

// CleanupQueue purges old queue entries
// @Summary Cleanup retry queue
// @Tags Admin Integration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CleanupQueueRequest false "Age threshold"
// @Success 200 {object} dto.APIResponse{data=dto.CleanupQueueResponse}
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Router /api/v1/admin/integration/queue/cleanup [post]
func (h *IntegrationAdminHandler) CleanupQueue(c fiber.Ctx) error {
	var req dto.CleanupQueueRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
		if ok, err := h.validate(c, &req); !ok {
			return err
		}
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/queue/cleanup")
	defer cancel()

	return h.SuccessResponse(c, fiber.StatusOK, "Queue cleaned up", h.flow.CleanupQueue(ctx, &req))
}

// Stats
// @Summary Delivery statistics
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.IntegrationStatsResponse}
// @Router /api/v1/admin/integration/stats [get]
func (h *IntegrationAdminHandler) Stats(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/stats")
	defer cancel()
	return h.SuccessResponse(c, fiber.StatusOK, "Integration statistics retrieved", h.flow.Stats(ctx))
}

// ListLogs
// @Summary List delivery logs
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "User ID"
// @Param status query string false "pending|retry|success|failed"
// @Param created_after query string false "RFC3339 lower bound"
// @Param created_before query string false "RFC3339 upper bound"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 50, max 500)"
// @Success 200 {object} dto.APIResponse{data=dto.ListDeliveryLogsResponse}
// @Failure 400 {object} dto.APIResponse "Invalid filter"
// @Router /api/v1/admin/integration/logs [get]
func (h *IntegrationAdminHandler) ListLogs(c fiber.Ctx) error {
	req, err := parseLogsQuery(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_QUERY", err.Error())
	}
	if ok, err := h.validate(c, req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/logs")
	defer cancel()

	resp, err := h.flow.ListLogs(ctx, req)
	if err != nil {
		if code, ok := filterErrorCode(err); ok {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", code, nil)
		}
		log.Println("List delivery logs failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list delivery logs", "DELIVERY_LOGS_FETCH_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Delivery logs retrieved", resp)
}

// ExportLogs
// @Summary Export delivery logs
// @Description Download the filtered delivery logs as an XLSX workbook with masked personal data
// @Tags Admin Integration
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param user_id query string false "User ID"
// @Param status query string false "pending|retry|success|failed"
// @Param created_after query string false "RFC3339 lower bound"
// @Param created_before query string false "RFC3339 upper bound"
// @Success 200 {file} file
// @Failure 400 {object} dto.APIResponse "Invalid filter"
// @Router /api/v1/admin/integration/logs/export [get]
func (h *IntegrationAdminHandler) ExportLogs(c fiber.Ctx) error {
	req, err := parseLogsQuery(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_QUERY", err.Error())
	}
	if ok, err := h.validate(c, req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/logs/export")
	defer cancel()

	filename, data, err := h.flow.ExportLogs(ctx, req)
	if err != nil {
		if code, ok := filterErrorCode(err); ok {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", code, nil)
		}
		log.Println("Export delivery logs failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export delivery logs", "EXCEL_WRITE_ERROR", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// RateLimitStatus
// @Summary Rate limit status of a user
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} dto.APIResponse{data=dto.RateLimitStatusResponse}
// @Router /api/v1/admin/integration/rate-limit/{userId} [get]
func (h *IntegrationAdminHandler) RateLimitStatus(c fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "User ID is required", "USER_ID_REQUIRED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate limit status retrieved", h.flow.RateLimitStatus(userID))
}

// ClearRateLimit
// @Summary Clear the rate limit of a user
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} dto.APIResponse
// @Router /api/v1/admin/integration/rate-limit/{userId} [delete]
func (h *IntegrationAdminHandler) ClearRateLimit(c fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "User ID is required", "USER_ID_REQUIRED", nil)
	}
	h.flow.ClearRateLimit(userID)
	return h.SuccessResponse(c, fiber.StatusOK, "Rate limit cleared", fiber.Map{"user_id": userID})
}

// ValidateConfig
// @Summary Validate a partner configuration
// @Description Checks the fields and calls {endpoint}/health
// @Tags Admin Integration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ValidateConfigRequest true "Candidate configuration"
// @Success 200 {object} dto.APIResponse{data=dto.ValidateConfigResponse}
// @Failure 400 {object} dto.APIResponse "Invalid request body"
// @Router /api/v1/admin/integration/config/validate [post]
func (h *IntegrationAdminHandler) ValidateConfig(c fiber.Ctx) error {
	var req dto.ValidateConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/config/validate")
	defer cancel()

	return h.SuccessResponse(c, fiber.StatusOK, "Configuration checked", h.flow.ValidateConfig(ctx, &req))
}

// GetConfig
// @Summary Active partner configuration
// @Tags Admin Integration
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.APIConfigResponse}
// @Failure 404 {object} dto.APIResponse "No active configuration"
// @Router /api/v1/admin/integration/config [get]
func (h *IntegrationAdminHandler) GetConfig(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/config")
	defer cancel()

	resp, err := h.flow.GetConfig(ctx)
	if err != nil {
		if businessflow.IsConfigNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Integration config not found", "CONFIG_NOT_FOUND", nil)
		}
		log.Println("Get integration config failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load integration config", "CONFIG_LOOKUP_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Integration config retrieved", resp)
}

// SaveConfig
// @Summary Store a partner configuration
// @Description Credentials are encrypted at rest; an active configuration replaces the current one
// @Tags Admin Integration
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SaveConfigRequest true "Configuration"
// @Success 201 {object} dto.APIResponse{data=dto.APIConfigResponse}
// @Failure 400 {object} dto.APIResponse "Invalid configuration"
// @Failure 500 {object} dto.APIResponse "Failed to save"
// @Router /api/v1/admin/integration/config [put]
func (h *IntegrationAdminHandler) SaveConfig(c fiber.Ctx) error {
	var req dto.SaveConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/integration/config")
	defer cancel()

	resp, err := h.flow.SaveConfig(ctx, &req)
	if err != nil {
		if businessflow.IsConfigInvalid(err) {
			var be *businessflow.BusinessError
			details := err.Error()
			if errors.As(err, &be) {
				details = be.Message
			}
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid configuration", "CONFIG_INVALID", details)
		}
		log.Println("Save integration config failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save integration config", "CONFIG_SAVE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Integration config saved", resp)
}

func parseLogsQuery(c fiber.Ctx) (*dto.ListDeliveryLogsRequest, error) {
	req := &dto.ListDeliveryLogsRequest{
		UserID: c.Query("user_id"),
		Status: c.Query("status"),
	}
	var err error
	if req.CreatedAfter, err = parseTimeQuery(c.Query("created_after")); err != nil {
		return nil, err
	}
	if req.CreatedBefore, err = parseTimeQuery(c.Query("created_before")); err != nil {
		return nil, err
	}
	if v := c.Query("page"); v != "" {
		if req.Page, err = strconv.Atoi(v); err != nil {
			return nil, err
		}
	}
	if v := c.Query("page_size"); v != "" {
		if req.PageSize, err = strconv.Atoi(v); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func parseTimeQuery(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func filterErrorCode(err error) (string, bool) {
	switch {
	case businessflow.IsInvalidPage(err):
		return "INVALID_PAGE", true
	case businessflow.IsInvalidPageSize(err):
		return "INVALID_PAGE_SIZE", true
	case businessflow.IsStartDateAfterEndDate(err):
		return "INVALID_DATE_RANGE", true
	}
	return "", false
}
