package handlers

import (
	"log"

	"github.com/coracaovalente/instituto-integration/app/adapters"
	"github.com/coracaovalente/instituto-integration/app/dto"
	businessflow "github.com/coracaovalente/instituto-integration/business_flow"
	"github.com/gofiber/fiber/v3"
)

// IntegrationHandlerInterface defines the public integration endpoints
type IntegrationHandlerInterface interface {
	SendUserData(c fiber.Ctx) error
}

// IntegrationHandler forwards registrations to the partner institute
type IntegrationHandler struct {
	baseHandler
	flow businessflow.IntegrationFlow
}

func NewIntegrationHandler(flow businessflow.IntegrationFlow) IntegrationHandlerInterface {
	return &IntegrationHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
	}
}

// SendUserData delivers a user's registration to the partner API
// @Summary Send user data
// @Description Forward a consented registration to the partner institute. Retryable failures are queued.
// @Tags Integration
// @Accept json
// @Produce json
// @Param request body dto.SendUserDataRequest true "User registration"
// @Success 200 {object} dto.APIResponse{data=dto.IntegrationResult} "Delivered"
// @Failure 400 {object} dto.APIResponse{data=dto.IntegrationResult} "Invalid payload or missing consent"
// @Failure 429 {object} dto.APIResponse{data=dto.IntegrationResult} "Rate limited"
// @Failure 502 {object} dto.APIResponse{data=dto.IntegrationResult} "Partner API failure"
// @Failure 503 {object} dto.APIResponse{data=dto.IntegrationResult} "Integration not configured"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/integration/send [post]
func (h *IntegrationHandler) SendUserData(c fiber.Ctx) error {
	var req dto.SendUserDataRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/integration/send")
	defer cancel()

	result, err := h.flow.SendUserData(ctx, req.UserID, adapters.UserDataFromRequest(req.UserData))
	if err != nil {
		log.Println("Integration send failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send user data", "INTEGRATION_SEND_FAILED", nil)
	}

	if result.Success {
		return h.SuccessResponse(c, fiber.StatusOK, "User data delivered", result)
	}
	return c.Status(resultStatus(result)).JSON(dto.APIResponse{
		Success: false,
		Message: result.Error,
		Data:    result,
		Error:   dto.ErrorDetail{Code: result.ErrorKind},
	})
}

func resultStatus(result *dto.IntegrationResult) int {
	switch businessflow.IntegrationErrorKind(result.ErrorKind) {
	case businessflow.KindValidationError, businessflow.KindConsentError:
		return fiber.StatusBadRequest
	case businessflow.KindRateLimit:
		return fiber.StatusTooManyRequests
	case businessflow.KindConfigError:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadGateway
	}
}
