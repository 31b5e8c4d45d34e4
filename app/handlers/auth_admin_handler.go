package handlers

import (
	"log"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/middleware"
	businessflow "github.com/coracaovalente/instituto-integration/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AdminHandlerInterface defines the contract for admin auth handlers
type AdminHandlerInterface interface {
	Login(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
}

// AdminHandler implements AdminHandlerInterface
type AdminHandler struct {
	baseHandler
	flow businessflow.AdminAuthFlow
}

func NewAdminHandler(flow businessflow.AdminAuthFlow) AdminHandlerInterface {
	return &AdminHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
	}
}

// Login authenticates the operator account
// @Summary Admin login
// @Description Authenticate the operator with username/password
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Param request body dto.AdminLoginRequest true "Admin login data"
// @Success 200 {object} dto.APIResponse{data=dto.AdminLoginResponse} "Login successful"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 401 {object} dto.APIResponse "Incorrect credentials or admin not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/auth/login [post]
func (h *AdminHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/auth/login")
	defer cancel()

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	result, err := h.flow.Login(ctx, &req, metadata)
	if err != nil {
		// Both cases answer alike so usernames cannot be enumerated
		if businessflow.IsAdminNotFound(err) || businessflow.IsIncorrectPassword(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", "INVALID_CREDENTIALS", nil)
		}
		log.Println("Admin login failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", "LOGIN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", result)
}

// Refresh rotates the operator session
// @Summary Admin token refresh
// @Description Exchange a refresh token for a new token pair; the old refresh token is revoked
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Param request body dto.AdminRefreshRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.AdminLoginResponse} "Token refreshed"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 401 {object} dto.APIResponse "Invalid refresh token"
// @Router /api/v1/admin/auth/refresh [post]
func (h *AdminHandler) Refresh(c fiber.Ctx) error {
	var req dto.AdminRefreshRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/auth/refresh")
	defer cancel()

	result, err := h.flow.Refresh(ctx, &req)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid refresh token", "INVALID_REFRESH_TOKEN", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Token refreshed", result)
}

// Logout revokes the presented access token
// @Summary Admin logout
// @Tags Admin Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse "Logged out"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/admin/auth/logout [post]
func (h *AdminHandler) Logout(c fiber.Ctx) error {
	token, ok := middleware.BearerToken(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Access token is required", "MISSING_ACCESS_TOKEN", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/auth/logout")
	defer cancel()

	if err := h.flow.Logout(ctx, token); err != nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid access token", "TOKEN_INVALID", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
}
