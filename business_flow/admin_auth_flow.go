package businessflow

import (
	"context"
	"crypto/subtle"
	"log"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/services"
	"github.com/coracaovalente/instituto-integration/utils"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthFlow represents the operator authentication flow used by handlers
type AdminAuthFlow interface {
	Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error)
	Refresh(ctx context.Context, req *dto.AdminRefreshRequest) (*dto.AdminLoginResponse, error)
	Logout(ctx context.Context, accessToken string) error
}

// AdminAuthFlowImpl checks the configured operator account and issues admin tokens
type AdminAuthFlowImpl struct {
	username     string
	passwordHash []byte
	tokenService services.TokenService
	accessTTL    time.Duration
	logger       *log.Logger
}

func NewAdminAuthFlow(username, passwordHash string, tokenService services.TokenService, accessTTL time.Duration, logger *log.Logger) AdminAuthFlow {
	if accessTTL <= 0 {
		accessTTL = utils.AccessTokenTTL
	}
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &AdminAuthFlowImpl{
		username:     username,
		passwordHash: []byte(passwordHash),
		tokenService: tokenService,
		accessTTL:    accessTTL,
		logger:       logger,
	}
}

func (af *AdminAuthFlowImpl) Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error) {
	// Validate request
	if req == nil {
		return nil, NewBusinessError("ADMIN_LOGIN_VALIDATION_FAILED", "Admin login validation failed", ErrAdminNotFound)
	}
	if len(req.Username) == 0 || len(req.Password) == 0 {
		return nil, NewBusinessError("ADMIN_LOGIN_VALIDATION_FAILED", "Admin login validation failed", ErrIncorrectPassword)
	}

	// Lookup admin
	if af.username == "" || subtle.ConstantTimeCompare([]byte(req.Username), []byte(af.username)) != 1 {
		return nil, NewBusinessError("ADMIN_NOT_FOUND", "Admin not found", ErrAdminNotFound)
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword(af.passwordHash, []byte(req.Password)); err != nil {
		if metadata != nil {
			af.logger.Printf("admin login rejected from %s (request %s)", metadata.IPAddress, metadata.RequestID)
		}
		return nil, NewBusinessError("ADMIN_INCORRECT_PASSWORD", "Incorrect password", ErrIncorrectPassword)
	}

	// Generate admin tokens
	accessToken, refreshToken, err := af.tokenService.GenerateAdminTokens(af.username)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}

	if metadata != nil {
		af.logger.Printf("admin %s logged in from %s", af.username, metadata.IPAddress)
	}
	return af.response(accessToken, refreshToken), nil
}

func (af *AdminAuthFlowImpl) Refresh(ctx context.Context, req *dto.AdminRefreshRequest) (*dto.AdminLoginResponse, error) {
	if req == nil || req.RefreshToken == "" {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Refresh token is required", ErrInvalidToken)
	}
	accessToken, refreshToken, err := af.tokenService.RefreshAdminToken(req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Refresh token is invalid", ErrInvalidToken)
	}
	return af.response(accessToken, refreshToken), nil
}

func (af *AdminAuthFlowImpl) Logout(ctx context.Context, accessToken string) error {
	if err := af.tokenService.RevokeToken(accessToken); err != nil {
		return NewBusinessError("LOGOUT_FAILED", "Failed to revoke token", ErrInvalidToken)
	}
	return nil
}

func (af *AdminAuthFlowImpl) response(accessToken, refreshToken string) *dto.AdminLoginResponse {
	return &dto.AdminLoginResponse{
		Admin: dto.AdminDTO{Username: af.username},
		Session: dto.AdminSessionDTO{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(af.accessTTL.Seconds()),
			TokenType:    "Bearer",
			CreatedAt:    utils.UTCNow().Format(time.RFC3339),
		},
	}
}
