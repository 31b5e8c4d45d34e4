package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAdminAuth(t *testing.T) (AdminAuthFlow, *services.TokenServiceImpl) {
	t.Helper()
	tokens, err := services.NewTokenService(time.Hour, 24*time.Hour, "instituto-integration", "operators", false, "", "", "a-test-secret-that-is-long-enough-123")
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAdminAuthFlow("operator", string(hash), tokens, time.Hour, nil), tokens
}

func TestAdminAuthFlow_Login(t *testing.T) {
	flow, tokens := newTestAdminAuth(t)
	ctx := context.Background()
	meta := NewClientMetadata("10.0.0.1", "test")

	resp, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "operator", Password: "correct-horse"}, meta)
	require.NoError(t, err)
	assert.Equal(t, "operator", resp.Admin.Username)
	assert.Equal(t, "Bearer", resp.Session.TokenType)
	assert.Equal(t, 3600, resp.Session.ExpiresIn)

	claims, err := tokens.ValidateAdminToken(resp.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)

	_, err = flow.Login(ctx, &dto.AdminLoginRequest{Username: "someone", Password: "correct-horse"}, meta)
	assert.True(t, IsAdminNotFound(err))

	_, err = flow.Login(ctx, &dto.AdminLoginRequest{Username: "operator", Password: "wrong-password"}, meta)
	assert.True(t, IsIncorrectPassword(err))

	_, err = flow.Login(ctx, &dto.AdminLoginRequest{Username: "operator"}, meta)
	assert.Error(t, err)
}

func TestAdminAuthFlow_RefreshAndLogout(t *testing.T) {
	flow, tokens := newTestAdminAuth(t)
	ctx := context.Background()

	login, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "operator", Password: "correct-horse"}, nil)
	require.NoError(t, err)

	_, err = flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: login.Session.AccessToken})
	assert.True(t, IsInvalidToken(err))

	refreshed, err := flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: login.Session.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.Session.RefreshToken, refreshed.Session.RefreshToken)

	_, err = flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: login.Session.RefreshToken})
	assert.True(t, IsInvalidToken(err), "rotated refresh token must not be reusable")

	require.NoError(t, flow.Logout(ctx, refreshed.Session.AccessToken))
	_, err = tokens.ValidateAdminToken(refreshed.Session.AccessToken)
	assert.ErrorIs(t, err, services.ErrTokenRevoked)

	assert.True(t, IsInvalidToken(flow.Logout(ctx, "garbage")))
}
