package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

func createTestTokenService(t *testing.T) *TokenServiceImpl {
	t.Helper()
	svc, err := NewTokenService(15*time.Minute, 7*24*time.Hour, "test-issuer", "test-audience", false, "", "", testSecret)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		secretKey   string
		expectError bool
	}{
		{name: "symmetric key", secretKey: testSecret},
		{name: "missing secret key", expectError: true},
		{name: "rsa without keys", useRSAKeys: true, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewTokenService(time.Minute, time.Hour, "iss", "aud", tt.useRSAKeys, "", "", tt.secretKey)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestGenerateAndValidateAdminTokens(t *testing.T) {
	svc := createTestTokenService(t)

	access, refresh, err := svc.GenerateAdminTokens("operator")
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	claims, err := svc.ValidateAdminToken(access)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, tokenTypeAccess, claims.TokenType)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, claims.IssuedAt.Add(15*time.Minute), claims.ExpiresAt, time.Second)

	refreshClaims, err := svc.ValidateAdminToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, tokenTypeRefresh, refreshClaims.TokenType)
}

func TestValidateAdminToken_Rejections(t *testing.T) {
	svc := createTestTokenService(t)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateAdminToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewTokenService(time.Minute, time.Hour, "test-issuer", "test-audience", false, "", "", "another-secret-key-with-32-characters")
		require.NoError(t, err)
		token, _, err := other.GenerateAdminTokens("operator")
		require.NoError(t, err)
		_, err = svc.ValidateAdminToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := NewTokenService(time.Minute, time.Hour, "test-issuer", "someone-else", false, "", "", testSecret)
		require.NoError(t, err)
		token, _, err := other.GenerateAdminTokens("operator")
		require.NoError(t, err)
		_, err = svc.ValidateAdminToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		claims := adminClaims{
			Username:  "operator",
			TokenType: tokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "expired-id",
				Issuer:    "test-issuer",
				Audience:  jwt.ClaimStrings{"test-audience"},
				IssuedAt:  jwt.NewNumericDate(past),
				ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = svc.ValidateAdminToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"username": "operator"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.ValidateAdminToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestRefreshAdminToken(t *testing.T) {
	svc := createTestTokenService(t)
	access, refresh, err := svc.GenerateAdminTokens("operator")
	require.NoError(t, err)

	_, _, err = svc.RefreshAdminToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	newAccess, newRefresh, err := svc.RefreshAdminToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEqual(t, refresh, newRefresh)

	_, _, err = svc.RefreshAdminToken(refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokeToken(t *testing.T) {
	svc := createTestTokenService(t)
	access, _, err := svc.GenerateAdminTokens("operator")
	require.NoError(t, err)

	claims, err := svc.ValidateAdminToken(access)
	require.NoError(t, err)
	assert.False(t, svc.IsTokenRevoked(claims.TokenID))

	require.NoError(t, svc.RevokeToken(access))
	assert.True(t, svc.IsTokenRevoked(claims.TokenID))

	_, err = svc.ValidateAdminToken(access)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	assert.NoError(t, svc.RevokeToken(access), "revoking twice is fine")
	assert.Error(t, svc.RevokeToken("garbage"))
}

func TestRSATokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	svc, err := NewTokenService(time.Minute, time.Hour, "iss", "aud", true, string(privPEM), string(pubPEM), "")
	require.NoError(t, err)

	access, _, err := svc.GenerateAdminTokens("operator")
	require.NoError(t, err)
	claims, err := svc.ValidateAdminToken(access)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)

	hmacSvc, err := NewTokenService(time.Minute, time.Hour, "iss", "aud", false, "", "", testSecret)
	require.NoError(t, err)
	_, err = hmacSvc.ValidateAdminToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
