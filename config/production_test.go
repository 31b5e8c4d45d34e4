package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	cfg := Load()
	cfg.Database.Password = "secret"
	cfg.JWT.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.Security.CredentialsEncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	cfg.Admin.PasswordHash = "$2a$10$abcdefghijklmnopqrstuu"
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Integration.PollInterval)
	assert.Equal(t, 10, cfg.Integration.BatchSize)
	assert.Equal(t, 3, cfg.Integration.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Integration.FallbackDelay)
	assert.Equal(t, 5*time.Second, cfg.Integration.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Integration.BackoffMax)
	assert.Equal(t, 5, cfg.RateLimit.UserMaxRequests)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.UserWindow)
	assert.Equal(t, 100, cfg.RateLimit.GlobalMaxRequests)
	assert.Equal(t, time.Hour, cfg.RateLimit.GlobalWindow)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INTEGRATION_POLL_INTERVAL", "5s")
	t.Setenv("INTEGRATION_BATCH_SIZE", "25")
	t.Setenv("INTEGRATION_MOCK_FAILURE_RATE", "0.25")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	assert.Equal(t, 5*time.Second, cfg.Integration.PollInterval)
	assert.Equal(t, 25, cfg.Integration.BatchSize)
	assert.InDelta(t, 0.25, cfg.Integration.MockFailureRate, 1e-9)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
}

func TestValidateProductionConfig(t *testing.T) {
	require.NoError(t, ValidateProductionConfig(validConfig()))

	cfg := validConfig()
	cfg.Integration.BatchSize = 0
	cfg.Integration.BackoffMultiplier = 0.5
	cfg.Security.CredentialsEncryptionKey = ""
	err := ValidateProductionConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INTEGRATION_BATCH_SIZE")
	assert.Contains(t, err.Error(), "INTEGRATION_BACKOFF_MULTIPLIER")
	assert.Contains(t, err.Error(), "CREDENTIALS_ENCRYPTION_KEY")
}

func TestLoadEnvFile_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("INTEGRATION_BATCH_SIZE=42\nINTEGRATION_TEST_ONLY_KEY=\"quoted\"\n"), 0o600))
	t.Setenv("INTEGRATION_BATCH_SIZE", "7")
	t.Cleanup(func() { os.Unsetenv("INTEGRATION_TEST_ONLY_KEY") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "7", os.Getenv("INTEGRATION_BATCH_SIZE"))
	assert.Equal(t, "quoted", os.Getenv("INTEGRATION_TEST_ONLY_KEY"))

	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
