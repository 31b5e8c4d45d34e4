package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuthType selects how requests to the partner API are authenticated
type AuthType string

const (
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
)

// APIConfig is the stored configuration of the partner integration.
// Credentials live encrypted in EncryptedCredentials and are decrypted on load.
type APIConfig struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Endpoint             string    `gorm:"size:500;not null" json:"endpoint"`
	SandboxEndpoint      *string   `gorm:"size:500" json:"sandbox_endpoint,omitempty"`
	Method               string    `gorm:"size:8;not null;default:'POST'" json:"method"`
	AuthType             AuthType  `gorm:"type:varchar(16);not null" json:"auth_type"`
	EncryptedCredentials string    `gorm:"type:text" json:"-"`
	IsSandbox            bool      `gorm:"not null" json:"is_sandbox"`
	RetryAttempts        int       `gorm:"not null;default:3" json:"retry_attempts"`
	RetryDelayMs         int       `gorm:"column:retry_delay;not null;default:5000" json:"retry_delay"`
	IsActive             bool      `gorm:"not null;index:idx_integration_config_active" json:"is_active"`
	CreatedAt            time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt            time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`

	Credentials Credentials `gorm:"-" json:"-"`
}

func (APIConfig) TableName() string { return "instituto_integration_config" }

// Credentials is the decrypted auth material of an APIConfig
type Credentials struct {
	APIKey        string `json:"api_key,omitempty"`
	BearerToken   string `json:"bearer_token,omitempty"`
	BasicUsername string `json:"basic_username,omitempty"`
	BasicPassword string `json:"basic_password,omitempty"`
}

// ActiveEndpoint returns the sandbox endpoint when sandbox mode is on and one is set
func (c *APIConfig) ActiveEndpoint() string {
	if c.IsSandbox && c.SandboxEndpoint != nil && *c.SandboxEndpoint != "" {
		return *c.SandboxEndpoint
	}
	return c.Endpoint
}

// HealthEndpoint is the connectivity check derived from the active endpoint
func (c *APIConfig) HealthEndpoint() string {
	return strings.TrimRight(c.ActiveEndpoint(), "/") + "/health"
}

// RetryDelay converts the stored millisecond delay into whole seconds for the queue
func (c *APIConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs/1000) * time.Second
}

// HasCredentials reports whether the auth material required by AuthType is present
func (c *APIConfig) HasCredentials() bool {
	switch c.AuthType {
	case AuthTypeAPIKey:
		return c.Credentials.APIKey != ""
	case AuthTypeBearer:
		return c.Credentials.BearerToken != ""
	case AuthTypeBasic:
		return c.Credentials.BasicUsername != "" && c.Credentials.BasicPassword != ""
	}
	return false
}
