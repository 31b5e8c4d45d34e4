package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IntegrationResult is the outcome of one delivery attempt to the partner API
type IntegrationResult struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty" swaggertype:"object"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Retryable bool            `json:"retryable"`
	LogID     *uuid.UUID      `json:"log_id,omitempty"`
	ResetTime *time.Time      `json:"reset_time,omitempty"`
}

// SendUserDataRequest is the public request to forward a user's registration
type SendUserDataRequest struct {
	UserID   string          `json:"user_id" validate:"required,max=255"`
	UserData UserDataRequest `json:"user_data" validate:"required"`
}

// UserDataRequest mirrors models.InstitutoUserData on the wire
type UserDataRequest struct {
	Nome                     string `json:"nome" validate:"required,min=2,max=100"`
	Email                    string `json:"email" validate:"required,email,max=255"`
	Telefone                 string `json:"telefone" validate:"required,min=10,max=20"`
	CPF                      string `json:"cpf,omitempty" validate:"omitempty,min=11,max=14"`
	OrigemCadastro           string `json:"origem_cadastro,omitempty"`
	ConsentimentoDataSharing bool   `json:"consentimento_data_sharing"`
	CreatedAt                string `json:"created_at,omitempty"`
}

// EnqueueRequest adds an existing delivery log to the retry queue
type EnqueueRequest struct {
	LogID        uuid.UUID `json:"log_id" validate:"required"`
	DelaySeconds *int      `json:"delay_seconds,omitempty" validate:"omitempty,min=0,max=604800"`
	MaxAttempts  *int      `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=20"`
}

// EnqueueResponse carries the created job id
type EnqueueResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

// QueueStatsResponse summarises the retry queue
type QueueStatsResponse struct {
	TotalItems             int   `json:"total_items"`
	ReadyToProcess         int   `json:"ready_to_process"`
	FailedItems            int   `json:"failed_items"`
	AverageWaitTimeSeconds int64 `json:"average_wait_time"`
}

// CleanupQueueRequest purges queue entries created before the threshold
type CleanupQueueRequest struct {
	OlderThanHours *int `json:"older_than_hours,omitempty" validate:"omitempty,min=1,max=8760"`
}

// CleanupQueueResponse reports how many entries were purged
type CleanupQueueResponse struct {
	Deleted int64 `json:"deleted"`
}

// IntegrationStatsResponse aggregates delivery logs
type IntegrationStatsResponse struct {
	TotalAttempts      int64   `json:"total_attempts"`
	SuccessfulSends    int64   `json:"successful_sends"`
	FailedSends        int64   `json:"failed_sends"`
	PendingRetries     int64   `json:"pending_retries"`
	SuccessRate        float64 `json:"success_rate"`
	Last24hAttempts    int64   `json:"last_24h_attempts"`
	Last24hSuccessRate float64 `json:"last_24h_success_rate"`
}

// ListDeliveryLogsRequest filters the admin log listing
type ListDeliveryLogsRequest struct {
	UserID        string     `query:"user_id"`
	Status        string     `query:"status" validate:"omitempty,oneof=pending retry success failed"`
	CreatedAfter  *time.Time `query:"created_after"`
	CreatedBefore *time.Time `query:"created_before"`
	Page          int        `query:"page" validate:"omitempty,min=1"`
	PageSize      int        `query:"page_size" validate:"omitempty,min=1,max=500"`
}

// DeliveryLogItem is a masked view of a delivery log
type DeliveryLogItem struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	Status       string          `json:"status"`
	Email        string          `json:"email"`
	Telefone     string          `json:"telefone"`
	AttemptCount int             `json:"attempt_count"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ErrorHistory []string        `json:"error_history,omitempty"`
	Response     json.RawMessage `json:"response,omitempty" swaggertype:"object"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ListDeliveryLogsResponse is one page of logs
type ListDeliveryLogsResponse struct {
	Items    []DeliveryLogItem `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// RateLimitStatusResponse shows both admission windows for a user
type RateLimitStatusResponse struct {
	UserID string          `json:"user_id"`
	User   RateLimitWindow `json:"user"`
	Global RateLimitWindow `json:"global"`
}

// RateLimitWindow is the usage of one limiter
type RateLimitWindow struct {
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// ValidateConfigRequest checks a candidate partner configuration
type ValidateConfigRequest struct {
	Endpoint        string  `json:"endpoint" validate:"required,url"`
	SandboxEndpoint *string `json:"sandbox_endpoint,omitempty" validate:"omitempty,url"`
	Method          string  `json:"method" validate:"required,oneof=POST PUT"`
	AuthType        string  `json:"auth_type" validate:"required,oneof=api_key bearer basic"`
	APIKey          string  `json:"api_key,omitempty"`
	BearerToken     string  `json:"bearer_token,omitempty"`
	BasicUsername   string  `json:"basic_username,omitempty"`
	BasicPassword   string  `json:"basic_password,omitempty"`
	IsSandbox       bool    `json:"is_sandbox"`
	RetryAttempts   int     `json:"retry_attempts" validate:"omitempty,min=1,max=10"`
	RetryDelayMs    int     `json:"retry_delay" validate:"omitempty,min=1000,max=300000"`
}

// ValidateConfigResponse reports the health check result
type ValidateConfigResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// SaveConfigRequest stores a new active partner configuration
type SaveConfigRequest struct {
	ValidateConfigRequest
	IsActive bool `json:"is_active"`
}

// APIConfigResponse is the stored configuration without credentials
type APIConfigResponse struct {
	ID              uuid.UUID `json:"id"`
	Endpoint        string    `json:"endpoint"`
	SandboxEndpoint *string   `json:"sandbox_endpoint,omitempty"`
	Method          string    `json:"method"`
	AuthType        string    `json:"auth_type"`
	IsSandbox       bool      `json:"is_sandbox"`
	RetryAttempts   int       `json:"retry_attempts"`
	RetryDelayMs    int       `json:"retry_delay"`
	IsActive        bool      `json:"is_active"`
	HasCredentials  bool      `json:"has_credentials"`
	UpdatedAt       time.Time `json:"updated_at"`
}
