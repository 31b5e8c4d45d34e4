package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DeliveryStatus is the lifecycle state of a delivery log
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusRetry   DeliveryStatus = "retry"
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusPending: {DeliveryStatusSuccess, DeliveryStatusRetry, DeliveryStatusFailed},
	DeliveryStatusRetry:   {DeliveryStatusRetry, DeliveryStatusSuccess, DeliveryStatusFailed},
}

// IsValid checks the status against the known values
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusRetry, DeliveryStatusSuccess, DeliveryStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves the status
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusFailed
}

// CanTransitionTo reports whether next is a forward move from s
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PredecessorsOf lists every status from which next can be reached
func PredecessorsOf(next DeliveryStatus) []DeliveryStatus {
	var out []DeliveryStatus
	for from, targets := range deliveryTransitions {
		for _, t := range targets {
			if t == next {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// DeliveryLog records one user's data delivery and its outcome
type DeliveryLog struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string          `gorm:"size:64;not null;index:idx_integration_logs_user_id" json:"user_id"`
	Status       DeliveryStatus  `gorm:"type:varchar(16);not null;default:'pending';index:idx_integration_logs_status" json:"status"`
	Payload      Payload         `gorm:"type:jsonb;not null" json:"payload"`
	Response     json.RawMessage `gorm:"type:jsonb" json:"response,omitempty"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	ErrorHistory pq.StringArray  `gorm:"type:text[]" json:"error_history,omitempty"`
	AttemptCount int             `gorm:"not null;default:1" json:"attempt_count"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_integration_logs_created_at" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (DeliveryLog) TableName() string { return "instituto_integration_logs" }

// DeliveryLogFilter is used by admin listings and exports
type DeliveryLogFilter struct {
	UserID        *string
	Status        *DeliveryStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// DeliveryLogUpdate carries the fields written together with a status change
type DeliveryLogUpdate struct {
	Status       DeliveryStatus
	Response     json.RawMessage
	ErrorMessage *string
	NextRetryAt  *time.Time
}

// DeliveryStats aggregates delivery outcomes
type DeliveryStats struct {
	TotalAttempts      int64   `json:"total_attempts"`
	SuccessfulSends    int64   `json:"successful_sends"`
	FailedSends        int64   `json:"failed_sends"`
	PendingRetries     int64   `json:"pending_retries"`
	SuccessRate        float64 `json:"success_rate"`
	Last24hAttempts    int64   `json:"last_24h_attempts"`
	Last24hSuccessRate float64 `json:"last_24h_success_rate"`
}
