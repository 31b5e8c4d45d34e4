package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryJob is a pending retry of a delivery log against the partner API
type DeliveryJob struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LogID        uuid.UUID `gorm:"type:uuid;index:idx_integration_queue_log_id;not null" json:"log_id"`
	ScheduledFor time.Time `gorm:"index:idx_integration_queue_scheduled_for;not null" json:"scheduled_for"`
	Attempts     int       `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts  int       `gorm:"not null;default:3" json:"max_attempts"`
	CreatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_integration_queue_created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (DeliveryJob) TableName() string { return "instituto_integration_queue" }

// IsDue reports whether the job may be picked up at now
func (j *DeliveryJob) IsDue(now time.Time) bool {
	return !j.ScheduledFor.After(now)
}

// IsExhausted reports whether no further attempt is allowed
func (j *DeliveryJob) IsExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// DeliveryJobFilter narrows queue counts and listings
type DeliveryJobFilter struct {
	DueBefore     *time.Time
	OnlyExhausted bool
}
