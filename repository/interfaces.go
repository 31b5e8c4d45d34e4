// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uuid.UUID) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// DeliveryQueueRepository persists retry jobs. Each method touches a single row
// except the bulk delete used by cleanup.
type DeliveryQueueRepository interface {
	Repository[models.DeliveryJob, models.DeliveryJobFilter]
	Insert(ctx context.Context, job *models.DeliveryJob) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	FetchDueBatch(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryJob, error)
	UpdateAttempts(ctx context.Context, id uuid.UUID, attempts int) error
	Reschedule(ctx context.Context, id uuid.UUID, scheduledFor time.Time) error
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeliveryLogRepository defines operations for delivery logs
type DeliveryLogRepository interface {
	Repository[models.DeliveryLog, models.DeliveryLogFilter]
	// UpdateStatus applies upd only if the stored status can move to upd.Status.
	// It reports false when the row is missing or the move is not forward.
	UpdateStatus(ctx context.Context, id uuid.UUID, upd models.DeliveryLogUpdate) (bool, error)
	MarkRetry(ctx context.Context, id uuid.UUID, nextRetryAt *time.Time) (bool, error)
	Stats(ctx context.Context, now time.Time) (*models.DeliveryStats, error)
}

// APIConfigRepository defines operations for the partner API configuration
type APIConfigRepository interface {
	Active(ctx context.Context) (*models.APIConfig, error)
	Save(ctx context.Context, cfg *models.APIConfig) error
	Update(ctx context.Context, cfg *models.APIConfig) error
	DeactivateAll(ctx context.Context) (int64, error)
}
