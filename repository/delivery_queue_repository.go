package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryQueueRepositoryImpl implements DeliveryQueueRepository
type DeliveryQueueRepositoryImpl struct {
	*BaseRepository[models.DeliveryJob, models.DeliveryJobFilter]
}

func NewDeliveryQueueRepository(db *gorm.DB) DeliveryQueueRepository {
	return &DeliveryQueueRepositoryImpl{BaseRepository: NewBaseRepository[models.DeliveryJob, models.DeliveryJobFilter](db)}
}

// Insert stores a new job, assigning an ID when none is set
func (r *DeliveryQueueRepositoryImpl) Insert(ctx context.Context, job *models.DeliveryJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := r.getDB(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to insert delivery job: %w", err)
	}
	return nil
}

func (r *DeliveryQueueRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.getDB(ctx).Where("id = ?", id).Delete(&models.DeliveryJob{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete delivery job %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FetchDueBatch returns due jobs with attempts left, oldest-due first
func (r *DeliveryQueueRepositoryImpl) FetchDueBatch(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryJob, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []*models.DeliveryJob
	if err := r.getDB(ctx).
		Where("scheduled_for <= ? AND attempts < max_attempts", now).
		Order("scheduled_for ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch due jobs: %w", err)
	}
	return rows, nil
}

func (r *DeliveryQueueRepositoryImpl) UpdateAttempts(ctx context.Context, id uuid.UUID, attempts int) error {
	res := r.getDB(ctx).Model(&models.DeliveryJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"attempts": attempts, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to update attempts of job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *DeliveryQueueRepositoryImpl) Reschedule(ctx context.Context, id uuid.UUID, scheduledFor time.Time) error {
	res := r.getDB(ctx).Model(&models.DeliveryJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"scheduled_for": scheduledFor, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *DeliveryQueueRepositoryImpl) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.getDB(ctx).Where("created_at < ?", cutoff).Delete(&models.DeliveryJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *DeliveryQueueRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryJobFilter, orderBy string, limit, offset int) ([]*models.DeliveryJob, error) {
	db := r.applyFilter(r.getDB(ctx), filter)
	if orderBy == "" {
		orderBy = "scheduled_for ASC"
	}
	db = db.Order(orderBy)
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	var rows []*models.DeliveryJob
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find delivery jobs: %w", err)
	}
	return rows, nil
}

func (r *DeliveryQueueRepositoryImpl) Count(ctx context.Context, filter models.DeliveryJobFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.DeliveryJob{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count delivery jobs: %w", err)
	}
	return count, nil
}

func (r *DeliveryQueueRepositoryImpl) applyFilter(db *gorm.DB, filter models.DeliveryJobFilter) *gorm.DB {
	if filter.DueBefore != nil {
		db = db.Where("scheduled_for <= ?", *filter.DueBefore)
	}
	if filter.OnlyExhausted {
		db = db.Where("attempts >= max_attempts")
	}
	return db
}
