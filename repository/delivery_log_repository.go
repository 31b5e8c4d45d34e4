package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryLogRepositoryImpl implements DeliveryLogRepository
type DeliveryLogRepositoryImpl struct {
	*BaseRepository[models.DeliveryLog, models.DeliveryLogFilter]
}

func NewDeliveryLogRepository(db *gorm.DB) DeliveryLogRepository {
	return &DeliveryLogRepositoryImpl{BaseRepository: NewBaseRepository[models.DeliveryLog, models.DeliveryLogFilter](db)}
}

func (r *DeliveryLogRepositoryImpl) Save(ctx context.Context, log *models.DeliveryLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Status == "" {
		log.Status = models.DeliveryStatusPending
	}
	if log.AttemptCount == 0 {
		log.AttemptCount = 1
	}
	return r.BaseRepository.Save(ctx, log)
}

func (r *DeliveryLogRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, upd models.DeliveryLogUpdate) (bool, error) {
	from := models.PredecessorsOf(upd.Status)
	if len(from) == 0 {
		return false, nil
	}

	updates := map[string]any{
		"status":     upd.Status,
		"updated_at": time.Now().UTC(),
	}
	if len(upd.Response) > 0 {
		updates["response"] = string(upd.Response)
	}
	if upd.ErrorMessage != nil {
		updates["error_message"] = *upd.ErrorMessage
		updates["error_history"] = gorm.Expr("array_append(COALESCE(error_history, '{}'::text[]), ?)", *upd.ErrorMessage)
	}
	if upd.NextRetryAt != nil {
		updates["next_retry_at"] = *upd.NextRetryAt
	}

	res := r.getDB(ctx).Model(&models.DeliveryLog{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update status of log %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkRetry moves the log to retry and counts one more delivery attempt
func (r *DeliveryLogRepositoryImpl) MarkRetry(ctx context.Context, id uuid.UUID, nextRetryAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status":        models.DeliveryStatusRetry,
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"updated_at":    time.Now().UTC(),
	}
	if nextRetryAt != nil {
		updates["next_retry_at"] = *nextRetryAt
	}

	res := r.getDB(ctx).Model(&models.DeliveryLog{}).
		Where("id = ? AND status IN ?", id, models.PredecessorsOf(models.DeliveryStatusRetry)).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark log %s for retry: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

type deliveryStatsRow struct {
	Total          int64
	Success        int64
	Failed         int64
	Retry          int64
	Last24h        int64
	Last24hSuccess int64
}

func (r *DeliveryLogRepositoryImpl) Stats(ctx context.Context, now time.Time) (*models.DeliveryStats, error) {
	var row deliveryStatsRow
	err := r.getDB(ctx).Model(&models.DeliveryLog{}).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = ?) AS success,
			COUNT(*) FILTER (WHERE status = ?) AS failed,
			COUNT(*) FILTER (WHERE status = ?) AS retry,
			COUNT(*) FILTER (WHERE created_at >= ?) AS last24h,
			COUNT(*) FILTER (WHERE created_at >= ? AND status = ?) AS last24h_success`,
			models.DeliveryStatusSuccess, models.DeliveryStatusFailed, models.DeliveryStatusRetry,
			now.Add(-24*time.Hour), now.Add(-24*time.Hour), models.DeliveryStatusSuccess).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery stats: %w", err)
	}

	stats := &models.DeliveryStats{
		TotalAttempts:   row.Total,
		SuccessfulSends: row.Success,
		FailedSends:     row.Failed,
		PendingRetries:  row.Retry,
		Last24hAttempts: row.Last24h,
	}
	if row.Total > 0 {
		stats.SuccessRate = float64(row.Success) / float64(row.Total) * 100
	}
	if row.Last24h > 0 {
		stats.Last24hSuccessRate = float64(row.Last24hSuccess) / float64(row.Last24h) * 100
	}
	return stats, nil
}

func (r *DeliveryLogRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryLogFilter, orderBy string, limit, offset int) ([]*models.DeliveryLog, error) {
	db := r.applyFilter(r.getDB(ctx), filter)
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	var rows []*models.DeliveryLog
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find delivery logs: %w", err)
	}
	return rows, nil
}

func (r *DeliveryLogRepositoryImpl) Count(ctx context.Context, filter models.DeliveryLogFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.DeliveryLog{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count delivery logs: %w", err)
	}
	return count, nil
}

func (r *DeliveryLogRepositoryImpl) applyFilter(db *gorm.DB, filter models.DeliveryLogFilter) *gorm.DB {
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
