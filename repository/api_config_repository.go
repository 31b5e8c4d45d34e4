package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIConfigRepositoryImpl implements APIConfigRepository
type APIConfigRepositoryImpl struct {
	*BaseRepository[models.APIConfig, any]
}

func NewAPIConfigRepository(db *gorm.DB) APIConfigRepository {
	return &APIConfigRepositoryImpl{BaseRepository: NewBaseRepository[models.APIConfig, any](db)}
}

// Active returns the most recently updated active configuration, or nil when none is active
func (r *APIConfigRepositoryImpl) Active(ctx context.Context) (*models.APIConfig, error) {
	var cfg models.APIConfig
	err := r.getDB(ctx).
		Where("is_active = ?", true).
		Order("updated_at DESC").
		Take(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active integration config: %w", err)
	}
	return &cfg, nil
}

func (r *APIConfigRepositoryImpl) Save(ctx context.Context, cfg *models.APIConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return r.BaseRepository.Save(ctx, cfg)
}

func (r *APIConfigRepositoryImpl) Update(ctx context.Context, cfg *models.APIConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	if err := r.getDB(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("failed to update integration config %s: %w", cfg.ID, err)
	}
	return nil
}

// DeactivateAll switches off every active configuration and returns how many changed
func (r *APIConfigRepositoryImpl) DeactivateAll(ctx context.Context) (int64, error) {
	res := r.getDB(ctx).Model(&models.APIConfig{}).
		Where("is_active = ?", true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate integration configs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
