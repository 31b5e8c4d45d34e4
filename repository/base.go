// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseRepository holds the lookups every integration table shares
type BaseRepository[T any, F any] struct {
	DB *gorm.DB
}

func NewBaseRepository[T any, F any](db *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{DB: db}
}

// getDB prefers the transaction carried by ctx, if any
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return r.DB.WithContext(ctx)
}

// ByID returns nil, nil when no row matches
func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uuid.UUID) (*T, error) {
	var entity T
	if err := r.getDB(ctx).Where("id = ?", id).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by ID %s: %w", id, err)
	}
	return &entity, nil
}

// Save inserts a single row
func (r *BaseRepository[T, F]) Save(ctx context.Context, entity *T) error {
	if err := r.getDB(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(TxContextKey).(*gorm.DB)
	return tx
}

// WithTransaction runs fn with a transaction attached to ctx. Repositories called
// with that ctx join the transaction; nested calls reuse the outer one.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, TxContextKey, tx))
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}
