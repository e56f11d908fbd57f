// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Product
// (catalog) model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a product is not found (including soft-deleted rows), functions
//     return gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateProduct inserts a new catalog row with the given metadata and file
// references. The product ID is a randomly generated UUID (string) and
// CreatedAt is set to UTC.
//
// On success, it returns the persisted Product. On failure, it returns a DB error.
func CreateProduct(ctx context.Context, db *gorm.DB, title, description string, price decimal.Decimal, thumbnailURL, filePath string) (*domain.Product, error) {
	p := &domain.Product{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		Price:        price,
		ThumbnailURL: thumbnailURL,
		FilePath:     filePath,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetProduct fetches a single product by its ID. Soft-deleted products do not
// resolve. If the record does not exist, it returns ErrNotFound.
func GetProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountProducts returns the total number of live catalog rows.
// On DB error, it returns the error.
func CountProducts(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Count(&total).Error
	return total, err
}

// ListProductsPage returns a paginated slice of catalog rows, ordered by
// creation time descending (newest first). Use CountProducts to obtain the
// total for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListProductsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteProduct soft-deletes a product by ID. The row is retained (gorm
// DeletedAt) so verified purchases keep a referent for auditing, but the
// product stops resolving for catalog reads and download resolution.
// Returns ErrNotFound if no live row was deleted.
func DeleteProduct(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
