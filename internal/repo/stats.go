// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation on catalog listings) and the
// admin sales overview. Each function is context-aware and safe to call from
// services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
)

// ProductsStats returns aggregate metadata for the live catalog: the total
// number of rows and the maximum UpdatedAt timestamp among those rows.
//
// When the catalog is empty, the returned count is 0 and maxUpdatedAt is nil.
//
// Return values:
//   - count:        total live products
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func ProductsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Product{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// SalesStats summarizes the ledger for the admin dashboard.
type SalesStats struct {
	Transactions int64  `json:"transactions"`
	Verified     int64  `json:"verified"`
	Downloads    uint64 `json:"downloads"`
}

// LedgerStats returns purchase-attempt totals, the verified subset, and the
// cumulative number of signed-URL resolutions across all transactions.
func LedgerStats(ctx context.Context, db *gorm.DB) (*SalesStats, error) {
	var s SalesStats

	m := db.WithContext(ctx).Model(&domain.Transaction{})
	if err := m.Count(&s.Transactions).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("verified = ?", true).
		Count(&s.Verified).Error; err != nil {
		return nil, err
	}

	var row struct {
		Total *uint64
	}
	if err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Select("SUM(download_count) AS total").
		Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.Total != nil {
		s.Downloads = *row.Total
	}
	return &s, nil
}
