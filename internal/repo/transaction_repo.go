// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Transaction
// (purchase ledger) model.
//
// Error semantics:
//   - Missing rows surface as gorm.ErrRecordNotFound (ErrNotFound).
//   - A duplicate checkout reference surfaces as ErrDuplicateReference,
//     detected via the unique index on transactions.reference.
//
// The verification write path is a single conditional UPDATE so that
// concurrent verify calls for the same reference cannot mint two tokens:
// exactly one caller flips verified and assigns the token, every other
// caller sees zero rows affected and re-reads the winner's row.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
)

// ErrDuplicateReference indicates that a transaction with the same checkout
// reference already exists. Callers typically fetch and return the existing
// row instead of failing the purchase flow.
var ErrDuplicateReference = errors.New("duplicate reference")

// isUniqueViolation reports whether a gorm/sqlite error is a UNIQUE
// constraint failure. glebarez/sqlite often returns plain-text errors for
// UNIQUE violations, so the message is sniffed as a fallback.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateTransaction inserts a new unverified ledger row for the given
// purchaser, product, and checkout reference. The transaction ID is a
// randomly generated UUID and CreatedAt is set to UTC.
//
// Returns ErrDuplicateReference when a row with the same reference already
// exists. Referential integrity against the product is the caller's concern
// (the service resolves the product first).
func CreateTransaction(ctx context.Context, db *gorm.DB, email, productID, reference string) (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:        uuid.NewString(),
		Email:     email,
		ProductID: productID,
		Reference: reference,
		Verified:  false,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}
	return tx, nil
}

// GetTransactionByReference fetches a ledger row by its checkout reference.
// Returns ErrNotFound if no such reference exists.
func GetTransactionByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionByToken fetches a ledger row by its download token. Only
// verified rows carrying a non-null token can match; an unverified row can
// never be returned from here regardless of its stored columns.
func GetTransactionByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).
		Where("download_token = ? AND verified = ?", token, true).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// MarkVerified atomically flips an unverified row to verified and assigns its
// download token:
//
//	UPDATE transactions SET verified=1, download_token=?
//	WHERE reference=? AND verified=0
//
// It returns the number of rows affected. Zero with a nil error means another
// caller won the race (or the row was already verified); the caller should
// re-read the row and return the previously assigned token.
func MarkVerified(ctx context.Context, db *gorm.DB, reference, token string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("reference = ? AND verified = ?", reference, false).
		Updates(map[string]any{
			"verified":       true,
			"download_token": token,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// IncrementDownloadCount bumps the resolution counter for the row carrying
// the given token. Best-effort audit trail; the download flow does not fail
// when this update cannot be applied.
func IncrementDownloadCount(ctx context.Context, db *gorm.DB, token string) error {
	return db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("download_token = ?", token).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}
