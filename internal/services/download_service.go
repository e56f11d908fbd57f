// Package services – DownloadService
//
// This file implements download authorization: exchanging a download token
// for a time-boxed signed URL into the private object store. Only verified
// purchases can reach a product's file, and the raw file path never leaves
// the server — each successful resolution mints a fresh URL with a fresh
// short expiry.
//
// Policy note: the token itself is not consumed. A valid token can be
// re-resolved without limit; what expires is every signed URL it produces.
// download_count records each resolution for auditing.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
	"github.com/tbourn/go-store-backend/internal/storage"
)

// DefaultURLTTL is the signed-URL validity window used when none is
// configured. The exact value is a deployment parameter.
const DefaultURLTTL = 300 * time.Second

var (
	// downloadResolutions counts resolveDownload outcomes by result.
	downloadResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_download_resolutions_total",
		Help: "Total download-token resolution attempts, by outcome.",
	}, []string{"outcome"})
)

// DownloadRepo is the slice of the ledger repository the download flow needs.
type DownloadRepo interface {
	// GetTransactionByToken fetches a verified row by download token.
	GetTransactionByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Transaction, error)

	// IncrementDownloadCount bumps the audit counter for a token.
	IncrementDownloadCount(ctx context.Context, db *gorm.DB, token string) error
}

// DownloadService turns download tokens into usable, time-boxed downloads.
type DownloadService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the ledger repository slice used for token lookup.
	Repo DownloadRepo
	// Products resolves the purchased product.
	Products ProductRepo
	// Store signs private file paths into URLs.
	Store storage.Store
	// URLTTL is the signed-URL validity window. Zero means DefaultURLTTL.
	URLTTL time.Duration
}

// NewDownloadService constructs a DownloadService with the default TTL.
func NewDownloadService(db *gorm.DB, r DownloadRepo, products ProductRepo, store storage.Store) *DownloadService {
	return &DownloadService{DB: db, Repo: r, Products: products, Store: store, URLTTL: DefaultURLTTL}
}

// ttl returns the effective signed-URL validity window.
func (s *DownloadService) ttl() time.Duration {
	if s.URLTTL > 0 {
		return s.URLTTL
	}
	return DefaultURLTTL
}

// Resolve exchanges a download token for a signed URL.
//
// Algorithm:
//  1. Look up the verified transaction by token (ErrInvalidToken otherwise).
//  2. Resolve the linked product; a product deleted after purchase yields
//     ErrProductMissing, deliberately distinct from ErrInvalidToken.
//  3. Ask the object store for a signed URL over the product's private file
//     with the configured validity window (ErrStorageUnavailable on failure).
//
// Each success increments the transaction's download counter (best effort).
func (s *DownloadService) Resolve(ctx context.Context, token string) (*domain.SignedURL, error) {
	if token == "" {
		downloadResolutions.WithLabelValues("invalid_token").Inc()
		return nil, ErrInvalidToken
	}

	tx, err := s.Repo.GetTransactionByToken(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			downloadResolutions.WithLabelValues("invalid_token").Inc()
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	p, err := s.Products.GetProduct(ctx, s.DB, tx.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			downloadResolutions.WithLabelValues("product_missing").Inc()
			return nil, ErrProductMissing
		}
		return nil, err
	}

	signed, err := s.Store.SignedURL(ctx, p.FilePath, s.ttl())
	if err != nil {
		if errors.Is(err, storage.ErrObjectMissing) {
			downloadResolutions.WithLabelValues("product_missing").Inc()
			return nil, ErrProductMissing
		}
		downloadResolutions.WithLabelValues("storage_error").Inc()
		return nil, ErrStorageUnavailable
	}

	if err := s.Repo.IncrementDownloadCount(ctx, s.DB, token); err != nil {
		log.Warn().Str("transaction_id", tx.ID).Err(err).Msg("increment download count")
	}

	downloadResolutions.WithLabelValues("success").Inc()
	return &domain.SignedURL{URL: signed.URL, ExpiresAt: signed.ExpiresAt}, nil
}
