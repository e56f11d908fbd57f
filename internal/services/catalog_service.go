// Package services – CatalogService
//
// This file implements the CatalogService, which manages the lifecycle of
// purchasable products. It validates metadata, stores the deliverable and
// thumbnail in the object store, and coordinates repository operations for
// creating, listing (with pagination), fetching, and deleting products.
// Deleting a product releases its backing files and soft-deletes the row so
// existing ledger entries keep their referent for auditing.
//
// Service-level errors (e.g., ErrProductNotFound, ErrInvalidProduct) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
	"github.com/tbourn/go-store-backend/internal/storage"
)

// ProductRepo defines the repository contract required by CatalogService.
// Implementations are responsible for persistence of catalog aggregates.
type ProductRepo interface {
	// CreateProduct inserts a new catalog row.
	CreateProduct(ctx context.Context, db *gorm.DB, title, description string, price decimal.Decimal, thumbnailURL, filePath string) (*domain.Product, error)

	// GetProduct fetches a product by ID, excluding soft-deleted rows.
	GetProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error)

	// CountProducts returns the total number of live products for pagination.
	CountProducts(ctx context.Context, db *gorm.DB) (int64, error)

	// ListProductsPage returns a page of live products, newest first.
	ListProductsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Product, error)

	// DeleteProduct soft-deletes a product by ID.
	DeleteProduct(ctx context.Context, db *gorm.DB, id string) error
}

// FileUpload carries one incoming file from the admin upload flow.
type FileUpload struct {
	// Name is the client-supplied filename; only its extension is kept.
	Name string
	// Content is the file body. Read exactly once.
	Content io.Reader
}

// NewProductInput is the validated input for CatalogService.Create.
type NewProductInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Thumbnail   FileUpload
	File        FileUpload
}

// CatalogService provides product-level operations. It owns the coupling
// between catalog rows and their objects in the private store.
type CatalogService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the product repository used by this service.
	Repo ProductRepo
	// Store holds product files and thumbnails.
	Store storage.Store
	// ThumbnailBaseURL prefixes stored thumbnail paths into public URLs.
	ThumbnailBaseURL string
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewCatalogService constructs a CatalogService with sane defaults.
func NewCatalogService(db *gorm.DB, r ProductRepo, store storage.Store, thumbnailBaseURL string) *CatalogService {
	return &CatalogService{
		DB:               db,
		Repo:             r,
		Store:            store,
		ThumbnailBaseURL: strings.TrimRight(thumbnailBaseURL, "/"),
		TitleMaxLen:      255,
	}
}

// objectPath builds a per-product object key, keeping only the upload's
// extension so client-controlled names never reach the filesystem.
func objectPath(productID, kind, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return path.Join("products", productID, kind+ext)
}

// Create validates the input, uploads both files, and inserts the catalog
// row. On a failed insert the uploaded objects are removed again so the
// store does not accumulate orphans.
func (s *CatalogService) Create(ctx context.Context, in NewProductInput) (*domain.Product, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title required", ErrInvalidProduct)
	}
	if len([]rune(title)) > s.TitleMaxLen {
		title = string([]rune(title)[:s.TitleMaxLen])
	}
	if !in.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	if in.File.Content == nil || in.Thumbnail.Content == nil {
		return nil, fmt.Errorf("%w: product file and thumbnail required", ErrInvalidProduct)
	}

	// Object keys are derived from a fresh ID, not the row ID, so a failed
	// insert cannot collide with a later retry.
	objectID := uuid.NewString()

	thumbPath, err := s.Store.Upload(ctx, objectPath(objectID, "thumbnail", in.Thumbnail.Name), in.Thumbnail.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	filePath, err := s.Store.Upload(ctx, objectPath(objectID, "file", in.File.Name), in.File.Content)
	if err != nil {
		_ = s.Store.Remove(ctx, thumbPath)
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	p, err := s.Repo.CreateProduct(ctx, s.DB, title, strings.TrimSpace(in.Description), in.Price,
		s.ThumbnailBaseURL+"/"+thumbPath, filePath)
	if err != nil {
		_ = s.Store.Remove(ctx, thumbPath)
		_ = s.Store.Remove(ctx, filePath)
		return nil, err
	}
	return p, nil
}

// Get returns a single live product by ID.
func (s *CatalogService) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.Repo.GetProduct(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPage returns a page of products (paginated, newest first).
// It applies defaults for invalid page/pageSize and returns the total count.
func (s *CatalogService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Product, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountProducts(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Product{}, 0, nil
	}

	items, err := s.Repo.ListProductsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Delete soft-deletes the product and releases its backing files. The row
// survives as an audit referent for verified purchases; once deleted, the
// product no longer resolves for downloads (see DownloadService).
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	p, err := s.Repo.GetProduct(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		return err
	}

	if err := s.Repo.DeleteProduct(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		return err
	}

	// Release backing files. Failures here are logged, not fatal: the row is
	// already gone and Remove is idempotent, so cleanup can be re-driven.
	if err := s.Store.Remove(ctx, p.FilePath); err != nil {
		log.Warn().Str("product_id", id).Err(err).Msg("release product file")
	}
	if thumb := strings.TrimPrefix(p.ThumbnailURL, s.ThumbnailBaseURL+"/"); thumb != p.ThumbnailURL {
		if err := s.Store.Remove(ctx, thumb); err != nil {
			log.Warn().Str("product_id", id).Err(err).Msg("release product thumbnail")
		}
	}
	return nil
}
