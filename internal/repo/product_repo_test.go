package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
)

func TestCreateProduct_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	p, err := CreateProduct(context.Background(), db, "T", "D", decimal.NewFromInt(10), "http://x/t.png", "products/x/f.pdf")
	if err == nil || p != nil {
		t.Fatalf("expected error creating without table, got p=%v err=%v", p, err)
	}
}

func TestCreateProduct_Success_PersistsAndSetsFields(t *testing.T) {
	db := newRepoDB(t, &domain.Product{})

	start := time.Now().UTC().Add(-time.Minute)
	p, err := CreateProduct(context.Background(), db, "Landing Page Kit", "desc", decimal.RequireFromString("49.99"), "http://x/t.png", "products/p/file.zip")
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if p.ID == "" || p.Title != "Landing Page Kit" || p.FilePath != "products/p/file.zip" {
		t.Fatalf("unexpected Product fields: %+v", p)
	}
	if p.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset/really old: %v", p.CreatedAt)
	}
	// round-trip
	got, err := GetProduct(context.Background(), db, p.ID)
	if err != nil {
		t.Fatalf("load created product: %v", err)
	}
	if !got.Price.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("price round-trip mismatch: %s", got.Price)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Product{})
	if _, err := GetProduct(context.Background(), db, "missing-id"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
}

func TestListProductsPage_OrderAndPaging(t *testing.T) {
	db := newRepoDB(t, &domain.Product{})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p, err := CreateProduct(ctx, db, "p", "", decimal.NewFromInt(int64(i+1)), "", "f")
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		// Deterministic ordering.
		if err := db.Model(&domain.Product{}).Where("id = ?", p.ID).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Hour)).Error; err != nil {
			t.Fatalf("set created_at: %v", err)
		}
	}

	total, err := CountProducts(ctx, db)
	if err != nil || total != 5 {
		t.Fatalf("CountProducts = %d, %v", total, err)
	}

	page, err := ListProductsPage(ctx, db, 0, 2)
	if err != nil {
		t.Fatalf("ListProductsPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("expected newest-first, got %v then %v", page[0].CreatedAt, page[1].CreatedAt)
	}
}

func TestDeleteProduct_SoftDeleteHidesRow(t *testing.T) {
	db := newRepoDB(t, &domain.Product{})
	ctx := context.Background()

	p, err := CreateProduct(ctx, db, "gone soon", "", decimal.NewFromInt(5), "", "f")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := DeleteProduct(ctx, db, p.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, err := GetProduct(ctx, db, p.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("soft-deleted product still resolves: %v", err)
	}
	// Audit row survives.
	var count int64
	if err := db.Unscoped().Model(&domain.Product{}).Where("id = ?", p.ID).Count(&count).Error; err != nil {
		t.Fatalf("unscoped count: %v", err)
	}
	if count != 1 {
		t.Fatalf("audit row missing after soft delete")
	}
	// Deleting twice is NotFound.
	if err := DeleteProduct(ctx, db, p.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second delete should be NotFound, got %v", err)
	}
}
