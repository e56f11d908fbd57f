package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-store-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA busy_timeout=5000;")

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB) *domain.Product {
	t.Helper()
	p, err := CreateProduct(context.Background(), db, "Template", "A template", decimal.NewFromInt(50), "http://x/thumb.png", "products/p1/file.pdf")
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func TestCreateTransaction_Success(t *testing.T) {
	db := newRepoDB(t, &domain.Product{}, &domain.Transaction{})
	p := seedProduct(t, db)

	tx, err := CreateTransaction(context.Background(), db, "a@b.com", p.ID, "ref-1")
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tx.ID == "" || tx.Email != "a@b.com" || tx.ProductID != p.ID || tx.Reference != "ref-1" {
		t.Fatalf("unexpected Transaction fields: %+v", tx)
	}
	if tx.Verified {
		t.Fatal("new transaction must start unverified")
	}
	if tx.DownloadToken != nil {
		t.Fatalf("new transaction must carry no token, got %v", *tx.DownloadToken)
	}
}

func TestCreateTransaction_DuplicateReference(t *testing.T) {
	db := newRepoDB(t, &domain.Product{}, &domain.Transaction{})
	p := seedProduct(t, db)
	ctx := context.Background()

	first, err := CreateTransaction(ctx, db, "a@b.com", p.ID, "ref-dup")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateTransaction(ctx, db, "other@b.com", p.ID, "ref-dup"); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("want ErrDuplicateReference, got %v", err)
	}

	// The ledger still holds exactly one row for the reference.
	var count int64
	if err := db.Model(&domain.Transaction{}).Where("reference = ?", "ref-dup").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows for ref-dup = %d, want 1", count)
	}
	got, err := GetTransactionByReference(ctx, db, "ref-dup")
	if err != nil {
		t.Fatalf("GetTransactionByReference: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("surviving row id = %s, want %s", got.ID, first.ID)
	}
}

func TestGetTransactionByReference_NotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Product{}, &domain.Transaction{})
	if _, err := GetTransactionByReference(context.Background(), db, "unknown-ref"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
}

func TestMarkVerified_FlipsOnceAndKeepsToken(t *testing.T) {
	db := newRepoDB(t, &domain.Product{}, &domain.Transaction{})
	p := seedProduct(t, db)
	ctx := context.Background()

	if _, err := CreateTransaction(ctx, db, "a@b.com", p.ID, "ref-v"); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := MarkVerified(ctx, db, "ref-v", "tok-1")
	if err != nil || n != 1 {
		t.Fatalf("first MarkVerified: n=%d err=%v", n, err)
	}

	// Second attempt must be a no-op and must not rotate the token.
	n, err = MarkVerified(ctx, db, "ref-v", "tok-2")
	if err != nil || n != 0 {
		t.Fatalf("second MarkVerified: n=%d err=%v, want 0 affected", n, err)
	}

	got, err := GetTransactionByReference(ctx, db, "ref-v")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Verified || got.DownloadToken == nil || *got.DownloadToken != "tok-1" {
		t.Fatalf("token rotated or lost: %+v", got)
	}
}

func TestMarkVerified_ConcurrentSingleWinner(t *testing.T) {
	db := newRepoDB(t, &domain.Product{}, &domain.Transaction{})
	p := seedProduct(t, db)
	ctx := context.Background()

	if _, err := CreateTransaction(ctx, db, "a@b.com", p.ID, "ref-race"); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := MarkVerified(ctx, db, "ref-race", fmt.Sprintf("tok-%d", i))
			if err != nil {
				t.Errorf("MarkVerified: %v", err)
				return
			}
			if n == 1 {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	got, err := GetTransactionByReference(ctx, db, "ref-race")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Verified || got.DownloadToken == nil {
		t.Fatalf("row not verified after race: %+v", got)
	}
}

func TestGetTransactionByToken_OnlyVerified(t *testing.T) {
	db := newRepoDB(t, &domain.Product{}, &domain.Transaction{})
	p := seedProduct(t, db)
	ctx := context.Background()

	if _, err := CreateTransaction(ctx, db, "a@b.com", p.ID, "ref-t"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Force an inconsistent row: token present but unverified. The lookup
	// must still refuse to match it.
	if err := db.Model(&domain.Transaction{}).
		Where("reference = ?", "ref-t").
		UpdateColumn("download_token", "sneaky-token").Error; err != nil {
		t.Fatalf("force token: %v", err)
	}
	if _, err := GetTransactionByToken(ctx, db, "sneaky-token"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("unverified row matched by token: %v", err)
	}

	if _, err := MarkVerified(ctx, db, "ref-t", "good-token"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := GetTransactionByToken(ctx, db, "good-token")
	if err != nil {
		t.Fatalf("GetTransactionByToken: %v", err)
	}
	if got.Reference != "ref-t" || !got.Verified {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestIncrementDownloadCount(t *testing.T) {
	db := newRepoDB(t, &domain.Product{}, &domain.Transaction{})
	p := seedProduct(t, db)
	ctx := context.Background()

	if _, err := CreateTransaction(ctx, db, "a@b.com", p.ID, "ref-c"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := MarkVerified(ctx, db, "ref-c", "tok-c"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := IncrementDownloadCount(ctx, db, "tok-c"); err != nil {
			t.Fatalf("IncrementDownloadCount: %v", err)
		}
	}
	got, err := GetTransactionByToken(ctx, db, "tok-c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DownloadCount != 3 {
		t.Fatalf("download_count = %d, want 3", got.DownloadCount)
	}
}
