// Package services – LedgerService
//
// This file implements the LedgerService, the durable record of purchase
// attempts and the only place where a transaction can become verified.
// It enforces the two core invariants of the purchase flow:
//
//   - a checkout reference maps to exactly one transaction row, ever;
//   - a download token is assigned if and only if the transaction is
//     verified, and it is assigned exactly once (re-verification returns
//     the same token, concurrent verification mints exactly one).
//
// Verification is a conditional atomic update at the storage layer rather
// than read-then-write, so duplicate webhook deliveries and double-navigated
// success pages are safe.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-store-backend/internal/domain"
	"github.com/tbourn/go-store-backend/internal/payment"
	"github.com/tbourn/go-store-backend/internal/repo"
)

// TransactionRepo defines the repository contract required by LedgerService.
type TransactionRepo interface {
	// CreateTransaction inserts a new unverified ledger row; returns
	// repo.ErrDuplicateReference when the reference is already taken.
	CreateTransaction(ctx context.Context, db *gorm.DB, email, productID, reference string) (*domain.Transaction, error)

	// GetTransactionByReference fetches a row by checkout reference.
	GetTransactionByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Transaction, error)

	// GetTransactionByToken fetches a verified row by download token.
	GetTransactionByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Transaction, error)

	// MarkVerified performs the conditional verified/token update and
	// reports how many rows it changed.
	MarkVerified(ctx context.Context, db *gorm.DB, reference, token string) (int64, error)
}

// PaymentGateway is the slice of the payment adapter the ledger needs for
// server-side charge confirmation.
type PaymentGateway interface {
	// VerifyCharge returns nil only when the gateway reports the charge
	// identified by reference as successful.
	VerifyCharge(ctx context.Context, reference string) error
}

// LedgerService implements the purchase-attempt use-cases: optimistic
// creation at checkout, verification on payment confirmation, and token
// lookup for the download flow.
type LedgerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the transaction repository used by this service.
	Repo TransactionRepo
	// Products resolves the referential link to the catalog.
	Products ProductRepo
	// Gateway confirms charges server-side. May be nil in tests; Verify
	// with confirm=true then fails closed.
	Gateway PaymentGateway
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(db *gorm.DB, r TransactionRepo, products ProductRepo, gw PaymentGateway) *LedgerService {
	return &LedgerService{DB: db, Repo: r, Products: products, Gateway: gw}
}

// Create records a purchase attempt for the given purchaser, product, and
// checkout reference. The product must exist. A reused reference is not an
// error for the original purchaser: their row is returned and created=false,
// so retried checkout callbacks cannot produce two ledger rows. A reference
// reused by a different email fails with ErrDuplicateReference.
func (s *LedgerService) Create(ctx context.Context, email, productID, reference string) (tx *domain.Transaction, created bool, err error) {
	email = strings.TrimSpace(email)
	reference = strings.TrimSpace(reference)
	if email == "" || productID == "" || reference == "" {
		return nil, false, ErrInvalidTransaction
	}

	// Referential integrity: resolve the product before inserting.
	if _, err := s.Products.GetProduct(ctx, s.DB, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrProductNotFound
		}
		return nil, false, err
	}

	tx, err = s.Repo.CreateTransaction(ctx, s.DB, email, productID, reference)
	if err == nil {
		return tx, true, nil
	}
	if !errors.Is(err, repo.ErrDuplicateReference) {
		return nil, false, err
	}

	// Duplicate reference: fetch-and-return the existing record so the
	// second call is observably a no-op. Only the original purchaser gets
	// the row back; a different email reusing a reference is a conflict,
	// not a retry.
	existing, gerr := s.Repo.GetTransactionByReference(ctx, s.DB, reference)
	if gerr != nil {
		return nil, false, gerr
	}
	if !strings.EqualFold(existing.Email, email) {
		return nil, false, ErrDuplicateReference
	}
	return existing, false, nil
}

// Verify marks the transaction for reference as paid and returns it with its
// download token. It is idempotent: an already-verified transaction is
// returned unchanged, never re-tokened.
//
// When confirm is true the gateway is asked first whether the charge really
// succeeded; this is the path for client-triggered verification (success
// page landing), which must not be trusted on its own. Webhook-driven
// verification passes confirm=false because the webhook signature already
// authenticates the gateway.
//
// Concurrency: the verified/token flip is a single conditional UPDATE.
// Exactly one of N concurrent calls performs the mutation; the others
// observe zero affected rows and re-read the winner's token.
func (s *LedgerService) Verify(ctx context.Context, reference string, confirm bool) (*domain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrTransactionNotFound
	}

	tx, err := s.Repo.GetTransactionByReference(ctx, s.DB, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if tx.Verified {
		return tx, nil
	}

	if confirm {
		if s.Gateway == nil {
			return nil, ErrGatewayUnavailable
		}
		switch err := s.Gateway.VerifyCharge(ctx, reference); {
		case err == nil:
			// charge confirmed
		case errors.Is(err, payment.ErrUnavailable):
			return nil, ErrGatewayUnavailable
		default:
			return nil, ErrPaymentNotConfirmed
		}
	}

	token, err := domain.NewDownloadToken()
	if err != nil {
		return nil, err
	}

	n, err := s.Repo.MarkVerified(ctx, s.DB, reference, token)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the race: another caller verified first. Their token stands.
		return s.Repo.GetTransactionByReference(ctx, s.DB, reference)
	}
	return s.Repo.GetTransactionByReference(ctx, s.DB, reference)
}

// GetByToken returns the verified transaction carrying the given download
// token, or ErrInvalidToken. Unverified transactions can never match.
func (s *LedgerService) GetByToken(ctx context.Context, token string) (*domain.Transaction, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	tx, err := s.Repo.GetTransactionByToken(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return tx, nil
}
