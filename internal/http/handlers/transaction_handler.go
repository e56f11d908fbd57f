// Transaction HTTP handlers.
//
// This file exposes REST endpoints for the purchase ledger:
//   - POST /transactions         (record a checkout attempt)
//   - POST /transactions/verify  (client-triggered verification fallback)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// creation exists for the same (email, reference, key), the handler replays the
// recorded transaction and sets `Idempotency-Replayed: true`.
//
// Verification trust boundary: this endpoint never takes the client's word for
// a payment. The ledger service confirms the charge with the gateway before
// flipping the verified flag; the authoritative path remains the webhook.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-store-backend/internal/repo"
	"github.com/tbourn/go-store-backend/internal/services"
)

//
// DTOs
//

// CreateTransactionRequest is the JSON payload for recording a checkout attempt.
type CreateTransactionRequest struct {
	// Email is the purchaser address shared with the payment gateway.
	Email string `json:"email" binding:"required,email" example:"buyer@example.com"`
	// ProductID identifies the purchased product.
	ProductID string `json:"product_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Reference is the checkout correlation key quoted to the gateway.
	Reference string `json:"reference" binding:"required" example:"1693050000000"`
}

// VerifyTransactionRequest is the JSON payload for the verification fallback.
type VerifyTransactionRequest struct {
	// Reference is the checkout correlation key to verify.
	Reference string `json:"reference" binding:"required" example:"1693050000000"`
}

//
// Helpers
//

// middlewareGetIdempotencyKey extracts an idempotency key if an upstream
// middleware has already validated/stashed it. The fallback behavior reads
// the "Idempotency-Key" header directly when no dedicated middleware exists.
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

//
// Handlers
//

// CreateTransaction godoc
// @ID          createTransaction
// @Summary     Record a checkout attempt
// @Description Creates an unverified ledger row for the given reference.
// @Description A reference reused by the same purchaser returns the original row (200, not 201);
// @Description reuse by a different email is rejected with 409.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Transactions
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateTransactionRequest  true  "Checkout payload"
//
// @Success     201  {object}  domain.Transaction  "New ledger row"
// @Success     200  {object}  domain.Transaction  "Existing row for a reused reference"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Reference already used by another purchaser"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /transactions [post]
func (h *Handlers) CreateTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email, product_id and reference required")
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.ledger.(*services.LedgerService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, req.Email, req.Reference, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetTransactionByReference(ctx, svc.DB, req.Reference); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, rec.Status, prev)
					return
				}
			}
		}
	}

	tx, created, err := h.ledger.Create(ctx, req.Email, req.ProductID, req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
		case errors.Is(err, services.ErrInvalidTransaction):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email, product_id and reference required")
		case errors.Is(err, services.ErrDuplicateReference):
			fail(c, http.StatusConflict, ErrCodeConflict, "reference already used")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}

	status := http.StatusCreated
	if !created {
		// Duplicate reference: observably a no-op.
		status = http.StatusOK
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && created {
		if svc, okSvc := h.ledger.(*services.LedgerService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, req.Email, req.Reference, idemKey, tx.ID, status, ttl)
		}
	}

	ok(c, status, tx)
}

// VerifyTransaction godoc
// @ID          verifyTransaction
// @Summary     Verify a payment (success-page fallback)
// @Description Confirms the charge with the payment gateway and, on success, marks the
// @Description transaction verified and returns it with its download token. Idempotent:
// @Description re-verifying returns the same token, never a new one.
// @Tags        Transactions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.VerifyTransactionRequest  true  "Reference to verify"
//
// @Success     200  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     402  {object}  handlers.ErrorResponse  "Charge not successful"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown reference"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment gateway unavailable"
// @Router      /transactions/verify [post]
func (h *Handlers) VerifyTransaction(c *gin.Context) {
	var req VerifyTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reference) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reference required")
		return
	}

	tx, err := h.ledger.Verify(c.Request.Context(), req.Reference, true)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTransactionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
		case errors.Is(err, services.ErrPaymentNotConfirmed):
			fail(c, http.StatusPaymentRequired, ErrCodePaymentFailed, "charge not successful")
		case errors.Is(err, services.ErrGatewayUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeGatewayUnavailable, "payment gateway unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, tx)
}
