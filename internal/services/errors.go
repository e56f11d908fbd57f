// Package services defines the business logic for the catalog, the purchase
// ledger, and download authorization. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

// Catalog errors.
var (
	// ErrProductNotFound indicates that the requested product does not exist
	// or has been removed from the catalog.
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidProduct is returned when product input fails validation
	// (empty title, non-positive price, missing files).
	ErrInvalidProduct = errors.New("invalid product")
)

// Ledger errors.
var (
	// ErrTransactionNotFound indicates that no transaction exists for the
	// given checkout reference.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateReference indicates a create attempt reusing another
	// purchaser's checkout reference. A retry by the original purchaser is
	// not an error; they receive the existing row instead of a second one.
	ErrDuplicateReference = errors.New("reference already used")

	// ErrInvalidTransaction is returned when checkout input fails validation
	// (missing email, product id, or reference).
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrPaymentNotConfirmed is returned when the payment gateway does not
	// report the charge as successful, so verification must not proceed.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")

	// ErrGatewayUnavailable indicates a transient gateway failure during
	// server-side charge confirmation. Safe to retry; never rendered as an
	// invalid reference.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Download authorization errors.
var (
	// ErrInvalidToken indicates that a download token does not resolve to a
	// verified transaction. Deliberately coarse: callers must not learn
	// whether the token never existed or belongs to an unverified purchase.
	ErrInvalidToken = errors.New("invalid download token")

	// ErrProductMissing indicates a verified purchase whose product record
	// no longer exists (deleted after purchase). Distinct from
	// ErrInvalidToken so operators can tell data cleanup from abuse.
	ErrProductMissing = errors.New("purchased product no longer exists")

	// ErrStorageUnavailable indicates the object store could not produce a
	// signed URL. Transient; safe to retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
