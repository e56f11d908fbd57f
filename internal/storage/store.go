// Package storage abstracts the private object store that holds product
// files. The core services depend only on the Store interface; the concrete
// backend (local disk in this repo) is injected at startup so the download
// and catalog flows compose with any storage engine and stay testable with
// fakes.
//
// Authorization never happens here: the store signs and serves bytes, the
// ledger decides who may obtain a signed URL.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUnavailable indicates a transient storage failure (signing or I/O).
// Callers may retry with backoff; it must never be conflated with an
// invalid-token outcome.
var ErrUnavailable = errors.New("object store unavailable")

// ErrObjectMissing indicates that the referenced object no longer exists.
var ErrObjectMissing = errors.New("object missing")

// Signed is a time-boxed, pre-authorized URL granting temporary read access
// to an otherwise private object.
type Signed struct {
	URL       string
	ExpiresAt time.Time
}

// Store is the contract consumed by the catalog and download services.
//
// Upload and Remove serve the admin CRUD flow; SignedURL serves the
// download-authorization flow. All methods honor the provided context.
type Store interface {
	// Upload persists the object under path and returns the stored path.
	Upload(ctx context.Context, path string, r io.Reader) (string, error)

	// SignedURL produces a pre-authorized URL for the object at path,
	// valid for ttl from now.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (*Signed, error)

	// Remove deletes the object at path. Removing a missing object is not
	// an error.
	Remove(ctx context.Context, path string) error
}
