// Package storage — local-disk implementation of the Store interface.
//
// Objects live under a configured root directory. Signed URLs are short-lived
// HMAC-signed JWTs carrying the object path and expiry; the public file
// endpoint validates the token and streams the object, so the raw path is
// never exposed to clients.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// pathClaim is the JWT claim carrying the signed object path.
const pathClaim = "path"

// ErrBadSignedToken indicates an expired, malformed, or forged URL token.
var ErrBadSignedToken = errors.New("invalid signed url token")

// LocalStore stores objects on the local filesystem and signs access URLs
// with an HMAC secret. It is safe for concurrent use.
type LocalStore struct {
	// Root is the directory that holds all private objects.
	Root string
	// BaseURL is the public prefix of the file-serving endpoint,
	// e.g. "http://localhost:8080/files".
	BaseURL string
	// Secret is the HMAC key used to sign URL tokens.
	Secret []byte
	// now is a test seam for clock control.
	now func() time.Time
}

// NewLocalStore constructs a LocalStore rooted at dir, serving signed URLs
// under baseURL. The root directory is created if missing.
func NewLocalStore(dir, baseURL string, secret []byte) (*LocalStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("storage: signing secret must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &LocalStore{
		Root:    dir,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Secret:  secret,
		now:     time.Now,
	}, nil
}

// cleanPath normalizes and validates an object path, rejecting traversal
// outside the store root.
func (s *LocalStore) cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	if p == "" {
		return "", ErrObjectMissing
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrBadSignedToken
	}
	return clean, nil
}

// Upload writes the object under path, creating parent directories as needed.
// It returns the normalized stored path.
func (s *LocalStore) Upload(ctx context.Context, path string, r io.Reader) (string, error) {
	clean, err := s.cleanPath(path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := filepath.Join(s.Root, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return clean, nil
}

// SignedURL mints a pre-authorized URL for the object at path, valid for ttl.
// The object must exist at signing time; a missing object yields
// ErrObjectMissing so callers can distinguish data cleanup from outages.
func (s *LocalStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (*Signed, error) {
	clean, err := s.cleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(s.Root, clean)); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectMissing
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	exp := s.now().UTC().Add(ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		pathClaim: clean,
		"exp":     exp.Unix(),
		"iat":     s.now().UTC().Unix(),
	})
	signed, err := tok.SignedString(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Signed{
		URL:       s.BaseURL + "?token=" + url.QueryEscape(signed),
		ExpiresAt: exp,
	}, nil
}

// OpenObject opens the object at its stored path for streaming, returning
// the content and base filename. Unlike Open it performs no token check, so
// it must only back routes that serve public assets (product thumbnails).
func (s *LocalStore) OpenObject(ctx context.Context, path string) (io.ReadCloser, string, error) {
	clean, err := s.cleanPath(path)
	if err != nil {
		return nil, "", ErrObjectMissing
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	f, err := os.Open(filepath.Join(s.Root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrObjectMissing
		}
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return f, filepath.Base(clean), nil
}

// Remove deletes the object at path. A missing object is treated as already
// removed.
func (s *LocalStore) Remove(ctx context.Context, path string) error {
	clean, err := s.cleanPath(path)
	if err != nil {
		if errors.Is(err, ErrObjectMissing) {
			return nil
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.Root, clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Open validates a URL token minted by SignedURL and opens the referenced
// object for streaming. It returns ErrBadSignedToken for expired, malformed,
// or forged tokens and ErrObjectMissing when the object is gone.
func (s *LocalStore) Open(ctx context.Context, urlToken string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	parsed, err := jwt.Parse(urlToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return nil, "", ErrBadSignedToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", ErrBadSignedToken
	}
	p, _ := claims[pathClaim].(string)
	clean, err := s.cleanPath(p)
	if err != nil {
		return nil, "", ErrBadSignedToken
	}
	f, err := os.Open(filepath.Join(s.Root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrObjectMissing
		}
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return f, filepath.Base(clean), nil
}
