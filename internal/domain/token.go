// Package domain defines the core persistence models for the application.
// This file provides generation of download tokens: the capability strings
// stored on verified transactions and later exchanged for signed URLs.
package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is the entropy of a download token. 32 bytes (256 bits) keeps
// tokens unguessable even under offline enumeration.
const tokenBytes = 32

// NewDownloadToken returns a cryptographically random, URL-safe capability
// string. Tokens are opaque; nothing is encoded in them. They are minted
// exactly once per transaction, by the ledger's verify operation.
func NewDownloadToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate download token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
