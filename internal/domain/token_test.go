package domain

import (
	"encoding/base64"
	"testing"
)

func TestNewDownloadToken_LengthAndCharset(t *testing.T) {
	tok, err := NewDownloadToken()
	if err != nil {
		t.Fatalf("NewDownloadToken: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("token is not URL-safe base64: %v", err)
	}
	if len(raw) != tokenBytes {
		t.Fatalf("token entropy = %d bytes, want %d", len(raw), tokenBytes)
	}
}

func TestNewDownloadToken_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		tok, err := NewDownloadToken()
		if err != nil {
			t.Fatalf("NewDownloadToken: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = struct{}{}
	}
}
