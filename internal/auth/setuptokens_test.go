package auth

import (
	"encoding/base64"
	"testing"
)

func TestNewSetupToken(t *testing.T) {
	raw, hash, err := NewSetupToken()
	if err != nil {
		t.Fatalf("NewSetupToken: %v", err)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}
	if len(decoded) != 32 {
		t.Fatalf("expected 256 bits of entropy, got %d bytes", len(decoded))
	}
	if hash != HashSetupToken(raw) {
		t.Fatalf("hash mismatch")
	}
	if hash == raw {
		t.Fatalf("expected hash to differ from raw token")
	}

	other, _, err := NewSetupToken()
	if err != nil {
		t.Fatalf("NewSetupToken: %v", err)
	}
	if other == raw {
		t.Fatalf("expected distinct tokens")
	}
}

func TestTokenRef(t *testing.T) {
	ref := TokenRef("abc")
	if len(ref) != 12 {
		t.Fatalf("unexpected ref length: %d", len(ref))
	}
	if ref == "abc" {
		t.Fatalf("ref must not echo the token")
	}
}
