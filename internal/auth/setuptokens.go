package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const setupTokenBytes = 32

// NewSetupToken returns a random url-safe token and the hash stored in its place.
func NewSetupToken() (string, string, error) {
	buf := make([]byte, setupTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashSetupToken(raw), nil
}

func HashSetupToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenRef is a short, non-reversible reference to a token that is safe to log.
func TokenRef(raw string) string {
	return HashSetupToken(raw)[:12]
}
