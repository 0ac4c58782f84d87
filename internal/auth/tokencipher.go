package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	cipherVersion = "v1"
	hkdfInfo      = "safecircle contact token v1"
)

var ErrCiphertextInvalid = errors.New("ciphertext_invalid")

// TokenCipher seals contact credentials at rest with XChaCha20-Poly1305.
// The contact email is bound as associated data.
type TokenCipher struct {
	aead cipher.AEAD
}

func NewTokenCipher(secret []byte) (*TokenCipher, error) {
	if len(secret) < 16 {
		return nil, errors.New("token encryption secret must be at least 16 bytes")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// NewEphemeralTokenCipher uses a random key. Anything it encrypts is lost on restart.
func NewEphemeralTokenCipher() (*TokenCipher, error) {
	secret := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	return NewTokenCipher(secret)
}

func (c *TokenCipher) Encrypt(plaintext, contactEmail string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(contactEmail))
	return cipherVersion + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *TokenCipher) Decrypt(ciphertext, contactEmail string) (string, error) {
	version, body, ok := strings.Cut(ciphertext, ".")
	if !ok || version != cipherVersion {
		return "", ErrCiphertextInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrCiphertextInvalid
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(contactEmail))
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plain), nil
}
