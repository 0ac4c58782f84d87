package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

type ExternalTokenClaims struct {
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
}

// IDTokenVerifier checks a Google-issued ID token for the given audience.
type IDTokenVerifier func(ctx context.Context, tokenString, expectedAud string) (*ExternalTokenClaims, error)

func VerifyGoogleIDToken(ctx context.Context, tokenString, expectedAud string) (*ExternalTokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errors.New("missing id token")
	}
	if strings.TrimSpace(expectedAud) == "" {
		return nil, errors.New("missing google client id")
	}

	payload, err := idtoken.Validate(ctx, tokenString, expectedAud)
	if err != nil {
		return nil, err
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}

	email := ""
	if raw, ok := payload.Claims["email"]; ok {
		if v, ok := raw.(string); ok {
			email = v
		}
	}
	verified := false
	if raw, ok := payload.Claims["email_verified"]; ok {
		if v, ok := raw.(bool); ok {
			verified = v
		}
	}

	return &ExternalTokenClaims{
		Issuer:        payload.Issuer,
		Subject:       payload.Subject,
		Email:         strings.TrimSpace(email),
		EmailVerified: verified,
	}, nil
}
