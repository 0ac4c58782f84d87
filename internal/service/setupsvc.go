package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SafeCircleserver/internal/auth"
	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/metrics"
)

const defaultSetupTokenTTL = 24 * time.Hour

type SetupTokensStore interface {
	CreateSetupToken(ctx context.Context, token domain.SetupToken) error
	GetSetupToken(ctx context.Context, tokenHash string) (domain.SetupToken, error)
	UpdateSetupStatus(ctx context.Context, tokenHash string, status domain.SetupStatus, when time.Time) error
	// CompleteSetup moves a pending token to completed and stores the sealed
	// credential as one write. Nothing changes when either part fails.
	CompleteSetup(ctx context.Context, tokenHash, contactEmail, encryptedToken string, when time.Time) error
}

type ContactTokensStore interface {
	UpsertContactToken(ctx context.Context, contactEmail, encryptedToken string, when time.Time) error
	GetContactToken(ctx context.Context, contactEmail string) (domain.ContactToken, error)
	TouchContactToken(ctx context.Context, contactEmail string, when time.Time) error
}

type TokenCipher interface {
	Encrypt(plaintext, contactEmail string) (string, error)
	Decrypt(ciphertext, contactEmail string) (string, error)
}

type SetupEmailer interface {
	SendSetupEmail(ctx context.Context, contactEmail, setupToken, userEmail string) error
}

type CompleteContactAuthInput struct {
	SetupToken   string
	ContactEmail string
	RefreshToken string
	IDToken      string
}

// SetupService runs the trusted-contact handshake: a user issues a single-use
// token for a contact, the contact presents it back with a Drive credential.
type SetupService struct {
	Tokens   SetupTokensStore
	Contacts ContactTokensStore
	Cipher   TokenCipher
	Emails   SetupEmailer
	Notifier ContactAuthNotifier

	// When GoogleClientID is set, completing a handshake needs a Google ID
	// token for the contact.
	GoogleClientID string
	VerifyIDToken  auth.IDTokenVerifier

	TokenTTL time.Duration
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *SetupService) IssueSetupToken(ctx context.Context, userEmail, contactEmail string) (string, error) {
	if s.Tokens == nil {
		return "", errors.New("setup tokens unavailable")
	}
	userEmail = strings.TrimSpace(userEmail)
	contactEmail = strings.TrimSpace(contactEmail)
	fields := map[string]string{}
	if userEmail == "" {
		fields["userEmail"] = "required"
	}
	if contactEmail == "" {
		fields["contactGoogleEmail"] = "required"
	}
	if len(fields) > 0 {
		return "", domain.NewValidationError(fields)
	}

	now := s.now()
	raw, hash, err := auth.NewSetupToken()
	if err != nil {
		return "", err
	}
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultSetupTokenTTL
	}
	token := domain.SetupToken{
		TokenHash:          hash,
		UserEmail:          userEmail,
		ContactGoogleEmail: contactEmail,
		Status:             domain.SetupStatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}
	if err := s.Tokens.CreateSetupToken(ctx, token); err != nil {
		return "", err
	}
	s.Metrics.SetupTokenIssued()
	s.logger().Info("setup token issued", "token_ref", auth.TokenRef(raw), "user_email", userEmail)
	return raw, nil
}

// InviteContact issues a setup token and stages the email carrying its link.
func (s *SetupService) InviteContact(ctx context.Context, userEmail, contactEmail string) error {
	if s.Emails == nil {
		return errors.New("email queue unavailable")
	}
	raw, err := s.IssueSetupToken(ctx, userEmail, contactEmail)
	if err != nil {
		return err
	}
	return s.Emails.SendSetupEmail(ctx, strings.TrimSpace(contactEmail), raw, strings.TrimSpace(userEmail))
}

// VerifyContactAuth reports whether raw is a usable token issued for
// contactEmail. Emails are compared exactly. It never mutates state.
func (s *SetupService) VerifyContactAuth(ctx context.Context, raw, contactEmail string) (bool, error) {
	_, ok, err := s.checkToken(ctx, raw, contactEmail, true)
	return ok, err
}

// ValidateSetupToken is VerifyContactAuth without the contact identity check.
func (s *SetupService) ValidateSetupToken(ctx context.Context, raw string) (bool, error) {
	_, ok, err := s.checkToken(ctx, raw, "", false)
	return ok, err
}

func (s *SetupService) checkToken(ctx context.Context, raw, contactEmail string, matchContact bool) (domain.SetupToken, bool, error) {
	if s.Tokens == nil {
		return domain.SetupToken{}, false, errors.New("setup tokens unavailable")
	}
	if raw == "" {
		return domain.SetupToken{}, false, nil
	}
	token, err := s.Tokens.GetSetupToken(ctx, auth.HashSetupToken(raw))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SetupToken{}, false, nil
		}
		return domain.SetupToken{}, false, err
	}
	if !token.Usable(s.now()) {
		return token, false, nil
	}
	if matchContact && token.ContactGoogleEmail != contactEmail {
		return token, false, nil
	}
	return token, true, nil
}

func (s *SetupService) UpdateSetupStatus(ctx context.Context, raw string, status domain.SetupStatus) error {
	if s.Tokens == nil {
		return errors.New("setup tokens unavailable")
	}
	return s.Tokens.UpdateSetupStatus(ctx, auth.HashSetupToken(raw), status, s.now())
}

func (s *SetupService) StoreEncryptedToken(ctx context.Context, contactEmail, credential string) error {
	if s.Contacts == nil || s.Cipher == nil {
		return errors.New("contact tokens unavailable")
	}
	sealed, err := s.Cipher.Encrypt(credential, contactEmail)
	if err != nil {
		return fmt.Errorf("encrypt contact token: %w", err)
	}
	return s.Contacts.UpsertContactToken(ctx, contactEmail, sealed, s.now())
}

func (s *SetupService) CompleteContactAuth(ctx context.Context, in CompleteContactAuthInput) error {
	logger := s.logger()
	ref := auth.TokenRef(in.SetupToken)

	if s.GoogleClientID != "" {
		if err := s.checkContactIdentity(ctx, in); err != nil {
			s.Metrics.ContactAuth("unauthenticated")
			logger.Warn("contact identity rejected", "token_ref", ref, "err", err)
			return err
		}
	}

	token, ok, err := s.checkToken(ctx, in.SetupToken, in.ContactEmail, true)
	if err != nil {
		return err
	}
	if !ok {
		s.Metrics.ContactAuth("invalid")
		logger.Warn("setup token rejected", "token_ref", ref)
		return domain.ErrSetupTokenInvalid
	}

	if s.Cipher == nil {
		return errors.New("contact tokens unavailable")
	}
	sealed, err := s.Cipher.Encrypt(in.RefreshToken, in.ContactEmail)
	if err != nil {
		return fmt.Errorf("encrypt contact token: %w", err)
	}
	err = s.Tokens.CompleteSetup(ctx, auth.HashSetupToken(in.SetupToken), in.ContactEmail, sealed, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrSetupTokenInvalid) {
			s.Metrics.ContactAuth("invalid")
		}
		return err
	}
	s.Metrics.ContactAuth("completed")
	logger.Info("contact authorized", "token_ref", ref, "user_email", token.UserEmail)

	if s.Notifier != nil {
		if err := s.Notifier.NotifyContactAuthorized(ctx, token.UserEmail, in.ContactEmail); err != nil {
			logger.Error("contact authorized notification failed", "err", err, "user_email", token.UserEmail)
		}
	}
	return nil
}

func (s *SetupService) checkContactIdentity(ctx context.Context, in CompleteContactAuthInput) error {
	if strings.TrimSpace(in.IDToken) == "" {
		return fmt.Errorf("%w: id token required", domain.ErrUnauthorized)
	}
	verify := s.VerifyIDToken
	if verify == nil {
		verify = auth.VerifyGoogleIDToken
	}
	claims, err := verify(ctx, in.IDToken, s.GoogleClientID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if !claims.EmailVerified || !strings.EqualFold(claims.Email, in.ContactEmail) {
		return fmt.Errorf("%w: id token email does not match contact", domain.ErrUnauthorized)
	}
	return nil
}

func (s *SetupService) now() time.Time {
	return utcMillis(s.Now)
}

// utcMillis reads clock, or the wall clock when nil, at the millisecond
// precision the stores keep.
func utcMillis(clock func() time.Time) time.Time {
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Millisecond)
}

func (s *SetupService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
