package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SafeCircleserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SetupTokensStore struct {
	pool *pgxpool.Pool
}

func NewSetupTokensStore(pool *pgxpool.Pool) *SetupTokensStore {
	return &SetupTokensStore{pool: pool}
}

// CreateSetupToken writes the token and its pending_setups audit row together.
func (s *SetupTokensStore) CreateSetupToken(ctx context.Context, token domain.SetupToken) error {
	const insertToken = `
		INSERT INTO setup_tokens (
			token_hash, user_email, contact_google_email, status, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	const insertPending = `
		INSERT INTO pending_setups (token_hash, user_email, contact_google_email, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertToken,
			token.TokenHash,
			token.UserEmail,
			token.ContactGoogleEmail,
			string(token.Status),
			token.CreatedAt,
			token.ExpiresAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertPending,
			token.TokenHash,
			token.UserEmail,
			token.ContactGoogleEmail,
			token.CreatedAt,
			token.ExpiresAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("create setup token: %w", err)
	}
	return nil
}

func (s *SetupTokensStore) GetSetupToken(ctx context.Context, tokenHash string) (domain.SetupToken, error) {
	const q = `
		SELECT token_hash, user_email, contact_google_email, status, created_at, expires_at, completed_at
		FROM setup_tokens
		WHERE token_hash = $1
	`

	var (
		token       domain.SetupToken
		status      string
		completedAt pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, q, tokenHash).Scan(
		&token.TokenHash,
		&token.UserEmail,
		&token.ContactGoogleEmail,
		&status,
		&token.CreatedAt,
		&token.ExpiresAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SetupToken{}, domain.ErrNotFound
		}
		return domain.SetupToken{}, fmt.Errorf("get setup token: %w", err)
	}
	token.Status = domain.SetupStatus(status)
	token.CompletedAt = timestamptzPtr(completedAt)
	return token, nil
}

// UpdateSetupStatus moves a pending token to status. Tokens that are missing
// or no longer pending are reported as domain.ErrSetupTokenInvalid.
func (s *SetupTokensStore) UpdateSetupStatus(ctx context.Context, tokenHash string, status domain.SetupStatus, when time.Time) error {
	const q = `
		UPDATE setup_tokens
		SET status = $2::text,
			completed_at = CASE WHEN $2::text = 'completed' THEN $3::timestamptz ELSE completed_at END
		WHERE token_hash = $1 AND status = 'pending'
	`
	tag, err := s.pool.Exec(ctx, q, tokenHash, string(status), when)
	if err != nil {
		return fmt.Errorf("update setup status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSetupTokenInvalid
	}
	return nil
}

var errSetupNotPending = errors.New("setup token not pending")

// CompleteSetup marks a pending token completed and stores the contact's
// sealed credential in one transaction. A token that is missing or no longer
// pending leaves both tables untouched and yields domain.ErrSetupTokenInvalid.
func (s *SetupTokensStore) CompleteSetup(ctx context.Context, tokenHash, contactEmail, encryptedToken string, when time.Time) error {
	const complete = `
		UPDATE setup_tokens
		SET status = 'completed', completed_at = $2
		WHERE token_hash = $1 AND status = 'pending'
	`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, complete, tokenHash, when)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errSetupNotPending
		}
		_, err = tx.Exec(ctx, upsertContactTokenSQL, contactEmail, encryptedToken, when)
		return err
	})
	if err != nil {
		if errors.Is(err, errSetupNotPending) {
			return domain.ErrSetupTokenInvalid
		}
		return fmt.Errorf("complete setup: %w", err)
	}
	return nil
}
