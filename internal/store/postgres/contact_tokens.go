package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SafeCircleserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ContactTokensStore struct {
	pool *pgxpool.Pool
}

func NewContactTokensStore(pool *pgxpool.Pool) *ContactTokensStore {
	return &ContactTokensStore{pool: pool}
}

const upsertContactTokenSQL = `
	INSERT INTO contact_tokens (contact_email, encrypted_token, created_at, last_used)
	VALUES ($1, $2, $3, $3)
	ON CONFLICT (contact_email)
	DO UPDATE SET
		encrypted_token = EXCLUDED.encrypted_token,
		created_at = EXCLUDED.created_at,
		last_used = EXCLUDED.last_used
`

// UpsertContactToken replaces whatever is stored for the contact.
func (s *ContactTokensStore) UpsertContactToken(ctx context.Context, contactEmail, encryptedToken string, when time.Time) error {
	if _, err := s.pool.Exec(ctx, upsertContactTokenSQL, contactEmail, encryptedToken, when); err != nil {
		return fmt.Errorf("upsert contact token: %w", err)
	}
	return nil
}

func (s *ContactTokensStore) GetContactToken(ctx context.Context, contactEmail string) (domain.ContactToken, error) {
	const q = `
		SELECT contact_email, encrypted_token, created_at, last_used
		FROM contact_tokens
		WHERE contact_email = $1
	`

	var token domain.ContactToken
	err := s.pool.QueryRow(ctx, q, contactEmail).Scan(
		&token.ContactEmail,
		&token.EncryptedToken,
		&token.CreatedAt,
		&token.LastUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ContactToken{}, domain.ErrNotFound
		}
		return domain.ContactToken{}, fmt.Errorf("get contact token: %w", err)
	}
	return token, nil
}

func (s *ContactTokensStore) TouchContactToken(ctx context.Context, contactEmail string, when time.Time) error {
	const q = `
		UPDATE contact_tokens
		SET last_used = $2
		WHERE contact_email = $1
	`
	tag, err := s.pool.Exec(ctx, q, contactEmail, when)
	if err != nil {
		return fmt.Errorf("touch contact token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
