package postgres

import (
	"context"
	"fmt"
	"time"

	"SafeCircleserver/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationTokensStore struct {
	pool *pgxpool.Pool
}

func NewNotificationTokensStore(pool *pgxpool.Pool) *NotificationTokensStore {
	return &NotificationTokensStore{pool: pool}
}

func (s *NotificationTokensStore) UpsertToken(ctx context.Context, userEmail, token, platform string, when time.Time) (domain.NotificationToken, error) {
	const q = `
		INSERT INTO notification_tokens (user_email, token, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (token)
		DO UPDATE SET
			user_email = EXCLUDED.user_email,
			platform = EXCLUDED.platform,
			updated_at = EXCLUDED.updated_at
		RETURNING id, user_email, token, platform, created_at, updated_at
	`

	var (
		idUUID    pgtype.UUID
		createdAt time.Time
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, q, userEmail, token, platform, when).Scan(
		&idUUID,
		&userEmail,
		&token,
		&platform,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.NotificationToken{}, fmt.Errorf("upsert notification token: %w", err)
	}

	return domain.NotificationToken{
		ID:        uuidOrEmpty(idUUID),
		UserEmail: userEmail,
		Token:     token,
		Platform:  platform,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *NotificationTokensStore) DeleteToken(ctx context.Context, userEmail, token string) error {
	const q = `
		DELETE FROM notification_tokens
		WHERE user_email = $1 AND token = $2
	`
	if _, err := s.pool.Exec(ctx, q, userEmail, token); err != nil {
		return fmt.Errorf("delete notification token: %w", err)
	}
	return nil
}

func (s *NotificationTokensStore) ListTokens(ctx context.Context, userEmail string) ([]domain.NotificationToken, error) {
	const q = `
		SELECT id, user_email, token, platform, created_at, updated_at
		FROM notification_tokens
		WHERE user_email = $1
		ORDER BY updated_at DESC
	`

	rows, err := s.pool.Query(ctx, q, userEmail)
	if err != nil {
		return nil, fmt.Errorf("list notification tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationToken
	for rows.Next() {
		var (
			idUUID   pgtype.UUID
			email    string
			token    string
			platform string
			created  time.Time
			updated  time.Time
		)
		if err := rows.Scan(&idUUID, &email, &token, &platform, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan notification token: %w", err)
		}
		out = append(out, domain.NotificationToken{
			ID:        uuidOrEmpty(idUUID),
			UserEmail: email,
			Token:     token,
			Platform:  platform,
			CreatedAt: created,
			UpdatedAt: updated,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notification tokens: %w", err)
	}
	return out, nil
}
