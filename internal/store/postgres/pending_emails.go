package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SafeCircleserver/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PendingEmailsStore struct {
	pool *pgxpool.Pool
}

func NewPendingEmailsStore(pool *pgxpool.Pool) *PendingEmailsStore {
	return &PendingEmailsStore{pool: pool}
}

func (s *PendingEmailsStore) CreatePendingEmail(ctx context.Context, email domain.PendingEmail) error {
	const q = `
		INSERT INTO pending_emails (
			id, contact_email, service_id, template_id, user_id, template_params, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
	`

	params, err := json.Marshal(email.TemplateParams)
	if err != nil {
		return fmt.Errorf("marshal template params: %w", err)
	}
	_, err = s.pool.Exec(ctx, q,
		email.ID,
		email.ContactEmail,
		email.ServiceID,
		email.TemplateID,
		email.UserID,
		string(params),
		string(email.Status),
		email.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create pending email: %w", err)
	}
	return nil
}

func (s *PendingEmailsStore) ListPendingEmails(ctx context.Context, limit int) ([]domain.PendingEmail, error) {
	const q = `
		SELECT id, contact_email, service_id, template_id, user_id, template_params, status, created_at, sent_at
		FROM pending_emails
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending emails: %w", err)
	}
	defer rows.Close()

	out := []domain.PendingEmail{}
	for rows.Next() {
		var (
			email  domain.PendingEmail
			idUUID pgtype.UUID
			params []byte
			status string
			sentAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&idUUID,
			&email.ContactEmail,
			&email.ServiceID,
			&email.TemplateID,
			&email.UserID,
			&params,
			&status,
			&email.CreatedAt,
			&sentAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending email: %w", err)
		}
		if err := json.Unmarshal(params, &email.TemplateParams); err != nil {
			return nil, fmt.Errorf("decode template params: %w", err)
		}
		email.ID = uuidOrEmpty(idUUID)
		email.Status = domain.EmailStatus(status)
		email.SentAt = timestamptzPtr(sentAt)
		out = append(out, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending emails: %w", err)
	}
	return out, nil
}

// MarkEmailSent also drops the setup link from the stored params, since the
// link carries the raw setup token.
func (s *PendingEmailsStore) MarkEmailSent(ctx context.Context, id string, when time.Time) error {
	const q = `
		UPDATE pending_emails
		SET status = 'sent',
			sent_at = COALESCE(sent_at, $2),
			template_params = template_params - 'setup_link'
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, id, when)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
