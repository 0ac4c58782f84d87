package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/metrics"
)

const defaultPendingEmailsLimit = 100

type PendingEmailsStore interface {
	CreatePendingEmail(ctx context.Context, email domain.PendingEmail) error
	ListPendingEmails(ctx context.Context, limit int) ([]domain.PendingEmail, error)
	MarkEmailSent(ctx context.Context, id string, when time.Time) error
}

// EmailTemplate identifies the EmailJS template the client uses to deliver a
// staged email.
type EmailTemplate struct {
	ServiceID  string
	TemplateID string
	UserID     string
}

// EmailService stages outbound setup emails in the pending queue. Delivery is
// done by an external client or by EmailRelay.
type EmailService struct {
	Store    PendingEmailsStore
	Template EmailTemplate
	LinkBase string
	Metrics  *metrics.Metrics
	Now      func() time.Time
	NewID    func() string
}

func (s *EmailService) SendSetupEmail(ctx context.Context, contactEmail, setupToken, userEmail string) error {
	if s.Store == nil {
		return errors.New("email queue unavailable")
	}
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	link, err := s.SetupLink(setupToken)
	if err != nil {
		return err
	}
	msg := domain.PendingEmail{
		ID:         newID(),
		ServiceID:  s.Template.ServiceID,
		TemplateID: s.Template.TemplateID,
		UserID:     s.Template.UserID,
		TemplateParams: map[string]string{
			"user_email": userEmail,
			"setup_link": link,
			"to_email":   contactEmail,
		},
		ContactEmail: contactEmail,
		Status:       domain.EmailStatusPending,
		CreatedAt:    utcMillis(s.Now),
	}
	if err := s.Store.CreatePendingEmail(ctx, msg); err != nil {
		return err
	}
	s.Metrics.EmailStaged()
	return nil
}

// SetupLink builds the URL a contact follows to connect Google Drive.
func (s *EmailService) SetupLink(setupToken string) (string, error) {
	base := strings.TrimSpace(s.LinkBase)
	if base == "" {
		base = "/setup-drive"
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse setup link base: %w", err)
	}
	q := u.Query()
	q.Set("token", setupToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *EmailService) ListPendingEmails(ctx context.Context) ([]domain.PendingEmail, error) {
	if s.Store == nil {
		return nil, errors.New("email queue unavailable")
	}
	emails, err := s.Store.ListPendingEmails(ctx, defaultPendingEmailsLimit)
	if err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []domain.PendingEmail{}
	}
	return emails, nil
}

func (s *EmailService) MarkEmailSent(ctx context.Context, emailID string) error {
	if s.Store == nil {
		return errors.New("email queue unavailable")
	}
	emailID = strings.TrimSpace(emailID)
	if emailID == "" {
		return domain.NewValidationError(map[string]string{"emailId": "required"})
	}
	if _, err := uuid.Parse(emailID); err != nil {
		return domain.NewValidationError(map[string]string{"emailId": "must be a uuid"})
	}
	return s.Store.MarkEmailSent(ctx, emailID, utcMillis(s.Now))
}
