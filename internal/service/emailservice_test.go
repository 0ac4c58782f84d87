package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/email"
)

type stubPendingEmailsStore struct {
	createFunc   func(context.Context, domain.PendingEmail) error
	listFunc     func(context.Context, int) ([]domain.PendingEmail, error)
	markSentFunc func(context.Context, string, time.Time) error
}

func (s *stubPendingEmailsStore) CreatePendingEmail(ctx context.Context, email domain.PendingEmail) error {
	if s.createFunc == nil {
		return errors.New("create not stubbed")
	}
	return s.createFunc(ctx, email)
}

func (s *stubPendingEmailsStore) ListPendingEmails(ctx context.Context, limit int) ([]domain.PendingEmail, error) {
	if s.listFunc == nil {
		return nil, errors.New("list not stubbed")
	}
	return s.listFunc(ctx, limit)
}

func (s *stubPendingEmailsStore) MarkEmailSent(ctx context.Context, id string, when time.Time) error {
	if s.markSentFunc == nil {
		return errors.New("mark sent not stubbed")
	}
	return s.markSentFunc(ctx, id, when)
}

type stubMailSender struct {
	sendFunc func(email.Message) error
}

func (s *stubMailSender) Send(msg email.Message) error {
	if s.sendFunc == nil {
		return errors.New("send not stubbed")
	}
	return s.sendFunc(msg)
}

func TestEmailServiceSendSetupEmail(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	var got domain.PendingEmail
	svc := &EmailService{
		Store: &stubPendingEmailsStore{createFunc: func(_ context.Context, e domain.PendingEmail) error {
			got = e
			return nil
		}},
		Template: EmailTemplate{ServiceID: "svc", TemplateID: "tpl", UserID: "pub"},
		LinkBase: "https://safecircle.example/setup-drive",
		Now:      func() time.Time { return now },
		NewID:    func() string { return "5f0c3f0e-8a38-4b53-9d53-1b2f3c4d5e6f" },
	}

	if err := svc.SendSetupEmail(context.Background(), "contact@gmail.com", "tok_abc-123", "user@example.com"); err != nil {
		t.Fatalf("SendSetupEmail: %v", err)
	}
	if got.ID != "5f0c3f0e-8a38-4b53-9d53-1b2f3c4d5e6f" || got.Status != domain.EmailStatusPending {
		t.Fatalf("unexpected email: %#v", got)
	}
	if got.ServiceID != "svc" || got.TemplateID != "tpl" || got.UserID != "pub" {
		t.Fatalf("unexpected template ids: %#v", got)
	}
	if got.ContactEmail != "contact@gmail.com" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected email: %#v", got)
	}
	if got.TemplateParams["setup_link"] != "https://safecircle.example/setup-drive?token=tok_abc-123" {
		t.Fatalf("setup_link = %q", got.TemplateParams["setup_link"])
	}
	if got.TemplateParams["user_email"] != "user@example.com" || got.TemplateParams["to_email"] != "contact@gmail.com" {
		t.Fatalf("unexpected params: %#v", got.TemplateParams)
	}
}

func TestEmailServiceSetupLinkDefaultsToRelativePath(t *testing.T) {
	svc := &EmailService{}
	link, err := svc.SetupLink("abc")
	if err != nil {
		t.Fatalf("SetupLink: %v", err)
	}
	if link != "/setup-drive?token=abc" {
		t.Fatalf("link = %q", link)
	}
}

func TestEmailServiceMarkEmailSentValidatesID(t *testing.T) {
	svc := &EmailService{Store: &stubPendingEmailsStore{
		markSentFunc: func(context.Context, string, time.Time) error {
			t.Fatalf("MarkEmailSent called unexpectedly")
			return nil
		},
	}}
	for _, id := range []string{"", "not-a-uuid"} {
		if err := svc.MarkEmailSent(context.Background(), id); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("id %q: expected validation error, got %v", id, err)
		}
	}
}

func TestEmailServiceMarkEmailSentNotFound(t *testing.T) {
	svc := &EmailService{Store: &stubPendingEmailsStore{
		markSentFunc: func(context.Context, string, time.Time) error { return domain.ErrNotFound },
	}}
	err := svc.MarkEmailSent(context.Background(), "5f0c3f0e-8a38-4b53-9d53-1b2f3c4d5e6f")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEmailServiceListPendingEmailsNeverNil(t *testing.T) {
	svc := &EmailService{Store: &stubPendingEmailsStore{
		listFunc: func(_ context.Context, limit int) ([]domain.PendingEmail, error) {
			if limit != 100 {
				t.Fatalf("limit = %d, want 100", limit)
			}
			return nil, nil
		},
	}}
	emails, err := svc.ListPendingEmails(context.Background())
	if err != nil {
		t.Fatalf("ListPendingEmails: %v", err)
	}
	if emails == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}

func TestEmailRelayOnceMarksDeliveredEmails(t *testing.T) {
	pending := []domain.PendingEmail{
		{ID: "11111111-1111-1111-1111-111111111111", ContactEmail: "a@gmail.com", TemplateParams: map[string]string{"user_email": "u@example.com", "setup_link": "https://x/setup-drive?token=1"}},
		{ID: "22222222-2222-2222-2222-222222222222", ContactEmail: "b@gmail.com", TemplateParams: map[string]string{"user_email": "u@example.com", "setup_link": "https://x/setup-drive?token=2"}},
	}
	var marked []string
	emails := &EmailService{Store: &stubPendingEmailsStore{
		listFunc: func(context.Context, int) ([]domain.PendingEmail, error) { return pending, nil },
		markSentFunc: func(_ context.Context, id string, _ time.Time) error {
			marked = append(marked, id)
			return nil
		},
	}}
	relay := &EmailRelay{
		Emails:    emails,
		FromEmail: "noreply@safecircle.example",
		Sender: &stubMailSender{sendFunc: func(msg email.Message) error {
			if msg.FromEmail != "noreply@safecircle.example" {
				t.Fatalf("from = %q", msg.FromEmail)
			}
			if msg.ToEmail == "b@gmail.com" {
				return errors.New("mailbox unavailable")
			}
			if !strings.Contains(msg.TextBody, "https://x/setup-drive?token=1") {
				t.Fatalf("body missing link: %q", msg.TextBody)
			}
			return nil
		}},
	}

	sent, err := relay.RelayOnce(context.Background())
	if err != nil {
		t.Fatalf("RelayOnce: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(marked) != 1 || marked[0] != pending[0].ID {
		t.Fatalf("marked = %v", marked)
	}
}
