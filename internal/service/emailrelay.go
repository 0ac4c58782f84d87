package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"SafeCircleserver/internal/email"
	"SafeCircleserver/internal/metrics"
)

type MailSender interface {
	Send(msg email.Message) error
}

// EmailRelay drains the pending email queue through SMTP. It is an
// alternative to an external client polling /v1/emails/pending; run only one
// of the two against a given database.
type EmailRelay struct {
	Emails    *EmailService
	Sender    MailSender
	FromEmail string
	FromName  string
	Interval  time.Duration
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

func (r *EmailRelay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := r.logger()
	logger.Info("email relay started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("email relay pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("email relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// RelayOnce delivers every currently pending email and returns how many were
// sent. A delivery failure leaves the email pending for the next pass.
func (r *EmailRelay) RelayOnce(ctx context.Context) (int, error) {
	if r.Emails == nil || r.Sender == nil {
		return 0, errors.New("email relay not configured")
	}
	logger := r.logger()

	pending, err := r.Emails.ListPendingEmails(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := r.Sender.Send(setupMessage(r.FromEmail, r.FromName, msg.ContactEmail, msg.TemplateParams)); err != nil {
			r.Metrics.EmailRelayed("error")
			logger.Warn("email relay send failed", "err", err, "email_id", msg.ID)
			continue
		}
		if err := r.Emails.MarkEmailSent(ctx, msg.ID); err != nil {
			r.Metrics.EmailRelayed("error")
			logger.Error("email relay mark sent failed", "err", err, "email_id", msg.ID)
			continue
		}
		r.Metrics.EmailRelayed("sent")
		sent++
	}
	return sent, nil
}

func (r *EmailRelay) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func setupMessage(fromEmail, fromName, toEmail string, params map[string]string) email.Message {
	userEmail := params["user_email"]
	body := strings.Join([]string{
		userEmail + " added you as a trusted contact on SafeCircle.",
		"",
		"Connect your Google Drive so evidence recordings can be saved for you:",
		params["setup_link"],
		"",
		"The link expires in 24 hours and can be used once.",
	}, "\n")

	return email.Message{
		FromName:  fromName,
		FromEmail: fromEmail,
		ToEmail:   toEmail,
		Subject:   "You have been added as a SafeCircle trusted contact",
		TextBody:  body,
	}
}
