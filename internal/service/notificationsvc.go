package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/notifications"
)

type NotificationTokensStore interface {
	UpsertToken(ctx context.Context, userEmail, token, platform string, when time.Time) (domain.NotificationToken, error)
	DeleteToken(ctx context.Context, userEmail, token string) error
	ListTokens(ctx context.Context, userEmail string) ([]domain.NotificationToken, error)
}

type PushSender interface {
	Send(ctx context.Context, token string, msg notifications.Message) error
}

// ContactAuthNotifier tells a user that one of their trusted contacts finished
// connecting Google Drive.
type ContactAuthNotifier interface {
	NotifyContactAuthorized(ctx context.Context, userEmail, contactEmail string) error
}

type NotificationService struct {
	Tokens NotificationTokensStore
	Sender PushSender
	Logger *slog.Logger
	Now    func() time.Time
}

func (s *NotificationService) RegisterToken(ctx context.Context, userEmail, token, platform string) (domain.NotificationToken, error) {
	if s.Tokens == nil {
		return domain.NotificationToken{}, errors.New("notifications unavailable")
	}
	userEmail = strings.TrimSpace(userEmail)
	token = strings.TrimSpace(token)
	platform = strings.TrimSpace(strings.ToLower(platform))
	fields := map[string]string{}
	if userEmail == "" {
		fields["userEmail"] = "required"
	}
	if token == "" {
		fields["token"] = "required"
	}
	if platform == "" {
		fields["platform"] = "required"
	}
	if len(fields) > 0 {
		return domain.NotificationToken{}, domain.NewValidationError(fields)
	}
	switch platform {
	case "android", "ios":
	default:
		return domain.NotificationToken{}, domain.NewValidationError(map[string]string{"platform": "must be ios or android"})
	}
	when := utcMillis(s.Now)
	return s.Tokens.UpsertToken(ctx, userEmail, token, platform, when)
}

func (s *NotificationService) DeleteToken(ctx context.Context, userEmail, token string) error {
	if s.Tokens == nil {
		return errors.New("notifications unavailable")
	}
	userEmail = strings.TrimSpace(userEmail)
	token = strings.TrimSpace(token)
	if userEmail == "" || token == "" {
		return domain.NewValidationError(map[string]string{"userEmail": "required", "token": "required"})
	}
	return s.Tokens.DeleteToken(ctx, userEmail, token)
}

func (s *NotificationService) NotifyContactAuthorized(ctx context.Context, userEmail, contactEmail string) error {
	if s.Tokens == nil || s.Sender == nil {
		return nil
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := s.Tokens.ListTokens(ctx, userEmail)
	if err != nil {
		logger.Error("notifications: list tokens failed", "err", err, "user_email", userEmail)
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	payload := map[string]string{
		"type":          "contact_authorized",
		"contact_email": contactEmail,
	}
	dataOnlyMsg := notifications.Message{
		Data: payload,
	}
	iosAlertMsg := notifications.Message{
		Data: payload,
		Notification: &notifications.Notification{
			Title: "Trusted contact connected",
			Body:  contactEmail + " can now receive your evidence uploads.",
		},
	}

	for _, token := range tokens {
		msg := dataOnlyMsg
		if strings.TrimSpace(strings.ToLower(token.Platform)) == "ios" {
			msg = iosAlertMsg
		}
		if err := s.Sender.Send(ctx, token.Token, msg); err != nil {
			if errors.Is(err, notifications.ErrInvalidToken) {
				if delErr := s.Tokens.DeleteToken(ctx, userEmail, token.Token); delErr != nil {
					logger.Error("notifications: delete invalid token failed", "err", delErr, "user_email", userEmail)
				}
				continue
			}
			logger.Error("notifications: send failed", "err", err, "user_email", userEmail)
		}
	}

	return nil
}
