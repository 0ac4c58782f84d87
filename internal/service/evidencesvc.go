package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/gdrive"
	"SafeCircleserver/internal/metrics"
)

// DriveSession is an authenticated connection to one contact's Drive.
type DriveSession interface {
	FindFolders(ctx context.Context, name string) ([]string, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	Upload(ctx context.Context, folderID, fileName string, payload []byte) (string, error)
}

type DriveConnector interface {
	Connect(ctx context.Context, refreshToken string) (DriveSession, error)
}

// GoogleDrive adapts gdrive.Connector to DriveConnector.
type GoogleDrive struct {
	Connector *gdrive.Connector
}

func (g GoogleDrive) Connect(ctx context.Context, refreshToken string) (DriveSession, error) {
	if g.Connector == nil {
		return nil, errors.New("drive connector not configured")
	}
	sess, err := g.Connector.Connect(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// RetryPolicy bounds how often an upload is attempted. Waits between attempts
// grow exponentially from BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var DefaultUploadRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) Backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultUploadRetry.BaseDelay
	}
	return retry.WithMaxRetries(uint64(p.attempts()-1), retry.NewExponential(base))
}

// EvidenceFolderName is the Drive folder that collects one user's recordings.
func EvidenceFolderName(userEmail string) string {
	return "SafeCircle_" + strings.ReplaceAll(userEmail, "@", "_at_")
}

type EvidenceUpload struct {
	UserEmail    string
	FileName     string
	Payload      []byte
	RefreshToken string
}

type EvidenceService struct {
	Credentials ContactTokensStore
	Cipher      TokenCipher
	Drive       DriveConnector
	Retry       RetryPolicy

	// NewBackoff overrides Retry.Backoff; tests use it to skip the waits.
	NewBackoff func() retry.Backoff

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// ResolveCredential returns the decrypted Drive refresh token stored for a
// contact and records that it was used.
func (s *EvidenceService) ResolveCredential(ctx context.Context, contactEmail string) (string, error) {
	if s.Credentials == nil || s.Cipher == nil {
		return "", errors.New("contact tokens unavailable")
	}
	contactEmail = strings.TrimSpace(contactEmail)
	if contactEmail == "" {
		return "", domain.NewValidationError(map[string]string{"trustedContactEmail": "required"})
	}

	stored, err := s.Credentials.GetContactToken(ctx, contactEmail)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrCredentialNotFound
		}
		return "", err
	}
	credential, err := s.Cipher.Decrypt(stored.EncryptedToken, contactEmail)
	if err != nil {
		return "", fmt.Errorf("decrypt contact token: %w", err)
	}

	if err := s.Credentials.TouchContactToken(ctx, contactEmail, utcMillis(s.Now)); err != nil {
		s.logger().Warn("evidence: touch contact token failed", "err", err)
	}
	return credential, nil
}

// Upload stores the payload in the user's evidence folder on the contact's
// Drive. Each attempt repeats the whole sequence: token exchange, folder
// lookup, upload. The context bounds all attempts including the waits.
func (s *EvidenceService) Upload(ctx context.Context, in EvidenceUpload) (domain.EvidenceUploadResult, error) {
	if s.Drive == nil {
		return domain.EvidenceUploadResult{}, errors.New("drive unavailable")
	}
	logger := s.logger().With("user_email", in.UserEmail, "file_name", in.FileName)

	backoff := s.Retry.Backoff()
	if s.NewBackoff != nil {
		backoff = s.NewBackoff()
	}

	attempt := 0
	var fileID string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		id, err := s.uploadOnce(ctx, in)
		if err != nil {
			s.Metrics.UploadAttempt("error")
			logger.Warn("evidence upload attempt failed", "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		s.Metrics.UploadAttempt("success")
		fileID = id
		return nil
	})
	if err != nil {
		logger.Error("evidence upload failed", "attempts", attempt, "err", err)
		return domain.EvidenceUploadResult{}, &domain.UpstreamError{Attempts: attempt, Err: err}
	}

	logger.Info("evidence uploaded", "attempts", attempt, "file_id", fileID)
	return domain.EvidenceUploadResult{FileID: fileID}, nil
}

func (s *EvidenceService) uploadOnce(ctx context.Context, in EvidenceUpload) (string, error) {
	sess, err := s.Drive.Connect(ctx, in.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("connect drive: %w", err)
	}
	folderID, err := resolveFolder(ctx, sess, EvidenceFolderName(in.UserEmail))
	if err != nil {
		return "", err
	}
	return sess.Upload(ctx, folderID, in.FileName, in.Payload)
}

func resolveFolder(ctx context.Context, sess DriveSession, name string) (string, error) {
	ids, err := sess.FindFolders(ctx, name)
	if err != nil {
		return "", err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	return sess.CreateFolder(ctx, name)
}

func (s *EvidenceService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
