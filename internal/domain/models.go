package domain

import "time"

type SetupStatus string

const (
	SetupStatusPending   SetupStatus = "pending"
	SetupStatusCompleted SetupStatus = "completed"
)

// SetupToken is the authorization handshake between a user and a trusted
// contact. Only the hash of the token is persisted.
type SetupToken struct {
	TokenHash          string
	UserEmail          string
	ContactGoogleEmail string
	Status             SetupStatus
	CreatedAt          time.Time
	ExpiresAt          time.Time
	CompletedAt        *time.Time
}

// Usable reports whether the token can still complete a handshake at now.
func (t SetupToken) Usable(now time.Time) bool {
	return t.Status == SetupStatusPending && now.Before(t.ExpiresAt)
}

// PendingSetup mirrors token issuance for audit lookups. It is never read
// back to decide validity.
type PendingSetup struct {
	TokenHash          string
	UserEmail          string
	ContactGoogleEmail string
	CreatedAt          time.Time
	ExpiresAt          time.Time
}

type EmailStatus string

const (
	EmailStatusPending EmailStatus = "pending"
	EmailStatusSent    EmailStatus = "sent"
)

type PendingEmail struct {
	ID             string            `json:"id"`
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
	ContactEmail   string            `json:"contactEmail"`
	Status         EmailStatus       `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	SentAt         *time.Time        `json:"sentAt,omitempty"`
}

type ContactToken struct {
	ContactEmail   string
	EncryptedToken string
	CreatedAt      time.Time
	LastUsed       time.Time
}

type EvidenceUploadResult struct {
	FileID string `json:"fileId"`
}
