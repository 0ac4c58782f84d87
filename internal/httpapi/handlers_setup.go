package httpapi

import (
	"net/http"
	"strings"

	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/service"
)

type setupTokenRequest struct {
	UserEmail          string `json:"userEmail" validate:"required,email,max=320"`
	ContactGoogleEmail string `json:"contactGoogleEmail" validate:"required,email,max=320"`
}

type setupCompleteRequest struct {
	SetupToken   string `json:"setupToken" validate:"required,max=128"`
	ContactEmail string `json:"contactEmail" validate:"required,email,max=320"`
	RefreshToken string `json:"refreshToken" validate:"required,max=4096"`
	IDToken      string `json:"idToken,omitempty" validate:"max=8192"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

func (a *api) handleSetupTokensCreate(w http.ResponseWriter, r *http.Request) {
	var req setupTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	req.ContactGoogleEmail = strings.TrimSpace(req.ContactGoogleEmail)
	if err := a.validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	if a.issueLimiter != nil && a.issueLimiter.OnLimit(w, r, strings.ToLower(req.UserEmail)) {
		WriteDomainError(w, domain.ErrRateLimited)
		return
	}

	if err := a.setupSvc.InviteContact(r.Context(), req.UserEmail, req.ContactGoogleEmail); err != nil {
		a.fail(w, r, "issue setup token", err)
		return
	}
	WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "Setup email queued"})
}

func (a *api) handleSetupComplete(w http.ResponseWriter, r *http.Request) {
	var req setupCompleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	req.ContactEmail = strings.TrimSpace(req.ContactEmail)
	if err := a.validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	err := a.setupSvc.CompleteContactAuth(r.Context(), service.CompleteContactAuthInput{
		SetupToken:   req.SetupToken,
		ContactEmail: req.ContactEmail,
		RefreshToken: req.RefreshToken,
		IDToken:      req.IDToken,
	})
	if err != nil {
		a.fail(w, r, "complete contact auth", err)
		return
	}
	WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *api) handleSetupValidate(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"token": "required"}))
		return
	}

	ok, err := a.setupSvc.ValidateSetupToken(r.Context(), token)
	if err != nil {
		a.fail(w, r, "validate setup token", err)
		return
	}
	WriteJSON(w, http.StatusOK, validateResponse{Valid: ok})
}
