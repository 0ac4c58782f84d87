package httpapi

import (
	"net/http"
	"strings"
	"time"

	"SafeCircleserver/internal/domain"
)

type notificationTokenRequest struct {
	UserEmail string `json:"userEmail" validate:"required,email,max=320"`
	Token     string `json:"token" validate:"required,max=4096"`
	Platform  string `json:"platform" validate:"required,oneof=android ios"`
}

type notificationTokenResponse struct {
	Token     string `json:"token"`
	Platform  string `json:"platform"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (a *api) handleNotificationsTokenUpsert(w http.ResponseWriter, r *http.Request) {
	var req notificationTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	req.Token = strings.TrimSpace(req.Token)
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	if err := a.validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	out, err := a.notificationsSvc.RegisterToken(r.Context(), req.UserEmail, req.Token, req.Platform)
	if err != nil {
		a.fail(w, r, "register notification token", err)
		return
	}

	resp := notificationTokenResponse{
		Token:     out.Token,
		Platform:  out.Platform,
		CreatedAt: formatMillis(out.CreatedAt),
		UpdatedAt: formatMillis(out.UpdatedAt),
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (a *api) handleNotificationsTokenDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userEmail := strings.TrimSpace(q.Get("userEmail"))
	token := strings.TrimSpace(q.Get("token"))
	fields := map[string]string{}
	if userEmail == "" {
		fields["userEmail"] = "required"
	}
	if token == "" {
		fields["token"] = "required"
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	if err := a.notificationsSvc.DeleteToken(r.Context(), userEmail, token); err != nil {
		a.fail(w, r, "delete notification token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formatMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
