package httpapi

import (
	"net/http"
	"strings"

	"SafeCircleserver/internal/domain"
)

type pendingEmailsResponse struct {
	Emails []domain.PendingEmail `json:"emails"`
}

type emailSentRequest struct {
	EmailID string `json:"emailId" validate:"required,uuid"`
}

func (a *api) handleEmailsPending(w http.ResponseWriter, r *http.Request) {
	emails, err := a.emailSvc.ListPendingEmails(r.Context())
	if err != nil {
		a.fail(w, r, "list pending emails", err)
		return
	}
	WriteJSON(w, http.StatusOK, pendingEmailsResponse{Emails: emails})
}

func (a *api) handleEmailsSent(w http.ResponseWriter, r *http.Request) {
	var req emailSentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	req.EmailID = strings.TrimSpace(req.EmailID)
	if err := a.validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	if err := a.emailSvc.MarkEmailSent(r.Context(), req.EmailID); err != nil {
		a.fail(w, r, "mark email sent", err)
		return
	}
	WriteJSON(w, http.StatusOK, successResponse{Success: true})
}
