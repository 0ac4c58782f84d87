package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"SafeCircleserver/internal/domain"
)

const (
	codeInvalidArgument   = "invalid-argument"
	codeUnauthenticated   = "unauthenticated"
	codeNotFound          = "not-found"
	codeResourceExhausted = "resource-exhausted"
	codeInternal          = "internal"
	codeUnavailable       = "unavailable"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorBody{Error: message, Code: code})
}

func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, errorBody{Error: message, Code: code, Details: details})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var upErr *domain.UpstreamError
	switch {
	case errors.As(err, &verr):
		WriteErrorDetails(w, http.StatusBadRequest, codeInvalidArgument, "invalid request", verr.Fields)
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, codeInvalidArgument, "invalid request")
	case errors.Is(err, domain.ErrSetupTokenInvalid):
		WriteError(w, http.StatusBadRequest, codeInvalidArgument, "Invalid or expired setup token")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, codeUnauthenticated, "unauthenticated")
	case errors.Is(err, domain.ErrCredentialNotFound):
		WriteError(w, http.StatusNotFound, codeNotFound, "Trusted contact not found or not authorized")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, domain.ErrRateLimited):
		WriteError(w, http.StatusTooManyRequests, codeResourceExhausted, "too many requests")
	case errors.As(err, &upErr):
		WriteErrorDetails(w, http.StatusInternalServerError, codeInternal, "Failed to upload video", upErr.Err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func isServerError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrSetupTokenInvalid,
		domain.ErrUnauthorized,
		domain.ErrCredentialNotFound,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrUpstream,
	} {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}
