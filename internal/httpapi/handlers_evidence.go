package httpapi

import (
	"encoding/base64"
	"net/http"
	"strings"

	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/service"
)

type evidenceUploadRequest struct {
	UserEmail           string `json:"userEmail" validate:"required,email,max=320"`
	TrustedContactEmail string `json:"trustedContactEmail" validate:"required,email,max=320"`
	VideoData           string `json:"videoData" validate:"required"`
	FileName            string `json:"fileName" validate:"required,max=255"`
}

type evidenceUploadResponse struct {
	Success bool   `json:"success"`
	FileID  string `json:"fileId"`
}

func (a *api) handleEvidenceUpload(w http.ResponseWriter, r *http.Request) {
	var req evidenceUploadRequest
	if err := decodeJSONLimit(w, r, &req, a.maxUploadBytes); err != nil {
		writeDecodeError(w, err)
		return
	}
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	req.TrustedContactEmail = strings.TrimSpace(req.TrustedContactEmail)
	req.FileName = strings.TrimSpace(req.FileName)
	if err := a.validateRequest(req); err != nil {
		WriteDomainError(w, err)
		return
	}

	payload, err := decodeVideoData(req.VideoData)
	if err != nil || len(payload) == 0 {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"videoData": "must be base64"}))
		return
	}

	credential, err := a.evidenceSvc.ResolveCredential(r.Context(), req.TrustedContactEmail)
	if err != nil {
		a.fail(w, r, "resolve contact credential", err)
		return
	}

	res, err := a.evidenceSvc.Upload(r.Context(), service.EvidenceUpload{
		UserEmail:    req.UserEmail,
		FileName:     req.FileName,
		Payload:      payload,
		RefreshToken: credential,
	})
	if err != nil {
		a.fail(w, r, "upload evidence", err)
		return
	}
	WriteJSON(w, http.StatusOK, evidenceUploadResponse{Success: true, FileID: res.FileID})
}

// decodeVideoData accepts standard or unpadded base64 and tolerates a data
// URL prefix as produced by FileReader.readAsDataURL.
func decodeVideoData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ";base64,"); ok {
			s = rest
		}
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
