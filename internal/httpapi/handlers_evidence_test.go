package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"SafeCircleserver/internal/service"
)

type fakeDriveSession struct {
	uploads  int
	failWith error
}

func (f *fakeDriveSession) FindFolders(context.Context, string) ([]string, error) {
	return []string{"folder-1"}, nil
}

func (f *fakeDriveSession) CreateFolder(context.Context, string) (string, error) {
	return "", errors.New("unexpected create")
}

func (f *fakeDriveSession) Upload(_ context.Context, folderID, _ string, payload []byte) (string, error) {
	f.uploads++
	if f.failWith != nil {
		return "", f.failWith
	}
	if folderID != "folder-1" || string(payload) != "video-bytes" {
		return "", errors.New("unexpected upload args")
	}
	return "file-42", nil
}

func evidenceBody() map[string]string {
	return map[string]string{
		"userEmail":           "user@example.com",
		"trustedContactEmail": "contact@gmail.com",
		"videoData":           base64.StdEncoding.EncodeToString([]byte("video-bytes")),
		"fileName":            "evidence.mp4",
	}
}

func TestEvidenceUploadMissingCredentialIs404WithoutUpload(t *testing.T) {
	env := newTestEnv(t)
	env.drive.connectFunc = func(context.Context, string) (service.DriveSession, error) {
		t.Fatalf("Connect called unexpectedly")
		return nil, nil
	}

	rr := env.do(t, http.MethodPost, "/v1/evidence/videos", evidenceBody(), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeErrorBody(t, rr).Code; got != codeNotFound {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestEvidenceUploadSuccess(t *testing.T) {
	env := newTestEnv(t)
	if err := env.setupSvc.StoreEncryptedToken(context.Background(), "contact@gmail.com", "1//refresh"); err != nil {
		t.Fatalf("StoreEncryptedToken: %v", err)
	}
	sess := &fakeDriveSession{}
	env.drive.connectFunc = func(_ context.Context, refreshToken string) (service.DriveSession, error) {
		if refreshToken != "1//refresh" {
			t.Fatalf("unexpected refresh token: %q", refreshToken)
		}
		return sess, nil
	}

	rr := env.do(t, http.MethodPost, "/v1/evidence/videos", evidenceBody(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp evidenceUploadResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.FileID != "file-42" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestEvidenceUploadFailureReportsDetails(t *testing.T) {
	env := newTestEnv(t)
	if err := env.setupSvc.StoreEncryptedToken(context.Background(), "contact@gmail.com", "1//refresh"); err != nil {
		t.Fatalf("StoreEncryptedToken: %v", err)
	}
	sess := &fakeDriveSession{failWith: errors.New("quota exceeded")}
	env.drive.connectFunc = func(context.Context, string) (service.DriveSession, error) { return sess, nil }

	rr := env.do(t, http.MethodPost, "/v1/evidence/videos", evidenceBody(), nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	body := decodeErrorBody(t, rr)
	if body.Code != codeInternal {
		t.Fatalf("unexpected code: %s", body.Code)
	}
	details, _ := body.Details.(string)
	if details != "quota exceeded" {
		t.Fatalf("unexpected details: %#v", body.Details)
	}
	if sess.uploads != 3 {
		t.Fatalf("uploads = %d, want 3", sess.uploads)
	}
}

func TestEvidenceUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	body := evidenceBody()
	delete(body, "fileName")
	rr := env.do(t, http.MethodPost, "/v1/evidence/videos", body, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing field: unexpected status %d", rr.Code)
	}

	body = evidenceBody()
	body["videoData"] = "%%% not base64 %%%"
	rr = env.do(t, http.MethodPost, "/v1/evidence/videos", body, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad base64: unexpected status %d", rr.Code)
	}
}

func TestEvidenceUploadCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodOptions, "/v1/evidence/videos", nil, http.Header{
		"Origin":                        []string{"https://recorder.example"},
		"Access-Control-Request-Method": []string{http.MethodPost},
	})
	if rr.Code >= 300 {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestDecodeVideoData(t *testing.T) {
	cases := []string{
		base64.StdEncoding.EncodeToString([]byte("abcd1")),
		base64.RawStdEncoding.EncodeToString([]byte("abcd1")),
		"data:video/mp4;base64," + base64.StdEncoding.EncodeToString([]byte("abcd1")),
	}
	for _, tc := range cases {
		got, err := decodeVideoData(tc)
		if err != nil || string(got) != "abcd1" {
			t.Fatalf("decodeVideoData(%q) = %q, %v", tc, got, err)
		}
	}
}
