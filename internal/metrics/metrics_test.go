package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SetupTokenIssued()
	m.ContactAuth("ok")
	m.UploadAttempt("error")
	m.HTTPRequest(http.MethodGet, http.StatusOK)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.SetupTokenIssued()
	m.UploadAttempt("success")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "safecircle_setup_tokens_issued_total 1") {
		t.Fatalf("missing issued counter in:\n%s", body)
	}
	if !strings.Contains(body, `safecircle_evidence_upload_attempts_total{result="success"} 1`) {
		t.Fatalf("missing upload counter in:\n%s", body)
	}
}
