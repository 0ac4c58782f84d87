package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"SafeCircleserver/internal/auth"
	"SafeCircleserver/internal/domain"
	"SafeCircleserver/internal/service"
)

type memStore struct {
	mu       sync.Mutex
	setups   map[string]domain.SetupToken
	contacts map[string]domain.ContactToken
	emails   map[string]domain.PendingEmail
}

func newMemStore() *memStore {
	return &memStore{
		setups:   map[string]domain.SetupToken{},
		contacts: map[string]domain.ContactToken{},
		emails:   map[string]domain.PendingEmail{},
	}
}

func (m *memStore) CreateSetupToken(_ context.Context, token domain.SetupToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setups[token.TokenHash] = token
	return nil
}

func (m *memStore) GetSetupToken(_ context.Context, tokenHash string) (domain.SetupToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.setups[tokenHash]
	if !ok {
		return domain.SetupToken{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memStore) UpdateSetupStatus(_ context.Context, tokenHash string, status domain.SetupStatus, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.setups[tokenHash]
	if !ok || t.Status != domain.SetupStatusPending {
		return domain.ErrSetupTokenInvalid
	}
	t.Status = status
	t.CompletedAt = &when
	m.setups[tokenHash] = t
	return nil
}

func (m *memStore) CompleteSetup(_ context.Context, tokenHash, contactEmail, encryptedToken string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.setups[tokenHash]
	if !ok || t.Status != domain.SetupStatusPending {
		return domain.ErrSetupTokenInvalid
	}
	t.Status = domain.SetupStatusCompleted
	t.CompletedAt = &when
	m.setups[tokenHash] = t
	m.contacts[contactEmail] = domain.ContactToken{ContactEmail: contactEmail, EncryptedToken: encryptedToken, CreatedAt: when, LastUsed: when}
	return nil
}

func (m *memStore) UpsertContactToken(_ context.Context, contactEmail, encryptedToken string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[contactEmail] = domain.ContactToken{ContactEmail: contactEmail, EncryptedToken: encryptedToken, CreatedAt: when, LastUsed: when}
	return nil
}

func (m *memStore) GetContactToken(_ context.Context, contactEmail string) (domain.ContactToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.contacts[contactEmail]
	if !ok {
		return domain.ContactToken{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memStore) TouchContactToken(_ context.Context, contactEmail string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.contacts[contactEmail]
	if !ok {
		return domain.ErrNotFound
	}
	t.LastUsed = when
	m.contacts[contactEmail] = t
	return nil
}

func (m *memStore) CreatePendingEmail(_ context.Context, email domain.PendingEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[email.ID] = email
	return nil
}

func (m *memStore) ListPendingEmails(_ context.Context, limit int) ([]domain.PendingEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.PendingEmail{}
	for _, e := range m.emails {
		if e.Status == domain.EmailStatusPending {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkEmailSent(_ context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = domain.EmailStatusSent
	e.SentAt = &when
	m.emails[id] = e
	return nil
}

// stagedToken returns the setup token carried by the only staged email.
func (m *memStore) stagedToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.emails) != 1 {
		t.Fatalf("expected one staged email, got %d", len(m.emails))
	}
	for _, e := range m.emails {
		u, err := url.Parse(e.TemplateParams["setup_link"])
		if err != nil {
			t.Fatalf("parse setup link: %v", err)
		}
		return u.Query().Get("token")
	}
	return ""
}

type stubDriveConnector struct {
	connectFunc func(ctx context.Context, refreshToken string) (service.DriveSession, error)
}

func (s *stubDriveConnector) Connect(ctx context.Context, refreshToken string) (service.DriveSession, error) {
	if s.connectFunc == nil {
		return nil, errors.New("connect not stubbed")
	}
	return s.connectFunc(ctx, refreshToken)
}

type testEnv struct {
	store    *memStore
	cipher   *auth.TokenCipher
	drive    *stubDriveConnector
	handler  http.Handler
	setupSvc *service.SetupService
}

const testAPIKey = "test-api-key"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cipher, err := auth.NewEphemeralTokenCipher()
	if err != nil {
		t.Fatalf("NewEphemeralTokenCipher: %v", err)
	}
	store := newMemStore()
	drive := &stubDriveConnector{}
	emails := &service.EmailService{Store: store, LinkBase: "https://safecircle.example/setup-drive"}
	setup := &service.SetupService{
		Tokens:   store,
		Contacts: store,
		Cipher:   cipher,
		Emails:   emails,
	}
	evidence := &service.EvidenceService{
		Credentials: store,
		Cipher:      cipher,
		Drive:       drive,
		Retry:       service.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}

	h := NewRouter(RouterOpts{
		Setup:        setup,
		Emails:       emails,
		Evidence:     evidence,
		ClientAPIKey: testAPIKey,
	})
	return &testEnv{store: store, cipher: cipher, drive: drive, handler: h, setupSvc: setup}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func apiKeyHeader() http.Header {
	return http.Header{"X-Api-Key": []string{testAPIKey}}
}

func decodeErrorBody(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorBody
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	h := NewRouter(RouterOpts{DBPing: func(context.Context) error { return errors.New("down") }})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestUnknownV1RouteIsJSONNotFound(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/v1/nope", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := decodeErrorBody(t, rr).Code; got != codeNotFound {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestCallableEndpointsRequireAPIKey(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/v1/emails/pending", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := decodeErrorBody(t, rr).Code; got != codeUnauthenticated {
		t.Fatalf("unexpected code: %s", got)
	}

	rr = env.do(t, http.MethodGet, "/v1/emails/pending", nil, http.Header{"X-Api-Key": []string{"wrong"}})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status with wrong key: %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/v1/emails/pending", nil, apiKeyHeader())
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status with key: %d", rr.Code)
	}
}
