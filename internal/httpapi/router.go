package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"SafeCircleserver/internal/metrics"
	"SafeCircleserver/internal/service"
)

const (
	defaultPublicRateLimit = 60
	defaultIssueLimit      = 10
	defaultMaxUploadBytes  = 64 << 20
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing  func(context.Context) error
	Metrics *metrics.Metrics

	Setup         *service.SetupService
	Emails        *service.EmailService
	Evidence      *service.EvidenceService
	Notifications *service.NotificationService

	// ClientAPIKey guards the endpoints called by the primary user's app.
	ClientAPIKey string
	// PublicRateLimit is the per-IP requests per minute on endpoints reached
	// from emailed links and recording clients.
	PublicRateLimit int
	// IssueLimit is how many setup tokens one user may issue per hour.
	IssueLimit     int
	MaxUploadBytes int64
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PublicRateLimit <= 0 {
		opts.PublicRateLimit = defaultPublicRateLimit
	}
	if opts.IssueLimit <= 0 {
		opts.IssueLimit = defaultIssueLimit
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	api := &api{
		logger:           logger,
		isProd:           opts.IsProd,
		dbPing:           opts.DBPing,
		setupSvc:         opts.Setup,
		emailSvc:         opts.Emails,
		evidenceSvc:      opts.Evidence,
		notificationsSvc: opts.Notifications,
		validate:         newValidator(),
		issueLimiter:     httprate.NewRateLimiter(opts.IssueLimit, time.Hour),
		maxUploadBytes:   opts.MaxUploadBytes,
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	if opts.Metrics != nil {
		publicMux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	callable := RequireAPIKey(opts.ClientAPIKey)
	public := httprate.LimitByRealIP(opts.PublicRateLimit, time.Minute)
	openCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         300,
	})

	if api.setupSvc == nil {
		apiMux.HandleFunc("POST /v1/setup/tokens", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/setup/complete", handleNotImplemented)
		apiMux.HandleFunc("GET /v1/setup/validate", handleNotImplemented)
	} else {
		apiMux.Handle("POST /v1/setup/tokens", callable(http.HandlerFunc(api.handleSetupTokensCreate)))
		apiMux.Handle("POST /v1/setup/complete", public(http.HandlerFunc(api.handleSetupComplete)))
		apiMux.Handle("GET /v1/setup/validate", public(http.HandlerFunc(api.handleSetupValidate)))
	}

	if api.evidenceSvc == nil {
		apiMux.HandleFunc("POST /v1/evidence/videos", handleNotImplemented)
	} else {
		apiMux.Handle("POST /v1/evidence/videos", openCORS(public(http.HandlerFunc(api.handleEvidenceUpload))))
		apiMux.Handle("OPTIONS /v1/evidence/videos", openCORS(http.HandlerFunc(handleNoContent)))
	}

	if api.emailSvc != nil {
		apiMux.Handle("GET /v1/emails/pending", callable(http.HandlerFunc(api.handleEmailsPending)))
		apiMux.Handle("POST /v1/emails/sent", callable(http.HandlerFunc(api.handleEmailsSent)))
	}

	if api.notificationsSvc != nil {
		apiMux.Handle("POST /v1/notifications/token", callable(http.HandlerFunc(api.handleNotificationsTokenUpsert)))
		apiMux.Handle("DELETE /v1/notifications/token", callable(http.HandlerFunc(api.handleNotificationsTokenDelete)))
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := apiMux.Handler(r)
		if pattern == "" {
			handleV1NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = Instrument(opts.Metrics)(h)
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, codeUnavailable, "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, codeNotFound, "not found")
}

func handleNoContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	setupSvc         *service.SetupService
	emailSvc         *service.EmailService
	evidenceSvc      *service.EvidenceService
	notificationsSvc *service.NotificationService

	validate       *validator.Validate
	issueLimiter   *httprate.RateLimiter
	maxUploadBytes int64
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}

// fail writes err to the client and logs it when it is not a client error.
func (a *api) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if isServerError(err) {
		fields := []any{"err", err}
		if rid, ok := GetRequestID(r.Context()); ok {
			fields = append(fields, "request_id", rid)
		}
		a.logger.Error(op+" failed", fields...)
	}
	WriteDomainError(w, err)
}
