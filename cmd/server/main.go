package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"SafeCircleserver/internal/auth"
	"SafeCircleserver/internal/config"
	"SafeCircleserver/internal/email"
	"SafeCircleserver/internal/gdrive"
	"SafeCircleserver/internal/httpapi"
	"SafeCircleserver/internal/metrics"
	"SafeCircleserver/internal/notifications"
	"SafeCircleserver/internal/service"
	"SafeCircleserver/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	cipher, err := newTokenCipher(cfg, logger)
	if err != nil {
		logger.Error("token cipher init failed", "err", err)
		os.Exit(1)
	}

	var (
		setupSvc         *service.SetupService
		emailSvc         *service.EmailService
		evidenceSvc      *service.EvidenceService
		notificationsSvc *service.NotificationService
		relay            *service.EmailRelay
		dbPing           func(context.Context) error
	)

	if cfg.DBDSN != "" {
		pgPool, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := postgres.Migrate(ctx, pgPool); err != nil {
			logger.Error("db migrate failed", "err", err)
			os.Exit(1)
		}

		setupTokens := postgres.NewSetupTokensStore(pgPool)
		contactTokens := postgres.NewContactTokensStore(pgPool)
		pendingEmails := postgres.NewPendingEmailsStore(pgPool)
		notificationTokens := postgres.NewNotificationTokensStore(pgPool)

		notificationsSvc = &service.NotificationService{
			Tokens: notificationTokens,
			Sender: newPushSender(ctx, cfg, logger),
			Logger: logger,
		}
		emailSvc = &service.EmailService{
			Store: pendingEmails,
			Template: service.EmailTemplate{
				ServiceID:  cfg.EmailJSServiceID,
				TemplateID: cfg.EmailJSTemplateID,
				UserID:     cfg.EmailJSUserID,
			},
			LinkBase: cfg.SetupLinkBase,
			Metrics:  m,
		}
		setupSvc = &service.SetupService{
			Tokens:         setupTokens,
			Contacts:       contactTokens,
			Cipher:         cipher,
			Emails:         emailSvc,
			Notifier:       notificationsSvc,
			GoogleClientID: cfg.GoogleClientID,
			TokenTTL:       cfg.SetupTokenTTL,
			Metrics:        m,
			Logger:         logger,
		}
		evidenceSvc = &service.EvidenceService{
			Credentials: contactTokens,
			Cipher:      cipher,
			Drive:       service.GoogleDrive{Connector: gdrive.NewConnector(cfg.GoogleClientID, cfg.GoogleClientSecret)},
			Retry: service.RetryPolicy{
				MaxAttempts: cfg.UploadMaxAttempts,
				BaseDelay:   cfg.UploadBaseDelay,
			},
			Metrics: m,
			Logger:  logger,
		}

		if cfg.SMTP.Enabled() {
			relay = &service.EmailRelay{
				Emails: emailSvc,
				Sender: email.NewSMTPSender(email.SMTPSettings{
					Host:     cfg.SMTP.Host,
					Port:     cfg.SMTP.Port,
					Username: cfg.SMTP.Username,
					Password: cfg.SMTP.Password,
				}),
				FromEmail: cfg.SMTP.FromEmail,
				FromName:  cfg.SMTP.FromName,
				Interval:  cfg.EmailRelayInterval,
				Logger:    logger,
				Metrics:   m,
			}
		} else {
			logger.Info("smtp relay disabled; pending emails are left for the client")
		}
		dbPing = pgPool.Ping
	} else {
		logger.Warn("APP_DB_DSN not set; setup and evidence endpoints disabled")
	}

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:          logger,
		IsProd:          cfg.IsProd(),
		DBPing:          dbPing,
		Metrics:         m,
		Setup:           setupSvc,
		Emails:          emailSvc,
		Evidence:        evidenceSvc,
		Notifications:   notificationsSvc,
		ClientAPIKey:    cfg.ClientAPIKey,
		PublicRateLimit: cfg.PublicRateLimit,
		IssueLimit:      cfg.IssueLimit,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
			wg.Wait()
			os.Exit(1)
		}
	}
	stop()
	wg.Wait()
}

func newTokenCipher(cfg config.Config, logger *slog.Logger) (*auth.TokenCipher, error) {
	if cfg.EncryptionKey != "" {
		return auth.NewTokenCipher([]byte(cfg.EncryptionKey))
	}
	logger.Warn("APP_TOKEN_ENCRYPTION_KEY not set; using an ephemeral key, stored contact tokens will not survive a restart")
	return auth.NewEphemeralTokenCipher()
}

func newPushSender(ctx context.Context, cfg config.Config, logger *slog.Logger) service.PushSender {
	if cfg.FCMProjectID == "" {
		logger.Info("push notifications disabled")
		return nil
	}
	sender, err := notifications.NewFCMSender(ctx, cfg.FCMProjectID, cfg.FCMCredentialsPath)
	if err != nil {
		logger.Error("push notifications disabled", "err", err)
		return nil
	}
	return sender
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
