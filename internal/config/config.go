package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	Addr         string
	PublicURL    *url.URL
	DBDSN        string
	LogLevel     string
	ClientAPIKey string

	SetupTokenTTL  time.Duration
	SetupLinkBase  string
	EncryptionKey  string
	MaxUploadBytes int64

	// IssueLimit caps setup tokens per user per hour; PublicRateLimit caps
	// requests per IP per minute on unauthenticated endpoints.
	IssueLimit      int
	PublicRateLimit int

	GoogleClientID     string
	GoogleClientSecret string

	UploadMaxAttempts int
	UploadBaseDelay   time.Duration

	EmailJSServiceID  string
	EmailJSTemplateID string
	EmailJSUserID     string

	SMTP               SMTPConfig
	EmailRelayInterval time.Duration

	FCMProjectID       string
	FCMCredentialsPath string
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

func (s SMTPConfig) Enabled() bool { return s.Host != "" && s.FromEmail != "" }

// Load reads the process environment, filling gaps from a .env file in the
// working directory when one exists.
func Load() (Config, error) {
	if err := loadDotEnvFile(".env", os.Setenv, os.Getenv); err != nil {
		return Config{}, err
	}
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:                getenv("APP_ENV"),
		Addr:               getenv("APP_ADDR"),
		DBDSN:              getenv("APP_DB_DSN"),
		LogLevel:           getenv("APP_LOG_LEVEL"),
		ClientAPIKey:       getenv("APP_CLIENT_API_KEY"),
		EncryptionKey:      getenv("APP_TOKEN_ENCRYPTION_KEY"),
		GoogleClientID:     strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_ID")),
		GoogleClientSecret: getenv("APP_GOOGLE_CLIENT_SECRET"),
		EmailJSServiceID:   strings.TrimSpace(getenv("APP_EMAILJS_SERVICE_ID")),
		EmailJSTemplateID:  strings.TrimSpace(getenv("APP_EMAILJS_TEMPLATE_ID")),
		EmailJSUserID:      strings.TrimSpace(getenv("APP_EMAILJS_USER_ID")),
		FCMProjectID:       strings.TrimSpace(getenv("APP_FCM_PROJECT_ID")),
		FCMCredentialsPath: strings.TrimSpace(getenv("APP_FCM_CREDENTIALS")),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	publicURLRaw := getenv("APP_PUBLIC_URL")
	if publicURLRaw != "" {
		parsed, err := url.Parse(publicURLRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_PUBLIC_URL: %w", err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return Config{}, errors.New("APP_PUBLIC_URL: must be an absolute URL")
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return Config{}, errors.New("APP_PUBLIC_URL: scheme must be http or https")
		}
		cfg.PublicURL = parsed
	}

	var err error
	if cfg.SetupTokenTTL, err = parseDuration(getenv, "APP_SETUP_TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.UploadBaseDelay, err = parseDuration(getenv, "APP_UPLOAD_BASE_DELAY", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.EmailRelayInterval, err = parseDuration(getenv, "APP_EMAIL_RELAY_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.UploadMaxAttempts, err = parseInt(getenv, "APP_UPLOAD_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.IssueLimit, err = parseInt(getenv, "APP_SETUP_ISSUE_LIMIT", 10); err != nil {
		return Config{}, err
	}
	if cfg.PublicRateLimit, err = parseInt(getenv, "APP_PUBLIC_RATE_LIMIT", 60); err != nil {
		return Config{}, err
	}
	maxMB, err := parseInt(getenv, "APP_MAX_UPLOAD_MB", 64)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxMB) << 20

	cfg.SetupLinkBase = strings.TrimSpace(getenv("APP_SETUP_LINK_BASE"))
	if cfg.SetupLinkBase == "" && cfg.PublicURL != nil {
		u := *cfg.PublicURL
		u.Path = strings.TrimSuffix(u.Path, "/") + "/setup-drive"
		cfg.SetupLinkBase = u.String()
	}

	cfg.SMTP = SMTPConfig{
		Host:      strings.TrimSpace(getenv("APP_SMTP_HOST")),
		Username:  getenv("APP_SMTP_USERNAME"),
		Password:  getenv("APP_SMTP_PASSWORD"),
		FromEmail: strings.TrimSpace(getenv("APP_SMTP_FROM_EMAIL")),
		FromName:  strings.TrimSpace(getenv("APP_SMTP_FROM_NAME")),
	}
	if cfg.SMTP.Port, err = parseInt(getenv, "APP_SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.FromEmail == "" {
		return Config{}, errors.New("APP_SMTP_FROM_EMAIL: required when APP_SMTP_HOST is set")
	}

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret == "" {
		return Config{}, errors.New("APP_GOOGLE_CLIENT_SECRET: required when APP_GOOGLE_CLIENT_ID is set")
	}

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.EncryptionKey) < 32 {
			return Config{}, errors.New("APP_TOKEN_ENCRYPTION_KEY: must be at least 32 bytes in prod")
		}
		if cfg.GoogleClientID == "" {
			return Config{}, errors.New("APP_GOOGLE_CLIENT_ID: required in prod")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", key)
	}
	return d, nil
}

func parseInt(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", key)
	}
	return n, nil
}

// loadDotEnvFile copies values from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range values {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}
