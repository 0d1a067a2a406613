package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every variable name, e.g. LIFEOS_DB_DSN.
const EnvPrefix = "LIFEOS"

type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	AppURL      string `envconfig:"APP_URL" default:"http://localhost:5173"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	DB struct {
		DSN      string `envconfig:"DSN"`
		Host     string `envconfig:"HOST"`
		Port     string `envconfig:"PORT" default:"5432"`
		Name     string `envconfig:"NAME"`
		User     string `envconfig:"USER"`
		Password string `envconfig:"PASSWORD"`
		SSLMode  string `envconfig:"SSLMODE" default:"disable"`
	} `envconfig:"DB"`

	Auth struct {
		JWTSecret    string `envconfig:"JWT_SECRET"`
		OIDCIssuer   string `envconfig:"OIDC_ISSUER"`
		OIDCAudience string `envconfig:"OIDC_AUDIENCE"`
		RequireAAL2  bool   `envconfig:"REQUIRE_AAL2" default:"false"`
	} `envconfig:"AUTH"`

	// FunctionsServiceKey guards the reminder batch endpoints. Empty disables the check.
	FunctionsServiceKey string `envconfig:"FUNCTIONS_SERVICE_KEY"`

	// TokenEncryptionKey is a base64 encoded 32 byte key used to seal OAuth tokens at rest.
	TokenEncryptionKey string `envconfig:"TOKEN_ENCRYPTION_KEY"`

	Google struct {
		ClientID     string `envconfig:"CLIENT_ID"`
		ClientSecret string `envconfig:"CLIENT_SECRET"`
		AuthURL      string `envconfig:"AUTH_URL"`
		TokenURL     string `envconfig:"TOKEN_URL"`
		APIBaseURL   string `envconfig:"API_BASE_URL" default:"https://www.googleapis.com/calendar/v3"`
	} `envconfig:"GOOGLE"`

	Microsoft struct {
		ClientID     string `envconfig:"CLIENT_ID"`
		ClientSecret string `envconfig:"CLIENT_SECRET"`
		Tenant       string `envconfig:"TENANT" default:"common"`
		AuthURL      string `envconfig:"AUTH_URL"`
		TokenURL     string `envconfig:"TOKEN_URL"`
		APIBaseURL   string `envconfig:"API_BASE_URL" default:"https://graph.microsoft.com/v1.0"`
	} `envconfig:"MICROSOFT"`

	Email struct {
		APIURL string `envconfig:"API_URL" default:"https://api.resend.com"`
		APIKey string `envconfig:"API_KEY"`
		From   string `envconfig:"FROM" default:"Life OS <reminders@lifeos.app>"`
	} `envconfig:"EMAIL"`

	// ReminderCron schedules all reminder jobs in-process when set (e.g. "*/30 * * * *").
	ReminderCron string `envconfig:"REMINDER_CRON"`

	PrometheusEnabled  bool     `envconfig:"PROMETHEUS_ENABLED" default:"false"`
	TrustedProxies     []string `envconfig:"TRUSTED_PROXIES"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills derived values and reports missing or malformed settings.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		var missing []string
		if c.DB.Host == "" {
			missing = append(missing, EnvPrefix+"_DB_HOST")
		}
		if c.DB.Name == "" {
			missing = append(missing, EnvPrefix+"_DB_NAME")
		}
		if c.DB.User == "" {
			missing = append(missing, EnvPrefix+"_DB_USER")
		}
		if c.DB.Password == "" {
			missing = append(missing, EnvPrefix+"_DB_PASSWORD")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%s_DB_DSN is required (or set %s)", EnvPrefix, strings.Join(missing, ", "))
		}
		c.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			url.QueryEscape(c.DB.User), url.QueryEscape(c.DB.Password), c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
	}

	if c.Auth.JWTSecret == "" && c.Auth.OIDCIssuer == "" {
		return errors.New(EnvPrefix + "_AUTH_JWT_SECRET or " + EnvPrefix + "_AUTH_OIDC_ISSUER is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("%s_AUTH_JWT_SECRET must be at least 32 characters long (got %d)", EnvPrefix, len(c.Auth.JWTSecret))
	}

	if c.TokenEncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("%s_TOKEN_ENCRYPTION_KEY must be base64: %w", EnvPrefix, err)
		}
		if len(key) != 32 {
			return fmt.Errorf("%s_TOKEN_ENCRYPTION_KEY must decode to 32 bytes (got %d)", EnvPrefix, len(key))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported %s_LOG_LEVEL: %s", EnvPrefix, c.LogLevel)
	}

	return nil
}

// IsDevelopment reports whether the service runs in a local development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// TokenKey returns the decoded token sealing key, or nil when sealing is disabled.
func (c *Config) TokenKey() []byte {
	if c.TokenEncryptionKey == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(c.TokenEncryptionKey)
	if err != nil {
		return nil
	}
	return key
}
