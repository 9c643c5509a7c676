// Package config provides configuration management for the price alert job.
// It loads configuration from environment variables and .env files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/price-alerts/internal/errors"
)

// Retire modes control what happens to an alert after its email is sent.
const (
	RetireDelete = "delete"
	RetireMark   = "mark"
)

// TLS modes for the mail submission channel.
const (
	TLSImplicit = "implicit"
	TLSStartTLS = "starttls"

	// TLSNone is for a relay on localhost; net/smtp refuses PLAIN auth
	// over an unencrypted connection to any other host.
	TLSNone = "none"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Mail     MailConfig
	Alerts   AlertsConfig
	Probe    ProbeConfig
	Lock     LockConfig
	Webhook  WebhookConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// MailConfig holds SMTP submission configuration
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	TLSMode     string
	SendRate    float64 // messages per second
	SendBurst   int
	MaxFailures int // consecutive transport failures before the rest of the run is skipped
}

// AlertsConfig holds the alert lifecycle and email rendering settings
type AlertsConfig struct {
	CurrencySymbol string
	SiteURL        string
	ImageBaseURL   string
	DefaultImage   string
	RetireMode     string
}

// ProbeConfig holds the image availability probe policy
type ProbeConfig struct {
	Enabled     bool
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
}

// LockConfig holds the run lock configuration. An empty RedisURL disables the lock.
type LockConfig struct {
	RedisURL string
	Key      string
	TTL      time.Duration
}

// WebhookConfig holds the run report webhook configuration
type WebhookConfig struct {
	URL    string
	Secret string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; the scheduler usually injects the environment directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, apperrors.NewConfigError(".env", err.Error())
		}
	}

	siteURL := strings.TrimRight(getEnv("SITE_URL", "https://example.com"), "/")

	config := &Config{
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", getEnv("RENDER_DATABASE_URL", "")),
			MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 4),
		},
		Mail: MailConfig{
			Host:        getEnv("MAIL_HOST", "smtp.gmail.com"),
			Port:        getEnvAsInt("MAIL_PORT", 465),
			Username:    getEnv("MAIL_USERNAME", ""),
			Password:    getEnv("MAIL_PASSWORD", ""),
			FromName:    getEnv("MAIL_FROM_NAME", "Price Alerts"),
			TLSMode:     strings.ToLower(getEnv("MAIL_TLS_MODE", TLSImplicit)),
			SendRate:    getEnvAsFloat("MAIL_SEND_RATE", 2),
			SendBurst:   getEnvAsInt("MAIL_SEND_BURST", 1),
			MaxFailures: getEnvAsInt("MAIL_BREAKER_MAX_FAILURES", 5),
		},
		Alerts: AlertsConfig{
			CurrencySymbol: getEnv("CURRENCY_SYMBOL", "₹"),
			SiteURL:        siteURL,
			ImageBaseURL:   strings.TrimRight(getEnv("IMAGE_BASE_URL", siteURL+"/static/images"), "/"),
			DefaultImage:   getEnv("DEFAULT_IMAGE", "default.png"),
			RetireMode:     strings.ToLower(getEnv("ALERT_RETIRE_MODE", RetireDelete)),
		},
		Probe: ProbeConfig{
			Enabled:     getEnvAsBool("IMAGE_PROBE_ENABLED", true),
			MaxAttempts: getEnvAsInt("IMAGE_PROBE_ATTEMPTS", 3),
			Interval:    getEnvAsDuration("IMAGE_PROBE_INTERVAL", 5*time.Second),
			Timeout:     getEnvAsDuration("IMAGE_PROBE_TIMEOUT", 10*time.Second),
		},
		Lock: LockConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			Key:      getEnv("RUN_LOCK_KEY", "price-alerts:run-lock"),
			TTL:      getEnvAsDuration("RUN_LOCK_TTL", 30*time.Minute),
		},
		Webhook: WebhookConfig{
			URL:    getEnv("WEBHOOK_URL", ""),
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	return config, nil
}

// Validate reports the first missing or malformed required setting.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return apperrors.NewConfigError("DATABASE_URL", "database connection string is required")
	}
	if c.Mail.Username == "" || c.Mail.Password == "" {
		return apperrors.NewConfigError("MAIL_USERNAME", "mail credentials are required")
	}
	switch c.Mail.TLSMode {
	case TLSImplicit, TLSStartTLS, TLSNone:
	default:
		return apperrors.NewConfigError("MAIL_TLS_MODE", "must be implicit, starttls or none")
	}
	if c.Alerts.RetireMode != RetireDelete && c.Alerts.RetireMode != RetireMark {
		return apperrors.NewConfigError("ALERT_RETIRE_MODE", "must be delete or mark")
	}
	if c.Probe.Enabled && c.Probe.MaxAttempts < 1 {
		return apperrors.NewConfigError("IMAGE_PROBE_ATTEMPTS", "must be at least 1")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
