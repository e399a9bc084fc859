package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	DataDir      string
	SQLiteDBPath string
	DatabaseURL  string

	// Budgets
	LimitsFile     string
	CurrencySymbol string

	// Alert dispatch
	NotifyMaxInFlight int
	NotifyTimeout     time.Duration

	// AMQP, optional. Alerts are published here for the alert worker.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Email alerts
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Webhook alerts
	AlertWebhookURL   string
	WebhookMaxRetries int

	// Google Sheets alert journal
	GoogleSpreadsheetID string
	GoogleAlertsSheet   string

	// Worker
	OwnerCacheTTL time.Duration

	// Observability
	SentryDSN         string
	SentryEnvironment string
	LogLevel          string
	LogFormat         string
}

var validBackends = []string{"memory", "sqlite", "postgres"}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		DataDir:      getEnv("DATA_DIR", "data"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		LimitsFile:     getEnv("LIMITS_FILE", ""),
		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "₹"),

		NotifyMaxInFlight: getEnvInt("NOTIFY_MAX_IN_FLIGHT", 16),
		NotifyTimeout:     getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_alerts"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		AlertWebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),
		WebhookMaxRetries: getEnvInt("WEBHOOK_MAX_RETRIES", 3),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleAlertsSheet:   getEnv("GOOGLE_ALERTS_SHEET", "Alerts"),

		OwnerCacheTTL: getEnvDuration("OWNER_CACHE_TTL", 5*time.Minute),

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
	}
}

// EmailEnabled reports whether SMTP delivery is configured.
func (c *Config) EmailEnabled() bool { return c.SMTPHost != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid DATABASE_URL: scheme must be 'postgres' or 'postgresql'")
		}
	}

	if c.LimitsFile != "" {
		if _, err := os.Stat(c.LimitsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("limits file does not exist: %s", c.LimitsFile))
		}
	}

	if c.NotifyMaxInFlight < 1 {
		errors = append(errors, fmt.Sprintf("invalid notify max in flight %d: must be at least 1", c.NotifyMaxInFlight))
	}
	if c.NotifyTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid notify timeout %v: must be at least 1 second", c.NotifyTimeout))
	} else if c.NotifyTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid notify timeout %v: must be at most 5 minutes", c.NotifyTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.EmailEnabled() {
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			errors = append(errors, fmt.Sprintf("invalid SMTP port %d: must be between 1 and 65535", c.SMTPPort))
		}
		if _, err := mail.ParseAddress(c.SMTPFrom); err != nil {
			errors = append(errors, fmt.Sprintf("invalid SMTP_FROM '%s': %v", c.SMTPFrom, err))
		}
	}

	if c.AlertWebhookURL != "" {
		if u, err := url.Parse(c.AlertWebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid ALERT_WEBHOOK_URL '%s': must be an http(s) url", c.AlertWebhookURL))
		}
	}
	if c.WebhookMaxRetries < 0 || c.WebhookMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid webhook max retries %d: must be between 0 and 10", c.WebhookMaxRetries))
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleAlertsSheet == "" {
		errors = append(errors, "GOOGLE_ALERTS_SHEET cannot be empty when GOOGLE_SPREADSHEET_ID is provided")
	}

	if c.OwnerCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid owner cache ttl %v: must not be negative", c.OwnerCacheTTL))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
