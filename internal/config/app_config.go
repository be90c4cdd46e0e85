// Package config holds process configuration and the versioned, hot-reloadable
// provider settings shared by the delivery adapters.
package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP server port for the ops surface. Defaults to 8870.
	Port int `envconfig:"PORT" default:"8870"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogDir is where rotated JSON logs are written. Empty means stderr only.
	LogDir string `envconfig:"LOG_DIR"`

	// DBPath is the SQLite database file for notification logs, webhook
	// endpoints, templates and team settings.
	DBPath string `envconfig:"DB_PATH" default:"data/notify.db"`

	// RedisAddr is the Redis instance backing the dispatch queues and the
	// event bus consumer.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// WorkersPerChannel is the worker pool size for each delivery channel.
	WorkersPerChannel int `envconfig:"WORKERS_PER_CHANNEL" default:"4"`

	// MaxAttempts caps delivery retries per job.
	MaxAttempts int `envconfig:"MAX_ATTEMPTS" default:"4"`

	// ConfigServiceURL is the external configuration service polled for
	// provider settings. Empty disables remote refresh; the env seed is used.
	ConfigServiceURL string `envconfig:"CONFIG_SERVICE_URL"`

	// ConfigRefreshMinutes is the interval between provider settings refreshes.
	ConfigRefreshMinutes int `envconfig:"CONFIG_REFRESH_MINUTES" default:"5"`

	// DirectoryServiceURL resolves user ids to email addresses for
	// identity-bound notifications.
	DirectoryServiceURL string `envconfig:"DIRECTORY_SERVICE_URL"`

	// InternalAuthKey is the shared credential sent on internal service calls.
	InternalAuthKey string `envconfig:"INTERNAL_AUTH_KEY"`

	// WebhookFailingAfter and WebhookDisableAfter are the consecutive-failure
	// thresholds of the endpoint health state machine.
	WebhookFailingAfter int `envconfig:"WEBHOOK_FAILING_AFTER" default:"5"`
	WebhookDisableAfter int `envconfig:"WEBHOOK_DISABLE_AFTER" default:"20"`

	// Email provider seed. The ProviderStore starts from these values and may
	// be superseded by the configuration service at runtime.
	EmailProvider string `envconfig:"EMAIL_PROVIDER" default:"smtp"`
	EmailFrom     string `envconfig:"EMAIL_FROM" default:"no-reply@lnk.day"`
	EmailFromName string `envconfig:"EMAIL_FROM_NAME" default:"lnk.day"`
	SMTPHost      string `envconfig:"SMTP_HOST"`
	SMTPPort      int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername  string `envconfig:"SMTP_USERNAME"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	EmailAPIKey   string `envconfig:"EMAIL_API_KEY"`
	EmailAPIURL   string `envconfig:"EMAIL_API_URL" default:"https://api.resend.com/emails"`

	// SMS provider seed.
	SMSProvider   string `envconfig:"SMS_PROVIDER" default:"twilio"`
	SMSAccountSID string `envconfig:"SMS_ACCOUNT_SID"`
	SMSAuthToken  string `envconfig:"SMS_AUTH_TOKEN"`
	SMSFromNumber string `envconfig:"SMS_FROM_NUMBER"`

	// SlackBotToken is the fallback for teams without an incoming webhook URL.
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
}

// Load reads AppConfig from environment variables using envconfig.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &c, nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
