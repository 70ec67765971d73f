// Package config loads process configuration from GIADINH_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	Port      string `env:"GIADINH_PORT" default:"8080"`
	DBPath    string `env:"GIADINH_DB_PATH" default:"giadinh.db"`
	BaseURL   string `env:"GIADINH_BASE_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"GIADINH_LOG_LEVEL" default:"info"`
	LogFormat string `env:"GIADINH_LOG_FORMAT" default:"text"`

	// Seeds the first admin account when the users table has no admin.
	AdminEmail    string `env:"GIADINH_ADMIN_EMAIL"`
	AdminPassword string `env:"GIADINH_ADMIN_PASSWORD"`

	SecureCookies bool `env:"GIADINH_SECURE_COOKIES" default:"false"`

	// Interval of the reminder scheduler tick.
	ReminderInterval time.Duration `env:"GIADINH_REMINDER_INTERVAL" default:"1m"`

	VAPIDPublicKey  string `env:"GIADINH_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"GIADINH_VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"GIADINH_VAPID_SUBJECT" default:"mailto:admin@giadinh.local"`

	PostmarkToken string `env:"GIADINH_POSTMARK_TOKEN"`
	EmailFrom     string `env:"GIADINH_EMAIL_FROM"`

	S3Endpoint  string `env:"GIADINH_S3_ENDPOINT"`
	S3Region    string `env:"GIADINH_S3_REGION" default:"auto"`
	S3Bucket    string `env:"GIADINH_S3_BUCKET"`
	S3Prefix    string `env:"GIADINH_S3_PREFIX" default:"backups"`
	S3AccessKey string `env:"GIADINH_S3_ACCESS_KEY"`
	S3SecretKey string `env:"GIADINH_S3_SECRET_KEY"`
}

// Load reads .env when present, then the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PushEnabled reports whether both VAPID keys are present.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) EmailEnabled() bool {
	return c.PostmarkToken != "" && c.EmailFrom != ""
}

func (c *Config) BackupEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func validate(cfg *Config) error {
	if cfg.DBPath == "" {
		return errors.New("GIADINH_DB_PATH must not be empty")
	}

	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GIADINH_BASE_URL must be an absolute URL, got %q", cfg.BaseURL)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("GIADINH_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return errors.New("GIADINH_ADMIN_EMAIL and GIADINH_ADMIN_PASSWORD must be set together")
	}
	if cfg.AdminPassword != "" && len(cfg.AdminPassword) < 8 {
		return errors.New("GIADINH_ADMIN_PASSWORD must be at least 8 characters")
	}

	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		return errors.New("GIADINH_VAPID_PUBLIC_KEY and GIADINH_VAPID_PRIVATE_KEY must be set together")
	}

	if cfg.S3Bucket != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return errors.New("GIADINH_S3_ACCESS_KEY and GIADINH_S3_SECRET_KEY are required when GIADINH_S3_BUCKET is set")
	}

	if cfg.ReminderInterval < time.Second {
		return fmt.Errorf("GIADINH_REMINDER_INTERVAL must be at least 1s, got %s", cfg.ReminderInterval)
	}
	return nil
}
