// Package config loads runclub settings from a YAML file, a .env file and
// RUNCLUB_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "runclub.yaml"

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=sqlite pgx postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// ServerConfig controls the HTTP listener and request middleware.
type ServerConfig struct {
	Addr               string        `yaml:"addr" validate:"required"`
	BaseURL            string        `yaml:"baseURL" validate:"required,url"`
	Timezone           string        `yaml:"timezone" validate:"required"`
	CSRFKey            string        `yaml:"csrfKey" validate:"required,hexadecimal,len=64"`
	SecureCookies      bool          `yaml:"secureCookies"`
	TrustedOrigins     []string      `yaml:"trustedOrigins,omitempty"`
	RateLimitPerSecond int           `yaml:"rateLimitPerSecond" validate:"gte=0"`
	SlowRequest        time.Duration `yaml:"slowRequest"`
	SlowQuery          time.Duration `yaml:"slowQuery"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"`
}

// TokenConfig enables bearer tokens when Key is set.
type TokenConfig struct {
	Key    string        `yaml:"key" validate:"omitempty,min=32"`
	Issuer string        `yaml:"issuer" validate:"required"`
	TTL    time.Duration `yaml:"ttl" validate:"gt=0"`
}

// RegistrationConfig tunes profile creation retries after email verification.
type RegistrationConfig struct {
	RetryAttempts int           `yaml:"retryAttempts" validate:"gte=1,lte=10"`
	RetryDelay    time.Duration `yaml:"retryDelay" validate:"gte=0"`
}

// RunsConfig holds defaults for run management.
type RunsConfig struct {
	// DefaultRRule is used when a recurrence is requested without a rule.
	DefaultRRule string `yaml:"defaultRRule"`
}

// OutboxConfig controls the background delivery worker.
type OutboxConfig struct {
	Interval  time.Duration `yaml:"interval" validate:"gt=0"`
	BatchSize int           `yaml:"batchSize" validate:"gte=1,lte=100"`
	BaseDelay time.Duration `yaml:"baseDelay" validate:"gte=0"`
	MaxDelay  time.Duration `yaml:"maxDelay" validate:"gte=0"`
}

// EmailConfig configures outgoing mail. An empty ResendAPIKey uses the noop sender.
type EmailConfig struct {
	ResendAPIKey string `yaml:"resendAPIKey"`
	From         string `yaml:"from" validate:"required"`
	ReplyTo      string `yaml:"replyTo" validate:"omitempty,email"`
	ClubName     string `yaml:"clubName"`
}

// LoggingConfig sets the log level and an optional JSON log file.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file,omitempty"`
}

// AdminConfig is the first administrator created by seed-admin.
type AdminConfig struct {
	Email    string `yaml:"email" validate:"omitempty,email"`
	Password string `yaml:"password"`
	FullName string `yaml:"fullName"`
}

// Config represents the application configuration
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Server       ServerConfig       `yaml:"server"`
	Tokens       TokenConfig        `yaml:"tokens"`
	Registration RegistrationConfig `yaml:"registration"`
	Runs         RunsConfig         `yaml:"runs"`
	Outbox       OutboxConfig       `yaml:"outbox"`
	Email        EmailConfig        `yaml:"email"`
	Logging      LoggingConfig      `yaml:"logging"`
	Admin        AdminConfig        `yaml:"admin"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the settings used when no config file exists.
// The CSRF key is a fixed development value and must be replaced in production.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "runclub.db"},
		Server: ServerConfig{
			Addr:               ":8080",
			BaseURL:            "http://localhost:8080",
			Timezone:           "Europe/London",
			CSRFKey:            "72756e636c75622d6465762d637372662d6b65792d6e6f742d666f722d70726f",
			RateLimitPerSecond: 10,
			SlowRequest:        500 * time.Millisecond,
			SlowQuery:          100 * time.Millisecond,
			ShutdownTimeout:    10 * time.Second,
		},
		Tokens:       TokenConfig{Issuer: "runclub", TTL: 24 * time.Hour},
		Registration: RegistrationConfig{RetryAttempts: 3, RetryDelay: 500 * time.Millisecond},
		Runs:         RunsConfig{DefaultRRule: "FREQ=WEEKLY;COUNT=4"},
		Outbox:       OutboxConfig{Interval: time.Minute, BatchSize: 10, BaseDelay: 30 * time.Second, MaxDelay: time.Hour},
		Email:        EmailConfig{From: "Run Club <noreply@runclub.local>", ClubName: "Run Club"},
		Logging:      LoggingConfig{Level: "info"},
	}
}

// Load reads .env (if present), then the YAML file at path, then applies
// RUNCLUB_* overrides and validates the result. A missing file at the
// default path is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if path == "" {
		path = envOrDefault("RUNCLUB_CONFIG", DefaultPath)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration struct, the time zone and the rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Server.Timezone); err != nil {
		return fmt.Errorf("invalid server.timezone: %w", err)
	}
	if cfg.Runs.DefaultRRule != "" {
		if _, err := rrule.StrToRRule(cfg.Runs.DefaultRRule); err != nil {
			return fmt.Errorf("invalid runs.defaultRRule: %w", err)
		}
	}
	return nil
}

// Location returns the club time zone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// applyEnv overrides fields from RUNCLUB_* variables.
func applyEnv(cfg *Config) error {
	cfg.Database.Driver = envOrDefault("RUNCLUB_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envOrDefault("RUNCLUB_DB_DSN", cfg.Database.DSN)
	cfg.Server.Addr = envOrDefault("RUNCLUB_ADDR", cfg.Server.Addr)
	cfg.Server.BaseURL = envOrDefault("RUNCLUB_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.Timezone = envOrDefault("RUNCLUB_TIMEZONE", cfg.Server.Timezone)
	cfg.Server.CSRFKey = envOrDefault("RUNCLUB_CSRF_KEY", cfg.Server.CSRFKey)
	cfg.Tokens.Key = envOrDefault("RUNCLUB_TOKEN_KEY", cfg.Tokens.Key)
	cfg.Email.ResendAPIKey = envOrDefault("RUNCLUB_RESEND_KEY", cfg.Email.ResendAPIKey)
	cfg.Email.From = envOrDefault("RUNCLUB_RESEND_FROM", cfg.Email.From)
	cfg.Email.ReplyTo = envOrDefault("RUNCLUB_REPLY_TO", cfg.Email.ReplyTo)
	cfg.Logging.Level = envOrDefault("RUNCLUB_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = envOrDefault("RUNCLUB_LOG_FILE", cfg.Logging.File)
	cfg.Admin.Email = envOrDefault("RUNCLUB_ADMIN_EMAIL", cfg.Admin.Email)
	cfg.Admin.Password = envOrDefault("RUNCLUB_ADMIN_PASSWORD", cfg.Admin.Password)

	if v := os.Getenv("RUNCLUB_SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUNCLUB_SECURE_COOKIES: %w", err)
		}
		cfg.Server.SecureCookies = b
	}
	if v := os.Getenv("RUNCLUB_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RUNCLUB_RATE_LIMIT: %w", err)
		}
		cfg.Server.RateLimitPerSecond = n
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
