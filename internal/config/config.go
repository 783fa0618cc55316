package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the application. Values come from an
// optional TOML file named by CONFIG_FILE and are then overridden by
// environment variables.
type Config struct {
	// Database: a postgres URL or "sqlite:<path>"
	DatabaseURL string `toml:"database_url"`

	// Server ports
	APIPort     int  `toml:"api_port"`
	SMTPPort    int  `toml:"smtp_port"`
	SMTPEnabled bool `toml:"smtp_enabled"`

	// SMTPHostname is announced in the SMTP greeting
	SMTPHostname string `toml:"smtp_hostname"`

	// Optional STARTTLS certificate; both or neither
	SMTPTLSCert string `toml:"smtp_tls_cert"`
	SMTPTLSKey  string `toml:"smtp_tls_key"`

	// Logging
	LogLevel string `toml:"log_level"`

	// Security
	APIKey         string `toml:"api_key"`
	AllowedOrigins string `toml:"allowed_origins"`
	AppEnv         string `toml:"app_env"`

	// Rate Limiting, per organization
	RateLimitRequests float64 `toml:"rate_limit_requests"`
	RateLimitBurst    int     `toml:"rate_limit_burst"`

	// Reconciliation lock; empty RedisURL keeps the lock in-process
	RedisURL        string        `toml:"redis_url"`
	ResolverLockTTL time.Duration `toml:"resolver_lock_ttl"`

	// Threading
	SubjectCandidateLimit int `toml:"subject_candidate_limit"`
	ReferenceLookupLimit  int `toml:"reference_lookup_limit"`
	MaxActivityRetries    int `toml:"max_activity_retries"`
}

func defaults() *Config {
	return &Config{
		APIPort:               8080,
		SMTPPort:              2525,
		SMTPEnabled:           true,
		SMTPHostname:          "mail.infinimail.local",
		LogLevel:              "info",
		AppEnv:                "development",
		RateLimitRequests:     10.0,
		RateLimitBurst:        20,
		ResolverLockTTL:       2 * time.Minute,
		SubjectCandidateLimit: 5,
		ReferenceLookupLimit:  10,
		MaxActivityRetries:    5,
	}
}

// Load reads configuration from CONFIG_FILE (if set) and environment variables
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// Required: DATABASE_URL
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}

	if err := envInt("API_PORT", &c.APIPort); err != nil {
		return err
	}
	if err := envInt("SMTP_PORT", &c.SMTPPort); err != nil {
		return err
	}
	if v := os.Getenv("SMTP_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SMTP_ENABLED must be a valid boolean: %w", err)
		}
		c.SMTPEnabled = enabled
	}

	if v := os.Getenv("SMTP_HOSTNAME"); v != "" {
		c.SMTPHostname = v
	}
	if v := os.Getenv("SMTP_TLS_CERT"); v != "" {
		c.SMTPTLSCert = v
	}
	if v := os.Getenv("SMTP_TLS_KEY"); v != "" {
		c.SMTPTLSKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Security configuration
	if v := os.Getenv("API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.AppEnv = v
	}

	// Malformed rate limit values keep the current setting
	if rps := os.Getenv("RATE_LIMIT_REQUESTS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			c.RateLimitRequests = v
		}
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			c.RateLimitBurst = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("RESOLVER_LOCK_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RESOLVER_LOCK_TTL must be a valid duration: %w", err)
		}
		c.ResolverLockTTL = ttl
	}

	if err := envInt("SUBJECT_CANDIDATE_LIMIT", &c.SubjectCandidateLimit); err != nil {
		return err
	}
	if err := envInt("REFERENCE_LOOKUP_LIMIT", &c.ReferenceLookupLimit); err != nil {
		return err
	}
	return envInt("MAX_ACTIVITY_RETRIES", &c.MaxActivityRetries)
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	*dst = n
	return nil
}

// LoadWithValidation loads the configuration and rejects it unless it
// passes Validate, and ValidateProduction when AppEnv is production.
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsProduction() {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, fmt.Errorf("invalid production configuration: %w", err)
		}
	}
	return cfg, nil
}

// IsProduction reports whether AppEnv is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTPPort must be between 1 and 65535")
	}
	if c.SubjectCandidateLimit <= 0 {
		return fmt.Errorf("SubjectCandidateLimit must be positive")
	}
	if c.ReferenceLookupLimit <= 0 {
		return fmt.Errorf("ReferenceLookupLimit must be positive")
	}
	if c.MaxActivityRetries <= 0 {
		return fmt.Errorf("MaxActivityRetries must be positive")
	}
	if c.ResolverLockTTL <= 0 {
		return fmt.Errorf("ResolverLockTTL must be positive")
	}
	if (c.SMTPTLSCert == "") != (c.SMTPTLSKey == "") {
		return fmt.Errorf("SMTP_TLS_CERT and SMTP_TLS_KEY must be set together")
	}
	return nil
}

// ValidateProduction reports every setting that is unsafe outside
// development, joined into one error.
func (c *Config) ValidateProduction() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required in production"))
	}
	switch {
	case c.AllowedOrigins == "":
		errs = append(errs, errors.New("ALLOWED_ORIGINS is required in production"))
	case strings.Contains(c.AllowedOrigins, "*"):
		errs = append(errs, errors.New("wildcard (*) origins are not allowed in production"))
	}
	switch {
	case strings.HasPrefix(c.DatabaseURL, "sqlite:"):
		errs = append(errs, errors.New("sqlite is not allowed in production"))
	case strings.Contains(c.DatabaseURL, "sslmode=disable"):
		errs = append(errs, errors.New("sslmode=disable is not allowed in production"))
	}
	return errors.Join(errs...)
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.Int("smtp_port", c.SMTPPort),
		slog.Bool("smtp_enabled", c.SMTPEnabled),
		slog.String("smtp_hostname", c.SMTPHostname),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("allowed_origins_set", c.AllowedOrigins != ""),
		slog.Float64("rate_limit_rps", c.RateLimitRequests),
		slog.Int("rate_limit_burst", c.RateLimitBurst),
		slog.Bool("redis_lock", c.RedisURL != ""),
		slog.Duration("resolver_lock_ttl", c.ResolverLockTTL),
		slog.Int("subject_candidate_limit", c.SubjectCandidateLimit),
		slog.Int("reference_lookup_limit", c.ReferenceLookupLimit),
		slog.Int("max_activity_retries", c.MaxActivityRetries),
	)
}
