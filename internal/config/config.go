// Package config loads server settings from defaults, an optional YAML file,
// an optional .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Media    MediaConfig    `yaml:"media"`
	Claims   ClaimsConfig   `yaml:"claims"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// BaseURL is prepended to media references; empty means the request's own host.
	BaseURL         string        `yaml:"base_url"`
	CORSOrigin      string        `yaml:"cors_origin"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig controls tokens, verification codes and login rate limits.
type AuthConfig struct {
	// JWTSecret signs tokens. Empty means a secret generated once and kept in the database.
	JWTSecret           string        `yaml:"jwt_secret"`
	TokenTTL            time.Duration `yaml:"token_ttl"`
	RequireVerification bool          `yaml:"require_verification"`
	OTPTTL              time.Duration `yaml:"otp_ttl"`
	// RateLimit is the sustained number of auth attempts per minute per client IP.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// MediaConfig controls image uploads.
type MediaConfig struct {
	Dir          string `yaml:"dir"`
	MaxFiles     int    `yaml:"max_files"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
}

// ClaimsConfig controls the request and claim lifecycle.
type ClaimsConfig struct {
	DirectClaimCascade bool          `yaml:"direct_claim_cascade"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	CascadeRetries     int           `yaml:"cascade_retries"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Path additionally writes logs to a file when set.
	Path string `yaml:"path"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
	// Level is the minimum level logged: debug, info, warn or error.
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			CORSOrigin:      "*",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "treasure.db"},
		Auth: AuthConfig{
			TokenTTL:  7 * 24 * time.Hour,
			OTPTTL:    10 * time.Minute,
			RateLimit: 10,
			RateBurst: 5,
		},
		Media: MediaConfig{
			Dir:          "uploads",
			MaxFiles:     5,
			MaxFileBytes: 10 << 20,
		},
		Claims: ClaimsConfig{
			ReconcileInterval: 5 * time.Minute,
			CascadeRetries:    3,
		},
		Log: LogConfig{Format: "text", Level: "info"},
	}
}

// Load builds the configuration. path is an optional YAML file and envFile
// an optional .env file; a missing .env file is not an error. Variables
// already set in the environment win over the .env file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would make the server misbehave.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is empty"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.OTPTTL <= 0 {
		errs = append(errs, errors.New("auth.otp_ttl must be positive"))
	}
	if c.Auth.RateLimit < 0 || c.Auth.RateBurst < 0 {
		errs = append(errs, errors.New("auth rate limits must not be negative"))
	}
	if c.Media.Dir == "" {
		errs = append(errs, errors.New("media.dir is empty"))
	}
	if c.Media.MaxFiles < 0 || c.Media.MaxFiles > 5 {
		errs = append(errs, errors.New("media.max_files must be between 0 and 5"))
	}
	if c.Media.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("media.max_file_bytes must be positive"))
	}
	if c.Claims.ReconcileInterval < 0 {
		errs = append(errs, errors.New("claims.reconcile_interval must not be negative"))
	}
	if c.Claims.CascadeRetries < 1 {
		errs = append(errs, errors.New("claims.cascade_retries must be at least 1"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	return errors.Join(errs...)
}

// applyEnv overrides cfg from environment variables. Malformed values are errors.
func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	parse := func(key string, set func(string) error) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	duration := func(key string, dst *time.Duration) {
		parse(key, func(v string) (err error) { *dst, err = time.ParseDuration(v); return })
	}
	integer := func(key string, dst *int) {
		parse(key, func(v string) (err error) { *dst, err = strconv.Atoi(v); return })
	}
	boolean := func(key string, dst *bool) {
		parse(key, func(v string) (err error) { *dst, err = strconv.ParseBool(v); return })
	}

	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		cfg.Server.Addr = ":" + strings.TrimSpace(port)
	}
	str("TREASURE_ADDR", &cfg.Server.Addr)
	str("TREASURE_BASE_URL", &cfg.Server.BaseURL)
	str("TREASURE_CORS_ORIGIN", &cfg.Server.CORSOrigin)
	duration("TREASURE_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("TREASURE_DB", &cfg.Database.Path)

	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("TREASURE_JWT_SECRET", &cfg.Auth.JWTSecret)
	duration("TREASURE_TOKEN_TTL", &cfg.Auth.TokenTTL)
	duration("TREASURE_OTP_TTL", &cfg.Auth.OTPTTL)
	boolean("TREASURE_REQUIRE_VERIFICATION", &cfg.Auth.RequireVerification)
	parse("TREASURE_AUTH_RATE_LIMIT", func(v string) (err error) {
		cfg.Auth.RateLimit, err = strconv.ParseFloat(v, 64)
		return
	})
	integer("TREASURE_AUTH_RATE_BURST", &cfg.Auth.RateBurst)

	str("TREASURE_MEDIA_DIR", &cfg.Media.Dir)
	integer("TREASURE_MEDIA_MAX_FILES", &cfg.Media.MaxFiles)
	parse("TREASURE_MEDIA_MAX_FILE_BYTES", func(v string) (err error) {
		cfg.Media.MaxFileBytes, err = strconv.ParseInt(v, 10, 64)
		return
	})

	boolean("TREASURE_DIRECT_CLAIM_CASCADE", &cfg.Claims.DirectClaimCascade)
	duration("TREASURE_RECONCILE_INTERVAL", &cfg.Claims.ReconcileInterval)
	integer("TREASURE_CASCADE_RETRIES", &cfg.Claims.CascadeRetries)

	str("TREASURE_LOG", &cfg.Log.Path)
	str("TREASURE_LOG_FORMAT", &cfg.Log.Format)
	str("TREASURE_LOG_LEVEL", &cfg.Log.Level)

	return errors.Join(errs...)
}
