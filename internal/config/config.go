package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinJWTSecretLength is the shortest accepted HMAC signing secret.
const MinJWTSecretLength = 32

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr   string `env:"SERVER_ADDR"   envDefault:"0.0.0.0"`
	ServerPort   int    `env:"SERVER_PORT"   envDefault:"8080"`
	AppBaseURL   string `env:"APP_BASE_URL"  envDefault:"http://localhost:8080"`
	LogLevel     string `env:"LOG_LEVEL"     envDefault:"info"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	// Database defaults match the podman setup: make postgres-start
	DBHost     string `env:"DB_HOST"     envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT"     envDefault:"25432"`
	DBUser     string `env:"DB_USER"     envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME"     envDefault:"simple_idm"`
	DBSSLMode  string `env:"DB_SSLMODE"  envDefault:"disable"`

	// JWT
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"        envDefault:"simple-idm"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	// Redis backs password reset tokens.
	RedisAddr     string        `env:"REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"        envDefault:"0"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`

	// S3-compatible avatar storage (optional)
	S3Bucket        string        `env:"S3_BUCKET"`
	S3Region        string        `env:"S3_REGION"          envDefault:"us-east-1"`
	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3AccessKey     string        `env:"S3_ACCESS_KEY"`
	S3SecretKey     string        `env:"S3_SECRET_KEY"`
	S3UsePathStyle  bool          `env:"S3_USE_PATH_STYLE"  envDefault:"false"`
	S3PublicBaseURL string        `env:"S3_PUBLIC_BASE_URL"`
	S3PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY"  envDefault:"168h"`

	// SMTP (optional)
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"      envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Simple IDM"`

	// Email validation
	StrictEmailValidation bool `env:"EMAIL_STRICT_VALIDATION" envDefault:"false"`
	BlockDisposableEmail  bool `env:"EMAIL_BLOCK_DISPOSABLE"  envDefault:"false"`

	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig
	SessionSecurity SessionSecurityConfig
}

// RateLimitConfig holds per endpoint group request limits.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	AuthRequestsPerMinute int `env:"RATE_LIMIT_AUTH_REQUESTS" envDefault:"10"`
	AuthWindowMinutes     int `env:"RATE_LIMIT_AUTH_WINDOW"   envDefault:"1"`

	ResetRequestsPerWindow int `env:"RATE_LIMIT_RESET_REQUESTS" envDefault:"3"`
	ResetWindowMinutes     int `env:"RATE_LIMIT_RESET_WINDOW"   envDefault:"60"`

	SignupRequestsPerWindow int `env:"RATE_LIMIT_SIGNUP_REQUESTS" envDefault:"5"`
	SignupWindowMinutes     int `env:"RATE_LIMIT_SIGNUP_WINDOW"   envDefault:"60"`

	HandleRequestsPerMinute int `env:"RATE_LIMIT_HANDLE_REQUESTS" envDefault:"60"`
	HandleWindowMinutes     int `env:"RATE_LIMIT_HANDLE_WINDOW"   envDefault:"1"`

	RefreshRequestsPerMinute int `env:"RATE_LIMIT_REFRESH_REQUESTS" envDefault:"30"`
	RefreshWindowMinutes     int `env:"RATE_LIMIT_REFRESH_WINDOW"   envDefault:"1"`

	ProfileRequestsPerMinute int `env:"RATE_LIMIT_PROFILE_REQUESTS" envDefault:"30"`
	ProfileWindowMinutes     int `env:"RATE_LIMIT_PROFILE_WINDOW"   envDefault:"1"`
}

// SecurityHeadersConfig holds the response security headers.
type SecurityHeadersConfig struct {
	Enabled            bool   `env:"SECURITY_HEADERS_ENABLED"     envDefault:"true"`
	CSP                string `env:"SECURITY_CSP"                 envDefault:"default-src 'self'; img-src 'self' https: data:; style-src 'self' 'unsafe-inline'"`
	HSTSMaxAge         int    `env:"SECURITY_HSTS_MAX_AGE"        envDefault:"0"`
	FrameOptions       string `env:"SECURITY_FRAME_OPTIONS"       envDefault:"DENY"`
	ContentTypeOptions string `env:"SECURITY_CONTENT_TYPE_OPTIONS" envDefault:"nosniff"`
	XSSProtection      string `env:"SECURITY_XSS_PROTECTION"      envDefault:"1; mode=block"`
	ReferrerPolicy     string `env:"SECURITY_REFERRER_POLICY"     envDefault:"strict-origin-when-cross-origin"`
	PermissionsPolicy  string `env:"SECURITY_PERMISSIONS_POLICY"  envDefault:"geolocation=(), microphone=(), camera=()"`
}

// ValidationConfig holds request size limits.
type ValidationConfig struct {
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
	MaxAvatarBytes     int64 `env:"MAX_AVATAR_BYTES"      envDefault:"5242880"`
}

// SessionSecurityConfig toggles refresh token binding to the client.
type SessionSecurityConfig struct {
	FingerprintEnabled bool `env:"SESSION_FINGERPRINT_ENABLED"  envDefault:"true"`
	DetectReuseEnabled bool `env:"SESSION_DETECT_REUSE_ENABLED" envDefault:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if c.Validation.MaxAvatarBytes <= 0 {
		return fmt.Errorf("MAX_AVATAR_BYTES must be positive")
	}
	return nil
}

// HasS3 reports whether avatar storage is configured.
func (c *Config) HasS3() bool {
	return c.S3Bucket != ""
}

// HasSMTP reports whether outgoing mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
