// Package idm assembles the account service: credential platform, session
// bridge, handle directory, avatar storage and the identity workflows.
//
// Setup:
//
//  1. Apply migrations with repository.Migrate
//  2. Create the IDM instance and serve its handler
//
// Basic usage:
//
//	db, _ := repository.NewDB(repository.Config{...})
//	_ = repository.Migrate(ctx, db)
//
//	svc, err := idm.New(ctx, idm.Config{
//	    DB:        db,
//	    Redis:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler, _ := svc.Handler()
//	http.ListenAndServe(":8080", handler)
//
// Without a Redis client password reset is disabled. Without Content avatar
// uploads fail and surface as warnings on the created account.
package idm

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-idm-profile/internal/config"
	httpserver "github.com/tendant/simple-idm-profile/internal/http"
	"github.com/tendant/simple-idm-profile/internal/http/middleware"
	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/platform"
	"github.com/tendant/simple-idm-profile/pkg/repository"
	"github.com/tendant/simple-idm-profile/pkg/storage"
	"github.com/tendant/simple-idm-profile/pkg/workflow"
)

// ResetKeyPrefix namespaces password reset tokens in Redis.
const ResetKeyPrefix = "idm:reset:"

// Config holds the configuration for the service.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// Redis holds password reset tokens (optional).
	Redis redis.UniversalClient

	// Content stores avatars (default: storage.Disabled).
	Content platform.ContentStore

	// Mailer delivers password reset links (optional).
	Mailer auth.ResetMailer

	// JWTSecret is the secret key for signing JWT tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in JWT tokens (default: "simple-idm").
	JWTIssuer string

	// AccessTokenTTL is the lifetime of access tokens (default: 15 minutes).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens (default: 7 days).
	RefreshTokenTTL time.Duration

	// ResetTokenTTL is the lifetime of password reset tokens (default: 1 hour).
	ResetTokenTTL time.Duration

	// AppBaseURL is prefixed to the reset page link in emails.
	AppBaseURL string

	// HTTP holds the router settings. The zero value disables rate
	// limiting and security headers.
	HTTP HTTPConfig

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// HTTPConfig holds settings for the HTTP surface.
type HTTPConfig struct {
	CookieSecure          bool
	StrictEmailValidation bool
	BlockDisposableEmail  bool
	FingerprintEnabled    bool
	DetectReuseEnabled    bool
	RateLimit             config.RateLimitConfig
	SecurityHeaders       config.SecurityHeadersConfig
	Validation            config.ValidationConfig
}

// IDM is the assembled service.
type IDM struct {
	config   Config
	profiles *repository.ProfilesRepository
	identity *auth.IdentityService
	sessions *auth.SessionService
	bridge   *auth.Bridge
	workflow *workflow.Controller
}

// New creates the service. It returns an error if required database
// tables don't exist.
func New(ctx context.Context, cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := repository.ValidateSchema(ctx, cfg.DB); err != nil {
		return nil, err
	}

	users := repository.NewUsersRepository(cfg.DB)
	creds := repository.NewCredentialsRepository(cfg.DB)
	profiles := repository.NewProfilesRepository(cfg.DB)
	sessionsRepo := repository.NewSessionsRepository(cfg.DB)

	var resets auth.ResetTokenStore
	if cfg.Redis != nil {
		resets = auth.NewRedisResetStore(cfg.Redis, ResetKeyPrefix)
	} else {
		cfg.Logger.Warn("password reset disabled: no redis client configured")
	}

	identity := auth.NewIdentityService(auth.IdentityConfig{
		StrictEmailValidation: cfg.HTTP.StrictEmailValidation,
		BlockDisposableEmail:  cfg.HTTP.BlockDisposableEmail,
		ResetURL:              strings.TrimSuffix(cfg.AppBaseURL, "/") + "/forgot-password",
		ResetTokenTTL:         cfg.ResetTokenTTL,
	}, users, creds, resets, cfg.Mailer)

	sessions := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:     cfg.AccessTokenTTL,
		RefreshTokenTTL:    cfg.RefreshTokenTTL,
		JWTSecret:          []byte(cfg.JWTSecret),
		Issuer:             cfg.JWTIssuer,
		FingerprintEnabled: cfg.HTTP.FingerprintEnabled,
		DetectReuseEnabled: cfg.HTTP.DetectReuseEnabled,
	}, sessionsRepo, users)

	bridge := auth.NewBridge(identity, sessions)
	ctrl := workflow.New(identity, cfg.Content, profiles, bridge, workflow.WithLogger(cfg.Logger))
	bridge.OnSignIn(ctrl.RepairAfterSignIn)

	return &IDM{
		config:   cfg,
		profiles: profiles,
		identity: identity,
		sessions: sessions,
		bridge:   bridge,
		workflow: ctrl,
	}, nil
}

// Handler returns the HTTP surface: JSON API, pages and static assets.
func (i *IDM) Handler() (http.Handler, error) {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          i.config.Logger,
		Workflow:        i.workflow,
		Identity:        i.identity,
		Sessions:        i.sessions,
		Bridge:          i.bridge,
		Directory:       i.profiles,
		CookieSecure:    i.config.HTTP.CookieSecure,
		RefreshTTL:      i.sessions.RefreshTokenTTL(),
		RateLimit:       i.config.HTTP.RateLimit,
		SecurityHeaders: i.config.HTTP.SecurityHeaders,
		Validation:      i.config.HTTP.Validation,
	})
}

// Workflow returns the workflow controller for advanced usage.
func (i *IDM) Workflow() *workflow.Controller {
	return i.workflow
}

// SessionService returns the session service for advanced usage.
func (i *IDM) SessionService() *auth.SessionService {
	return i.sessions
}

// AuthMiddleware returns middleware that validates access tokens.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(svc.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (i *IDM) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(i.sessions)
}

// GetUserID extracts the account ID from a request.
// Use after AuthMiddleware.
func GetUserID(r *http.Request) (string, bool) {
	id, ok := middleware.GetUserID(r.Context())
	if !ok {
		return "", false
	}
	return id.String(), true
}

// GetUserIDFromContext extracts the account ID from a context.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return middleware.GetUserID(ctx)
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("idm: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("idm: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < config.MinJWTSecretLength {
		return errors.New("idm: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "simple-idm"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = auth.DefaultRefreshTokenTTL
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = auth.DefaultResetTokenTTL
	}
	if cfg.Content == nil {
		cfg.Content = storage.Disabled{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if cfg.HTTP.Validation.MaxRequestBodySize == 0 {
		cfg.HTTP.Validation.MaxRequestBodySize = 1 << 20
	}
	if cfg.HTTP.Validation.MaxAvatarBytes == 0 {
		cfg.HTTP.Validation.MaxAvatarBytes = 5 << 20
	}
}
