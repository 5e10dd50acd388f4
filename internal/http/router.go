package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-idm-profile/internal/config"
	"github.com/tendant/simple-idm-profile/internal/http/features/account"
	"github.com/tendant/simple-idm-profile/internal/http/features/common"
	"github.com/tendant/simple-idm-profile/internal/http/features/me"
	"github.com/tendant/simple-idm-profile/internal/http/features/pages"
	"github.com/tendant/simple-idm-profile/internal/http/features/password"
	"github.com/tendant/simple-idm-profile/internal/http/features/session"
	"github.com/tendant/simple-idm-profile/internal/http/middleware"
	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/handle"
	"github.com/tendant/simple-idm-profile/pkg/workflow"
)

// multipartOverhead covers form fields and part headers sent alongside an avatar.
const multipartOverhead = 64 << 10

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Workflow        *workflow.Controller
	Identity        *auth.IdentityService
	Sessions        *auth.SessionService
	Bridge          *auth.Bridge
	Directory       handle.Directory
	CookieSecure    bool
	RefreshTTL      time.Duration
	RateLimit       config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiters := middleware.CreateRateLimiters(cfg.RateLimit, cfg.Logger)
	jsonLimit := middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize)
	avatarLimit := middleware.RequestSizeLimit(cfg.Validation.MaxAvatarBytes + multipartOverhead)
	requireAuth := middleware.Auth(cfg.Sessions)

	cookies := httputil.DefaultCookieConfig()
	cookies.Secure = cfg.CookieSecure
	tokens := common.Tokens{Cookies: cookies, RefreshTTL: cfg.RefreshTTL}

	// Account creation and handle negotiation
	accountHandler := account.NewHandler(cfg.Logger, cfg.Workflow, cfg.Directory, tokens, cfg.Validation.MaxAvatarBytes)
	r.With(limiters.For(middleware.LimitSignup), avatarLimit, middleware.NoStore).Post("/v1/accounts", accountHandler.Create)
	r.With(limiters.For(middleware.LimitHandles), middleware.OptionalAuth(cfg.Sessions)).
		Get("/v1/handles/{handle}/availability", accountHandler.Availability)

	// Session routes
	sessionHandler := session.NewHandler(cfg.Logger, cfg.Bridge, cfg.Sessions, tokens)
	r.Group(func(r chi.Router) {
		r.Use(jsonLimit)
		r.Use(middleware.NoStore)
		r.With(limiters.For(middleware.LimitAuth)).Post("/v1/auth/login", sessionHandler.Login)
		r.With(limiters.For(middleware.LimitRefresh)).Post("/v1/auth/refresh", sessionHandler.Refresh)
		r.Post("/v1/auth/logout", sessionHandler.Logout)
		r.With(requireAuth).Post("/v1/auth/logout/all", sessionHandler.LogoutAll)
		r.Get("/v1/auth/session", sessionHandler.Status)
	})

	// Password reset routes
	passwordHandler := password.NewHandler(cfg.Logger, cfg.Workflow, cfg.Identity, cfg.Sessions)
	r.Group(func(r chi.Router) {
		r.Use(limiters.For(middleware.LimitReset))
		r.Use(jsonLimit)
		r.Post("/v1/auth/password/reset-request", passwordHandler.RequestPasswordReset)
		r.Post("/v1/auth/password/reset", passwordHandler.ResetPassword)
	})

	// Profile routes
	meHandler := me.NewHandler(cfg.Logger, cfg.Workflow, cfg.Directory, cfg.Validation.MaxAvatarBytes)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(limiters.For(middleware.LimitProfile))
		r.Use(middleware.NoStore)
		r.Get("/v1/me", meHandler.GetMe)
		r.With(jsonLimit).Put("/v1/me/handle", meHandler.UpdateHandle)
		r.With(avatarLimit).Put("/v1/me/avatar", meHandler.UpdateAvatar)
	})

	// Pages
	pagesHandler, err := pages.NewHandler(cfg.Logger, cfg.Sessions, cfg.Workflow)
	if err != nil {
		return nil, fmt.Errorf("load page templates: %w", err)
	}
	r.Get("/", pagesHandler.Root)
	r.Get(auth.LoginPath, pagesHandler.Login)
	r.Get(auth.SignupPath, pagesHandler.Signup)
	r.Get(auth.DashboardPath, pagesHandler.Dashboard)
	r.Get("/forgot-password", pagesHandler.ForgotPassword)
	r.Handle("/static/*", pagesHandler.Static())

	return r, nil
}
