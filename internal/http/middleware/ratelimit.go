package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/simple-idm-profile/internal/config"
	"github.com/tendant/simple-idm-profile/internal/httputil"
)

// Limiter group names.
const (
	LimitAuth    = "auth"
	LimitReset   = "reset"
	LimitSignup  = "signup"
	LimitHandles = "handles"
	LimitRefresh = "refresh"
	LimitProfile = "profile"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// Limiters maps a limiter group to its middleware.
type Limiters map[string]func(http.Handler) http.Handler

// For returns the limiter for group, or a no-op when none is registered.
func (l Limiters) For(group string) func(http.Handler) http.Handler {
	if mw, ok := l[group]; ok {
		return mw
	}
	return NoRateLimit()
}

// CreateRateLimiters creates rate limiting middleware functions based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) Limiters {
	groups := map[string]struct {
		requests int
		minutes  int
	}{
		LimitAuth:    {cfg.AuthRequestsPerMinute, cfg.AuthWindowMinutes},
		LimitReset:   {cfg.ResetRequestsPerWindow, cfg.ResetWindowMinutes},
		LimitSignup:  {cfg.SignupRequestsPerWindow, cfg.SignupWindowMinutes},
		LimitHandles: {cfg.HandleRequestsPerMinute, cfg.HandleWindowMinutes},
		LimitRefresh: {cfg.RefreshRequestsPerMinute, cfg.RefreshWindowMinutes},
		LimitProfile: {cfg.ProfileRequestsPerMinute, cfg.ProfileWindowMinutes},
	}

	limiters := make(Limiters, len(groups))
	for name, g := range groups {
		if !cfg.Enabled || g.requests <= 0 || g.minutes <= 0 {
			limiters[name] = NoRateLimit()
			continue
		}
		limiters[name] = RateLimit(RateLimitConfig{
			Requests: g.requests,
			Window:   time.Duration(g.minutes) * time.Minute,
			Logger:   logger,
		})
	}
	return limiters
}
