package pages

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/handle"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// AccountReader loads the signed-in account. *workflow.Controller satisfies it.
type AccountReader interface {
	Me(ctx context.Context, sess domain.SessionContext) (*domain.Account, error)
}

// Handler handles page rendering.
type Handler struct {
	logger    *slog.Logger
	templates *template.Template
	auth      auth.TokenAuthenticator
	accounts  AccountReader
}

// NewHandler parses the embedded templates.
func NewHandler(logger *slog.Logger, authenticator auth.TokenAuthenticator, accounts AccountReader) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		logger:    logger,
		templates: tmpl,
		auth:      authenticator,
		accounts:  accounts,
	}, nil
}

// PageData holds data for template rendering.
type PageData struct {
	Title        string
	Account      *domain.Account
	Token        string
	MinHandle    int
	DebounceMS   int64
	MinPassword  int
	SpecialChars string
}

// Login renders the sign-in page.
// GET /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate(w, r); !ok {
		return
	}
	h.render(w, "login.html", PageData{Title: "Sign In"})
}

// Signup renders the registration page.
// GET /signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate(w, r); !ok {
		return
	}
	h.render(w, "signup.html", PageData{
		Title:        "Create Account",
		MinHandle:    handle.MinLength,
		DebounceMS:   handle.DefaultDebounce.Milliseconds(),
		MinPassword:  auth.MinPasswordLength,
		SpecialChars: auth.SpecialChars,
	})
}

// ForgotPassword renders the reset request form, or the new password form
// when the emailed token is present.
// GET /forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate(w, r); !ok {
		return
	}
	h.render(w, "forgot-password.html", PageData{
		Title: "Reset Password",
		Token: r.URL.Query().Get("token"),
	})
}

// Dashboard renders the signed-in account.
// GET /dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.gate(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.Me(r.Context(), sess)
	if err != nil {
		h.logger.Error("failed to load account", "error", err, "user_id", sess.AccountID)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.render(w, "dashboard.html", PageData{
		Title:      "Dashboard",
		Account:    account,
		MinHandle:  handle.MinLength,
		DebounceMS: handle.DefaultDebounce.Milliseconds(),
	})
}

// Static serves the page scripts and styles under /static/.
func (h *Handler) Static() http.Handler {
	return http.FileServer(http.FS(staticFS))
}

// Root sends the caller to the dashboard or the sign-in page.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	status, _ := auth.ResolveStatus(r.Context(), h.auth, httputil.AccessToken(r))
	target := auth.LoginPath
	if status == auth.StatusAuthenticated {
		target = auth.DashboardPath
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// gate applies the session redirect rules. It returns false after writing
// a redirect.
func (h *Handler) gate(w http.ResponseWriter, r *http.Request) (domain.SessionContext, bool) {
	status, sess := auth.ResolveStatus(r.Context(), h.auth, httputil.AccessToken(r))
	if target := auth.RedirectFor(status, r.URL.Path); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return sess, false
	}
	return sess, true
}

func (h *Handler) render(w http.ResponseWriter, tmpl string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.templates.ExecuteTemplate(w, tmpl, data); err != nil {
		h.logger.Error("failed to render page", "template", tmpl, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
