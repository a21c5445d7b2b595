// Package web exposes the app over HTTP. There are two surfaces: a small
// JSON API under /api and a set of browser pages with cookie sessions,
// CSRF protection and flash messages.
package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/enrollhq/enroll/internal/auth"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/errorz"
	"github.com/enrollhq/enroll/internal/krypto"
	"github.com/enrollhq/enroll/internal/token"
	"github.com/enrollhq/enroll/internal/web/sessions"
	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"
	"github.com/rs/zerolog"
)

const (
	csrfTokenCookieName = "enroll-csrf"
	csrfTokenField      = "_csrf"
)

// ViewRenderer renders named views with the given data.
type ViewRenderer interface {
	Render(w io.Writer, name string, data any) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       zerolog.Logger
	ViewRenderer ViewRenderer
	AuthService  *auth.Service
	TokenService *token.Service
	SessionStore *sessions.Store
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
}

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	browser func(http.Handler) http.Handler
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}

	// The browser pages get cookie sessions and CSRF protection, the JSON
	// API gets neither. API clients authenticate on every request.
	csrfMW := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.CookieName(csrfTokenCookieName),
		csrf.FieldName(csrfTokenField),
		csrf.Secure(cfg.SecureCookie),
	)
	s.browser = func(h http.Handler) http.Handler {
		return csrfMW(s.session(h))
	}

	// JSON API endpoints.
	s.mux.Handle("POST /api/users", http.HandlerFunc(s.createUser))
	s.mux.Handle("GET /api/users/{id}", http.HandlerFunc(s.getUser))
	s.mux.Handle("GET /api/token", s.passwordAuth(http.HandlerFunc(s.issueToken)))
	s.mux.Handle("GET /api/resource", s.tokenOrPasswordAuth(http.HandlerFunc(s.resource)))

	// Homepage.
	s.page("GET /{$}", s.viewHandler("home"))

	// Login and logout endpoints.
	{
		s.page("GET /login", s.publicOnly(s.viewHandler("login")))
	}
	{
		h := newHandler(s, deps.AuthService.Authenticate)
		h.success(func(r result[auth.Credentials, auth.User]) error {
			// Clear the CSRF token on login, a token an attacker got hold
			// of before the login is worthless afterwards. A new one is
			// generated on the next GET request.
			http.SetCookie(r.w, &http.Cookie{
				Name:   csrfTokenCookieName,
				MaxAge: -1,
			})

			r.sess.SetUserID(r.out.ID)
			if err := r.s.deps.SessionStore.Save(r.r, r.w, r.sess); err != nil {
				return err
			}

			http.Redirect(r.w, r.r, "/", http.StatusFound)
			return nil
		})

		s.page("POST /login", s.publicOnly(h))
	}
	{
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			sess.DeleteUserID()
			if err := s.deps.SessionStore.Save(r, w, sess); err != nil {
				s.handleError(w, r, err)
				return
			}

			http.Redirect(w, r, "/", http.StatusFound)
		})

		s.page("POST /logout", s.loggedIn(h))
	}

	// Email confirmation endpoint, linked to from the confirmation email.
	s.page("GET /confirm/{token}", s.loggedIn(http.HandlerFunc(s.confirmEmail)))

	// Password reset endpoints.
	{
		s.page("GET /forgot-password", s.publicOnly(s.viewHandler("forgot-password")))
	}
	{
		type resetRequest struct {
			Email email.Address
		}

		h := newInputHandler(s, func(ctx context.Context, req resetRequest) error {
			return s.deps.AuthService.RequestPasswordReset(ctx, req.Email)
		})
		h.success(func(r result[resetRequest, struct{}]) error {
			r.s.flashAndRedirect(r.w, r.r, sessions.FlashSuccess,
				"Check your inbox for instructions to reset your password.", "/forgot-password")
			return nil
		})

		s.page("POST /forgot-password", s.publicOnly(h))
	}
	{
		s.page("GET /reset-password", s.publicOnly(http.HandlerFunc(s.resetPasswordForm)))
	}
	{
		h := newInputHandler(s, deps.AuthService.ResetPassword)
		h.success(func(r result[auth.NewPassword, struct{}]) error {
			r.s.flashAndRedirect(r.w, r.r, sessions.FlashSuccess,
				"Your password was reset, log in with your new password below.", "/login")
			return nil
		})

		s.page("POST /reset-password", s.publicOnly(h))
	}

	s.handler = s.logRequests(s.mux)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// page registers a browser page handler.
func (s *Server) page(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, s.browser(handler))
}

// confirmEmail handles the confirmation link from the confirmation
// email. Confirming requires a logged in user and the token must match
// that user's email address.
func (s *Server) confirmEmail(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	userID, _ := sess.UserID()

	user, err := s.deps.AuthService.GetUser(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if user.Confirmed {
		s.flashAndRedirect(w, r, sessions.FlashSuccess, "Account already confirmed. Please login.", "/")
		return
	}

	err = s.deps.AuthService.ConfirmEmail(r.Context(), userID, r.PathValue("token"))
	switch {
	case errors.Is(err, auth.ErrTokenInvalid):
		s.flashAndRedirect(w, r, sessions.FlashDanger, "The confirmation link is invalid or has expired.", "/")
	case err != nil:
		s.handleError(w, r, err)
	default:
		s.flashAndRedirect(w, r, sessions.FlashSuccess, "You have confirmed your account. Thanks!", "/")
	}
}

// resetPasswordForm renders the form where a user picks a new password.
// The token from the reset email is carried via the query string into a
// hidden form field.
func (s *Server) resetPasswordForm(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		s.flashAndRedirect(w, r, sessions.FlashDanger, "The password reset link is invalid or has expired.", "/forgot-password")
		return
	}

	err := s.writeView(w, r, "reset-password", struct {
		Token string
	}{
		Token: tok,
	})
	if err != nil {
		s.handleError(w, r, err)
	}
}

// handleError writes an error response for the browser pages.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		s.flashAndRedirect(w, r, sessions.FlashDanger, "Incorrect email or password.", "/login")
	case errors.Is(err, auth.ErrTokenInvalid):
		s.flashAndRedirect(w, r, sessions.FlashDanger, "The password reset link is invalid or has expired.", "/forgot-password")
	case errors.Is(err, errorz.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		var invalidInput errorz.InvalidInput
		if errors.As(err, &invalidInput) {
			http.Error(w, "invalid input", http.StatusBadRequest)
			return
		}

		s.deps.Logger.Error().Err(err).Str("url", r.URL.String()).Msg("internal server error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
