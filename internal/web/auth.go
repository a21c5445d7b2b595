package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/enrollhq/enroll/internal/auth"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/web/sessions"
)

const userCtxKey ctxKey = "user"

func ctxWithUser(ctx context.Context, u auth.User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// userFromCtx returns the authenticated principal of an API request.
func userFromCtx(ctx context.Context) (auth.User, bool) {
	u, ok := ctx.Value(userCtxKey).(auth.User)
	return u, ok
}

// publicOnly guards page handlers that make no sense for logged in
// users, such as the login form.
func (s *Server) publicOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if _, ok := sess.UserID(); ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggedIn guards page handlers that require a logged in user. Anonymous
// visitors are sent to the login page.
func (s *Server) loggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if _, ok := sess.UserID(); !ok {
			s.flashAndRedirect(w, r, sessions.FlashDanger, "Please log in to access this page.", "/login")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// passwordAuth is a middleware for API endpoints that require basic auth.
// The authenticated user is injected in the request context.
func (s *Server) passwordAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.basicAuthUser(r)
		if !ok {
			s.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctxWithUser(r.Context(), user)))
	})
}

// tokenOrPasswordAuth is a middleware for API endpoints that accept
// either a bearer auth token or basic auth.
func (s *Server) tokenOrPasswordAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.bearerAuthUser(r)
		if !ok {
			user, ok = s.basicAuthUser(r)
		}

		if !ok {
			s.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctxWithUser(r.Context(), user)))
	})
}

func (s *Server) basicAuthUser(r *http.Request) (auth.User, bool) {
	rawEmail, rawPassword, ok := r.BasicAuth()
	if !ok {
		return auth.User{}, false
	}

	addr, err := email.ParseAddress(rawEmail)
	if err != nil {
		return auth.User{}, false
	}

	pwd, err := auth.ParsePassword(rawPassword)
	if err != nil {
		return auth.User{}, false
	}

	user, err := s.deps.AuthService.Authenticate(r.Context(), auth.Credentials{
		Email:    addr,
		Password: pwd,
	})
	if err != nil {
		return auth.User{}, false
	}

	return user, true
}

func (s *Server) bearerAuthUser(r *http.Request) (auth.User, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.User{}, false
	}

	userID, err := s.deps.TokenService.ParseAuth(raw)
	if err != nil {
		return auth.User{}, false
	}

	user, err := s.deps.AuthService.GetUser(r.Context(), userID)
	if err != nil {
		return auth.User{}, false
	}

	return user, true
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="api"`)
	s.writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error": "unauthorized",
	})
}
