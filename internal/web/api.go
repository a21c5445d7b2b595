package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/enrollhq/enroll/internal/auth"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/errorz"
)

// createUser handles POST /api/users. It registers a new user and
// triggers the confirmation email.
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.apiError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if body.Email == "" || body.Password == "" {
		s.apiError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	addr, err := email.ParseAddress(body.Email)
	if err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	pwd, err := auth.ParsePassword(body.Password)
	if err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid password")
		return
	}

	user, err := s.deps.AuthService.Register(r.Context(), auth.Credentials{
		Email:    addr,
		Password: pwd,
	})
	if err != nil {
		s.handleAPIError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"email": user.Email,
	})
}

// getUser handles GET /api/users/{id}. Unknown IDs result in a bad
// request, not a 404.
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.apiError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	user, err := s.deps.AuthService.GetUser(r.Context(), id)
	if err != nil {
		s.handleAPIError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"email": user.Email,
	})
}

// issueToken handles GET /api/token. The principal was authenticated by
// the passwordAuth middleware.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromCtx(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	tok, ttl, err := s.deps.TokenService.IssueAuth(user.ID)
	if err != nil {
		s.handleAPIError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":    tok,
		"duration": int(ttl.Seconds()),
	})
}

// resource handles GET /api/resource, a stand-in for any protected
// endpoint.
func (s *Server) resource(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromCtx(r.Context())
	if !ok {
		s.unauthorized(w)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"data": fmt.Sprintf("Hello, %s!", user.Email),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Error().Err(err).Msg("failed to write json response")
	}
}

func (s *Server) apiError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

// handleAPIError maps service errors to JSON error responses.
func (s *Server) handleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		s.apiError(w, http.StatusBadRequest, "email address already registered")
	case errors.Is(err, errorz.ErrNotFound):
		// Missing records surface as bad requests on the API.
		s.apiError(w, http.StatusBadRequest, "not found")
	default:
		var invalidInput errorz.InvalidInput
		if errors.As(err, &invalidInput) {
			s.apiError(w, http.StatusBadRequest, invalidInput.Error())
			return
		}

		s.deps.Logger.Error().Err(err).Str("url", r.URL.String()).Msg("internal server error")
		s.apiError(w, http.StatusInternalServerError, "internal server error")
	}
}
