package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/enrollhq/enroll/internal/web/sessions"
)

type ctxKey string

const sessionCtxKey ctxKey = "session"

// session is a middleware that loads the browser session and injects it
// in the request context. Handlers that mutate the session are
// responsible for saving it before writing the response.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.SessionStore.Get(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		ctx := ctxWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ctxWithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := ctx.Value(sessionCtxKey).(*sessions.Session)
	if !ok {
		return nil, fmt.Errorf("no session in context")
	}

	return sess, nil
}

// flashAndRedirect adds a flash message, saves the session and redirects.
func (s *Server) flashAndRedirect(w http.ResponseWriter, r *http.Request, level, message, url string) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	sess.AddFlash(level, message)
	if err := s.deps.SessionStore.Save(r, w, sess); err != nil {
		s.handleError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}
