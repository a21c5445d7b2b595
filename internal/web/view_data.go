package web

import (
	"net/http"

	"github.com/enrollhq/enroll/internal"
	"github.com/enrollhq/enroll/internal/web/sessions"
	"github.com/gorilla/csrf"
)

// viewData is the data every view is rendered with. The page specific
// data lives in the Data field.
type viewData struct {
	Version    string
	CSRFToken  string
	IsLoggedIn bool
	Flashes    []sessions.Flash
	Data       any
}

// viewHandler returns a handler that renders the view with the given
// name and no page specific data.
func (s *Server) viewHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.writeView(w, r, name, nil); err != nil {
			s.handleError(w, r, err)
		}
	})
}

// writeView renders the named view. Consuming the flashes mutates the
// session, so the session is saved before the body is written.
func (s *Server) writeView(w http.ResponseWriter, r *http.Request, name string, data any) error {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return err
	}

	_, loggedIn := sess.UserID()

	vd := viewData{
		Version:    internal.BuildRevision,
		CSRFToken:  csrf.Token(r),
		IsLoggedIn: loggedIn,
		Flashes:    sess.ConsumeFlashes(),
		Data:       data,
	}

	if err := s.deps.SessionStore.Save(r, w, sess); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return s.deps.ViewRenderer.Render(w, name, vd)
}
