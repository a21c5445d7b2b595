// Package sessions wraps the cookie sessions used by the browser facing
// pages. It narrows the general purpose session values down to the two
// things the app actually stores: the logged in user ID and flash
// messages.
package sessions

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
)

const CookieName = "enroll-session"

const (
	userIDKey = "userID"
)

// Flash levels, they map to styling in the templates.
const (
	FlashSuccess = "success"
	FlashDanger  = "danger"
)

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
	Level   string
	Message string
}

func init() {
	// Flashes are serialized into the session cookie.
	gob.Register(Flash{})
}

// Session is a single browser session.
type Session struct {
	base *sessions.Session
}

// UserID returns the logged in user ID, if any.
func (s *Session) UserID() (int, bool) {
	userID, ok := s.base.Values[userIDKey].(int)
	return userID, ok
}

func (s *Session) SetUserID(userID int) {
	s.base.Values[userIDKey] = userID
}

func (s *Session) DeleteUserID() {
	delete(s.base.Values, userIDKey)
}

func (s *Session) AddFlash(level, message string) {
	s.base.AddFlash(Flash{
		Level:   level,
		Message: message,
	})
}

// ConsumeFlashes returns all flashes and removes them from the session.
// The session must be saved afterwards or the flashes will show again.
func (s *Session) ConsumeFlashes() []Flash {
	raw := s.base.Flashes()

	flashes := make([]Flash, 0, len(raw))
	for _, r := range raw {
		if f, ok := r.(Flash); ok {
			flashes = append(flashes, f)
		}
	}

	return flashes
}

// Store gets and saves sessions.
type Store struct {
	store sessions.Store
}

func NewStore(store sessions.Store) *Store {
	return &Store{store: store}
}

func (s *Store) Get(r *http.Request) (*Session, error) {
	base, err := s.store.Get(r, CookieName)
	if err != nil {
		return nil, err
	}

	return &Session{base: base}, nil
}

func (s *Store) Save(r *http.Request, w http.ResponseWriter, sess *Session) error {
	return s.store.Save(r, w, sess.base)
}
