package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/enrollhq/enroll/internal/errorz"
	"github.com/enrollhq/enroll/internal/web/sessions"
	"github.com/gorilla/schema"
)

// mapper is a generic HTTP handler for the browser facing form endpoints.
// It maps the request form to a value of the input type, calls the target
// function with it and hands the outcome to the onSuccess hook.
type mapper[IN, OUT any] struct {
	s         *Server
	req       func(*http.Request) (IN, error)
	target    func(context.Context, IN) (OUT, error)
	onSuccess func(result[IN, OUT]) error
}

// result is the outcome of a successful target call. It contains all
// relevant request scoped data because we can't know in advance what a
// response needs.
type result[IN, OUT any] struct {
	s    *Server
	r    *http.Request
	w    http.ResponseWriter
	sess *sessions.Session
	in   IN
	out  OUT
}

// newHandler creates a handler that:
// 1. Maps the request form to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Calls the onSuccess hook with the returned OUT value.
//
// Errors are written using the server error handler.
func newHandler[IN, OUT any](s *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		s: s,
		req: func(r *http.Request) (IN, error) {
			return formRequest[IN](s, r)
		},
		target: targetFunc,
	}
}

// newInputHandler is newHandler for target funcs that return no value.
func newInputHandler[IN any](s *Server, targetFunc func(context.Context, IN) error) *mapper[IN, struct{}] {
	return newHandler(s, func(ctx context.Context, in IN) (struct{}, error) {
		return struct{}{}, targetFunc(ctx, in)
	})
}

// success sets the hook that runs after a successful target call.
func (m *mapper[IN, OUT]) success(fn func(result[IN, OUT]) error) *mapper[IN, OUT] {
	m.onSuccess = fn
	return m
}

func (m *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		m.s.handleError(w, r, err)
		return
	}

	in, err := m.req(r)
	if err != nil {
		m.s.handleError(w, r, err)
		return
	}

	out, err := m.target(r.Context(), in)
	if err != nil {
		m.s.handleError(w, r, err)
		return
	}

	err = m.onSuccess(result[IN, OUT]{
		s:    m.s,
		r:    r,
		w:    w,
		sess: sess,
		in:   in,
		out:  out,
	})
	if err != nil {
		m.s.handleError(w, r, err)
	}
}

// formRequest maps the request form to a struct using the schema decoder.
func formRequest[IN any](s *Server, r *http.Request) (IN, error) {
	var in IN

	if err := r.ParseForm(); err != nil {
		return in, err
	}

	// The CSRF token doesn't map to any target type and would fail the
	// decoder.
	r.PostForm.Del(csrfTokenField)

	err := s.decoder.Decode(&in, r.PostForm)

	return in, decodeError(err)
}

// decodeError converts schema decoder errors to InvalidInput errors so
// they surface as bad requests instead of internal errors.
func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}
