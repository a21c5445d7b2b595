package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/enrollhq/enroll/internal/auth"
	authdb "github.com/enrollhq/enroll/internal/auth/db"
	"github.com/enrollhq/enroll/internal/db/testdb"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/errorz"
	"github.com/enrollhq/enroll/internal/krypto"
	"github.com/enrollhq/enroll/internal/token"
)

// memEmailer records sent emails instead of sending them.
type memEmailer struct {
	emails []sentEmail
}

type sentEmail struct {
	template  string
	recipient email.Address
	data      any
}

func (m *memEmailer) Send(_ context.Context, template string, to email.Address, data any) error {
	m.emails = append(m.emails, sentEmail{
		template:  template,
		recipient: to,
		data:      data,
	})
	return nil
}

// okMX accepts every address.
var okMX = email.CheckerFunc(func(_ context.Context, _ email.Address) error {
	return nil
})

type svcTest struct {
	svc     *auth.Service
	tokens  *token.Service
	emailer *memEmailer
}

func setupService(t *testing.T) *svcTest {
	t.Helper()

	return setupServiceMX(t, okMX)
}

func setupServiceMX(t *testing.T, mx email.MXChecker) *svcTest {
	t.Helper()

	store := authdb.New(testdb.RunWhile(t))
	emailer := &memEmailer{}

	tokens := token.NewService(
		krypto.NewSecret("test-secret"),
		krypto.NewSecret("test-salt"),
		time.Minute*10,
	)

	svc, err := auth.NewService(store, emailer, tokens, mx, auth.ServiceConfig{
		BaseURL:          "http://example.com",
		EmailTokenMaxAge: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	return &svcTest{
		svc:     svc,
		tokens:  tokens,
		emailer: emailer,
	}
}

func credentials(t *testing.T, addr, pwd string) auth.Credentials {
	t.Helper()

	parsedAddr, err := email.ParseAddress(addr)
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}

	parsedPwd, err := auth.ParsePassword(pwd)
	if err != nil {
		t.Fatalf("failed to parse password: %v", err)
	}

	return auth.Credentials{
		Email:    parsedAddr,
		Password: parsedPwd,
	}
}

// confirmToken digs the raw token out of the confirmation URL in the last
// sent email.
func (st *svcTest) confirmToken(t *testing.T) string {
	t.Helper()

	if len(st.emailer.emails) == 0 {
		t.Fatalf("no emails were sent")
	}

	last := st.emailer.emails[len(st.emailer.emails)-1]
	data, ok := last.data.(auth.ConfirmationData)
	if !ok {
		t.Fatalf("last email is not a confirmation email: %v", last)
	}

	i := strings.LastIndex(data.ConfirmURL, "/")
	return data.ConfirmURL[i+1:]
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("ok, registers unconfirmed user", func(t *testing.T) {
		st := setupService(t)

		user, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		if user.ID == 0 {
			t.Errorf("user was not assigned an ID")
		}

		if user.Confirmed {
			t.Errorf("new user should not be confirmed")
		}

		if user.RegisteredOn.IsZero() {
			t.Errorf("user has no registration time")
		}
	})

	t.Run("ok, sends confirmation email", func(t *testing.T) {
		st := setupService(t)

		if _, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret")); err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		if len(st.emailer.emails) != 1 {
			t.Fatalf("expected 1 email, got %d", len(st.emailer.emails))
		}

		sent := st.emailer.emails[0]
		if sent.template != "confirm-email" {
			t.Errorf("got template %q, want %q", sent.template, "confirm-email")
		}

		if sent.recipient != "test@example.com" {
			t.Errorf("got recipient %q, want %q", sent.recipient, "test@example.com")
		}

		data, ok := sent.data.(auth.ConfirmationData)
		if !ok {
			t.Fatalf("unexpected email data: %v", sent.data)
		}

		if !strings.HasPrefix(data.ConfirmURL, "http://example.com/confirm/") {
			t.Errorf("unexpected confirm URL: %q", data.ConfirmURL)
		}
	})

	t.Run("fail, duplicate email", func(t *testing.T) {
		st := setupService(t)

		if _, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret")); err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		_, err := st.svc.Register(ctx, credentials(t, "test@example.com", "another"))
		if !errors.Is(err, auth.ErrDuplicateEmail) {
			t.Errorf("expected ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("fail, address without mailbox", func(t *testing.T) {
		noMX := email.CheckerFunc(func(_ context.Context, _ email.Address) error {
			return email.ErrNoMailbox
		})

		st := setupServiceMX(t, noMX)

		_, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))

		var invalid errorz.InvalidInput
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidInput, got %v", err)
		}

		if !errors.Is(err, email.ErrNoMailbox) {
			t.Errorf("expected ErrNoMailbox in %v", err)
		}

		if len(st.emailer.emails) != 0 {
			t.Errorf("no email should be sent for a rejected registration")
		}
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("ok, valid credentials", func(t *testing.T) {
		st := setupService(t)

		registered, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		user, err := st.svc.Authenticate(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to authenticate: %v", err)
		}

		if user.ID != registered.ID {
			t.Errorf("got user %d, want %d", user.ID, registered.ID)
		}
	})

	t.Run("fail", func(t *testing.T) {
		tests := map[string]auth.Credentials{
			"wrong password": credentials(t, "test@example.com", "wrong"),
			"unknown email":  credentials(t, "unknown@example.com", "secret"),
		}

		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				st := setupService(t)

				if _, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret")); err != nil {
					t.Fatalf("failed to register: %v", err)
				}

				_, err := st.svc.Authenticate(ctx, tc)
				if !errors.Is(err, auth.ErrBadCredentials) {
					t.Errorf("expected ErrBadCredentials, got %v", err)
				}
			})
		}
	})
}

func TestService_GetUser(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		st := setupService(t)

		registered, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		user, err := st.svc.GetUser(ctx, registered.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if user.Email != "test@example.com" {
			t.Errorf("got email %q, want %q", user.Email, "test@example.com")
		}
	})

	t.Run("fail, unknown ID", func(t *testing.T) {
		st := setupService(t)

		_, err := st.svc.GetUser(ctx, 42)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestService_ConfirmEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("ok, confirms the user", func(t *testing.T) {
		st := setupService(t)

		now := time.Now().Round(time.Second)
		st.svc.NowFunc = func() time.Time {
			return now
		}

		registered, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		if err := st.svc.ConfirmEmail(ctx, registered.ID, st.confirmToken(t)); err != nil {
			t.Fatalf("failed to confirm email: %v", err)
		}

		user, err := st.svc.GetUser(ctx, registered.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if !user.Confirmed {
			t.Errorf("user should be confirmed")
		}

		if user.ConfirmedOn == nil || !user.ConfirmedOn.Equal(now) {
			t.Errorf("got confirmation time %v, want %v", user.ConfirmedOn, now)
		}
	})

	t.Run("ok, already confirmed is a no-op", func(t *testing.T) {
		st := setupService(t)

		registered, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		tok := st.confirmToken(t)

		if err := st.svc.ConfirmEmail(ctx, registered.ID, tok); err != nil {
			t.Fatalf("failed to confirm email: %v", err)
		}

		first, err := st.svc.GetUser(ctx, registered.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if err := st.svc.ConfirmEmail(ctx, registered.ID, tok); err != nil {
			t.Fatalf("failed to confirm email again: %v", err)
		}

		second, err := st.svc.GetUser(ctx, registered.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if first.ConfirmedOn == nil || second.ConfirmedOn == nil {
			t.Fatalf("confirmation time missing")
		}

		if !second.ConfirmedOn.Equal(*first.ConfirmedOn) {
			t.Errorf("confirmation time changed from %v to %v", first.ConfirmedOn, second.ConfirmedOn)
		}
	})

	t.Run("fail, token for another user's email", func(t *testing.T) {
		st := setupService(t)

		if _, err := st.svc.Register(ctx, credentials(t, "alice@example.com", "secret")); err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		aliceToken := st.confirmToken(t)

		bob, err := st.svc.Register(ctx, credentials(t, "bob@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		err = st.svc.ConfirmEmail(ctx, bob.ID, aliceToken)
		if !errors.Is(err, auth.ErrTokenInvalid) {
			t.Errorf("expected ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("fail, garbage token", func(t *testing.T) {
		st := setupService(t)

		registered, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		err = st.svc.ConfirmEmail(ctx, registered.ID, "not-a-token")
		if !errors.Is(err, auth.ErrTokenInvalid) {
			t.Errorf("expected ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("fail, expired token", func(t *testing.T) {
		st := setupService(t)

		registered, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret"))
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		tok := st.confirmToken(t)

		// Redeem two hours later, past the one hour max age.
		st.tokens.NowFunc = func() time.Time {
			return time.Now().Add(time.Hour * 2)
		}

		err = st.svc.ConfirmEmail(ctx, registered.ID, tok)
		if !errors.Is(err, auth.ErrTokenInvalid) {
			t.Errorf("expected ErrTokenInvalid, got %v", err)
		}
	})
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()

	resetToken := func(t *testing.T, st *svcTest) string {
		t.Helper()

		last := st.emailer.emails[len(st.emailer.emails)-1]
		data, ok := last.data.(auth.ResetRequestData)
		if !ok {
			t.Fatalf("last email is not a reset email: %v", last)
		}

		i := strings.Index(data.ResetURL, "token=")
		if i < 0 {
			t.Fatalf("no token in reset URL: %q", data.ResetURL)
		}

		return data.ResetURL[i+len("token="):]
	}

	t.Run("ok, full reset flow", func(t *testing.T) {
		st := setupService(t)

		if _, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret")); err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		if err := st.svc.RequestPasswordReset(ctx, "test@example.com"); err != nil {
			t.Fatalf("failed to request reset: %v", err)
		}

		newPwd, err := auth.ParsePassword("brand new secret")
		if err != nil {
			t.Fatalf("failed to parse password: %v", err)
		}

		err = st.svc.ResetPassword(ctx, auth.NewPassword{
			Token:    resetToken(t, st),
			Password: newPwd,
		})
		if err != nil {
			t.Fatalf("failed to reset password: %v", err)
		}

		if _, err := st.svc.Authenticate(ctx, credentials(t, "test@example.com", "brand new secret")); err != nil {
			t.Errorf("failed to authenticate with new password: %v", err)
		}

		_, err = st.svc.Authenticate(ctx, credentials(t, "test@example.com", "secret"))
		if !errors.Is(err, auth.ErrBadCredentials) {
			t.Errorf("old password still works: %v", err)
		}
	})

	t.Run("ok, unknown address sends nothing", func(t *testing.T) {
		st := setupService(t)

		if err := st.svc.RequestPasswordReset(ctx, "unknown@example.com"); err != nil {
			t.Fatalf("request for unknown address should not error: %v", err)
		}

		if len(st.emailer.emails) != 0 {
			t.Errorf("expected no emails, got %d", len(st.emailer.emails))
		}
	})

	t.Run("fail, confirmation token can't reset a password", func(t *testing.T) {
		st := setupService(t)

		if _, err := st.svc.Register(ctx, credentials(t, "test@example.com", "secret")); err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		newPwd, err := auth.ParsePassword("brand new secret")
		if err != nil {
			t.Fatalf("failed to parse password: %v", err)
		}

		err = st.svc.ResetPassword(ctx, auth.NewPassword{
			Token:    st.confirmToken(t),
			Password: newPwd,
		})
		if !errors.Is(err, auth.ErrTokenInvalid) {
			t.Errorf("expected ErrTokenInvalid, got %v", err)
		}
	})
}
