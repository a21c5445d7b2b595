package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/errorz"
	"github.com/enrollhq/enroll/internal/krypto"
	"github.com/enrollhq/enroll/internal/token"
)

var (
	// ErrDuplicateEmail indicates the email address is already registered.
	ErrDuplicateEmail = errors.New("email address already registered")
	// ErrBadCredentials indicates an unknown email or a password mismatch.
	// The two cases are deliberately indistinguishable.
	ErrBadCredentials = errors.New("incorrect email or password")
	// ErrTokenInvalid indicates an email token that is tampered with,
	// expired, or doesn't belong to the acting user. One outcome for all
	// cases, callers can't probe which check failed.
	ErrTokenInvalid = errors.New("token is invalid or has expired")
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// BaseURL is the external URL of the app, used to build the links
	// embedded in emails.
	BaseURL string
	// EmailTokenMaxAge is the duration an email token remains redeemable.
	EmailTokenMaxAge time.Duration
}

// Service provides the main rules for registration and authentication.
type Service struct {
	store   Store
	emailer Emailer
	tokens  *token.Service
	mx      email.MXChecker
	cfg     ServiceConfig

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, tokens *token.Service, mx email.MXChecker, cfg ServiceConfig) (*Service, error) {
	// Hash some random data so there is always a hash to compare against,
	// even when an email lookup comes up empty.
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(random)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		tokens:         tokens,
		mx:             mx,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Register creates a new unconfirmed user with the provided credentials
// and sends a confirmation email.
//
// The email address must pass a mailbox deliverability check and must not
// be registered yet. Uniqueness is enforced by the store, concurrent
// registrations with the same address can't both succeed.
func (s *Service) Register(ctx context.Context, c Credentials) (User, error) {
	if err := s.mx.CheckMX(ctx, c.Email); err != nil {
		return User{}, errorz.InvalidInput{
			errorz.Keyed{Key: "Email", Err: err},
		}
	}

	pwdHash, err := c.Password.Hash()
	if err != nil {
		return User{}, err
	}

	user := User{
		Email:        c.Email,
		PasswordHash: pwdHash,
		Confirmed:    false,
		RegisteredOn: s.NowFunc(),
	}

	err = s.inTx(ctx, func(tx Tx) error {
		return tx.CreateUser(&user)
	})
	if err != nil {
		if errors.Is(err, errorz.ErrConstraintViolated) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}

	// Send the confirmation email. This happens outside the transaction,
	// a transport failure leaves the user registered but unconfirmed, and
	// surfaces to the caller.
	if err := s.sendConfirmation(ctx, user.Email); err != nil {
		return User{}, err
	}

	return user, nil
}

// ConfirmationData is the data passed to the confirmation email template.
type ConfirmationData struct {
	ConfirmURL string
}

func (s *Service) sendConfirmation(ctx context.Context, addr email.Address) error {
	tok, err := s.tokens.IssueEmail(addr, token.PurposeConfirmEmail)
	if err != nil {
		return err
	}

	return s.emailer.Send(ctx, "confirm-email", addr, ConfirmationData{
		ConfirmURL: fmt.Sprintf("%s/confirm/%s", s.cfg.BaseURL, tok),
	})
}

// Authenticate checks the provided credentials and returns the matching
// user. Unknown emails and wrong passwords both return ErrBadCredentials.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (User, error) {
	users, err := s.store.FindUsers(ctx, &UserFilter{
		Emails: []email.Address{c.Email},
	})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		// Even if no user is found we compare to a hash to prevent timing
		// differences that could result in user enumeration attacks.
		_ = c.Password.Match(s.comparisonHash)
		return User{}, ErrBadCredentials
	}

	if !c.Password.Match(users[0].PasswordHash) {
		return User{}, ErrBadCredentials
	}

	return users[0], nil
}

// GetUser returns the user with the provided ID, or errorz.ErrNotFound.
func (s *Service) GetUser(ctx context.Context, id int) (User, error) {
	users, err := s.store.FindUsers(ctx, &UserFilter{
		IDs: []int{id},
	})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		return User{}, errorz.ErrNotFound
	}

	return users[0], nil
}

// ConfirmEmail redeems a confirmation token on behalf of the user with
// the provided ID. The token must encode exactly that user's email
// address. Confirming an already confirmed user is a no-op.
func (s *Service) ConfirmEmail(ctx context.Context, userID int, rawToken string) error {
	addr, err := s.tokens.RedeemEmail(rawToken, token.PurposeConfirmEmail, s.cfg.EmailTokenMaxAge)
	if err != nil {
		return ErrTokenInvalid
	}

	return s.inTx(ctx, func(tx Tx) error {
		users, err := tx.FindUsers(&UserFilter{
			IDs: []int{userID},
		})
		if err != nil {
			return err
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		user := users[0]

		if user.Email != addr {
			return ErrTokenInvalid
		}

		if user.Confirmed {
			return nil
		}

		now := s.NowFunc()
		user.Confirmed = true
		user.ConfirmedOn = &now

		return tx.UpdateUser(&user)
	})
}

// ResetRequestData is the data passed to the password reset email template.
type ResetRequestData struct {
	ResetURL string
}

// RequestPasswordReset sends a password reset email to the provided
// address if a user is registered with it. To prevent user enumeration,
// the outcome is the same whether the address is known or not.
func (s *Service) RequestPasswordReset(ctx context.Context, addr email.Address) error {
	users, err := s.store.FindUsers(ctx, &UserFilter{
		Emails: []email.Address{addr},
	})
	if err != nil {
		return err
	}

	if len(users) != 1 {
		return nil
	}

	tok, err := s.tokens.IssueEmail(addr, token.PurposeResetPassword)
	if err != nil {
		return err
	}

	return s.emailer.Send(ctx, "reset-password", addr, ResetRequestData{
		ResetURL: fmt.Sprintf("%s/reset-password?token=%s", s.cfg.BaseURL, url.QueryEscape(tok)),
	})
}

// NewPassword is a request to replace a user's password.
type NewPassword struct {
	Token    string
	Password Password
}

// ResetPassword redeems a reset token and replaces the password of the
// user whose email the token encodes.
func (s *Service) ResetPassword(ctx context.Context, req NewPassword) error {
	addr, err := s.tokens.RedeemEmail(req.Token, token.PurposeResetPassword, s.cfg.EmailTokenMaxAge)
	if err != nil {
		return ErrTokenInvalid
	}

	pwdHash, err := req.Password.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		users, err := tx.FindUsers(&UserFilter{
			Emails: []email.Address{addr},
		})
		if err != nil {
			return err
		}

		if len(users) != 1 {
			return ErrTokenInvalid
		}

		user := users[0]
		user.PasswordHash = pwdHash

		return tx.UpdateUser(&user)
	})
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}
