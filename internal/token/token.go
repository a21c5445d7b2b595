// Package token issues and validates the two signed token kinds used by
// the app: short-lived bearer auth tokens and longer-lived email tokens
// that prove ownership of an address. Both kinds are HMAC-SHA256 signed
// JWTs sharing a single configured secret. Email tokens are signed with a
// key derived from the secret, a configured salt and the token purpose, so
// the token kinds can never be substituted for one another.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/krypto"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every way a token can fail validation: bad
// signature, malformed, wrong purpose or expired. Callers deliberately
// can't distinguish these cases.
var ErrInvalidToken = errors.New("invalid token")

// Purpose scopes an email token to a single use case.
type Purpose string

const (
	PurposeConfirmEmail  Purpose = "confirm-email"
	PurposeResetPassword Purpose = "reset-password"
)

// Service issues and validates tokens.
type Service struct {
	secret  krypto.Secret
	salt    krypto.Secret
	authTTL time.Duration

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

// NewService creates a token service. authTTL is the validity window of
// the bearer auth tokens.
func NewService(secret, salt krypto.Secret, authTTL time.Duration) *Service {
	return &Service{
		secret:  secret,
		salt:    salt,
		authTTL: authTTL,
		NowFunc: time.Now,
	}
}

// IssueAuth creates a bearer auth token for the user. It returns the
// signed token and the duration it remains valid.
func (s *Service) IssueAuth(userID int) (string, time.Duration, error) {
	now := s.NowFunc()

	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.authTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret.SecretValue())
	if err != nil {
		return "", 0, err
	}

	return signed, s.authTTL, nil
}

// ParseAuth validates a bearer auth token by signature and expiry and
// returns the user ID it was issued for. The token carries no other
// claims the caller can rely on.
func (s *Service) ParseAuth(raw string) (int, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret.SecretValue(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.NowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, ErrInvalidToken
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.Atoi(sub)
	if err != nil {
		return 0, ErrInvalidToken
	}

	return userID, nil
}

// IssueEmail creates a signed, timestamped token encoding the email
// address. The token has no expiry of its own, its age is checked when
// it's redeemed.
func (s *Service) IssueEmail(addr email.Address, purpose Purpose) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  string(addr),
		IssuedAt: jwt.NewNumericDate(s.NowFunc()),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.emailKey(purpose))
}

// RedeemEmail validates an email token and returns the address it was
// issued for. Tokens older than maxAge are rejected. Redeeming never
// mutates state, callers decide what the proven address ownership means.
func (s *Service) RedeemEmail(raw string, purpose Purpose, maxAge time.Duration) (email.Address, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.emailKey(purpose), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.NowFunc),
	)
	if err != nil {
		return "", ErrInvalidToken
	}

	issuedAt, err := parsed.Claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return "", ErrInvalidToken
	}

	if s.NowFunc().Sub(issuedAt.Time) > maxAge {
		return "", ErrInvalidToken
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", ErrInvalidToken
	}

	addr, err := email.ParseAddress(sub)
	if err != nil {
		return "", ErrInvalidToken
	}

	return addr, nil
}

// emailKey derives the signing key for email tokens of the given purpose.
func (s *Service) emailKey(purpose Purpose) []byte {
	label := string(s.salt.SecretValue()) + "." + string(purpose)
	return krypto.DeriveKey(s.secret, label).SecretValue()
}
