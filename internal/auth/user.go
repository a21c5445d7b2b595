package auth

import (
	"time"

	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/krypto"
)

// User contains the data for a user.
//
// ConfirmedOn is non-nil exactly when Confirmed is true and is set once,
// a user is never "unconfirmed" again.
type User struct {
	ID           int
	Email        email.Address
	PasswordHash krypto.Argon2Hash
	Confirmed    bool
	RegisteredOn time.Time
	ConfirmedOn  *time.Time
}

// Credentials is an email/password pair as provided by a client.
type Credentials struct {
	Email    email.Address
	Password Password
}
