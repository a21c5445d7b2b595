package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Parameters for newly created hashes. Existing hashes embed their own
// parameters, so these can be bumped without invalidating stored hashes.
const (
	argonMemoryKiB   = 47104
	argonIterations  = 1
	argonParallelism = 1
	argonSaltLen     = 16
	argonKeyLen      = 32
)

var ErrInvalidHash = errors.New("invalid argon2 hash")

// b64 is the encoding used for the salt and hash segments of the PHC
// string format, standard base64 without padding.
var b64 = base64.RawStdEncoding

// Argon2Hash is an argon2id hash and the parameters used to create it.
// Its string form follows the PHC format:
//
//	$argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes data using the argon2id algorithm with a random salt.
func HashArgon2(data []byte) (Argon2Hash, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Argon2Hash{}, err
	}

	hash := argon2.IDKey(data, salt, argonIterations, argonMemoryKiB, argonParallelism, argonKeyLen)

	return Argon2Hash{
		Variant:     "argon2id",
		Version:     argon2.Version,
		MemoryKiB:   argonMemoryKiB,
		Iterations:  argonIterations,
		Parallelism: argonParallelism,
		Salt:        salt,
		Hash:        hash,
	}, nil
}

// MatchBytes reports whether data hashes to h using the parameters
// embedded in h. The comparison of the resulting hashes is constant time.
func (h Argon2Hash) MatchBytes(data []byte) bool {
	other := argon2.IDKey(data, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}

// ParseArgon2Hash parses a hash in the PHC string format.
func ParseArgon2Hash(raw string) (Argon2Hash, error) {
	parts := strings.Split(raw, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, ErrInvalidHash
	}

	if parts[1] != "argon2id" {
		return Argon2Hash{}, ErrInvalidHash
	}

	h := Argon2Hash{
		Variant: parts[1],
	}

	if n, err := fmt.Sscanf(parts[2], "v=%d", &h.Version); err != nil || n != 1 {
		return Argon2Hash{}, ErrInvalidHash
	}

	if h.Version != argon2.Version {
		return Argon2Hash{}, ErrInvalidHash
	}

	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.MemoryKiB, &h.Iterations, &h.Parallelism); err != nil || n != 3 {
		return Argon2Hash{}, ErrInvalidHash
	}

	var err error
	h.Salt, err = b64.DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, ErrInvalidHash
	}

	h.Hash, err = b64.DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, ErrInvalidHash
	}

	return h, nil
}

func (h Argon2Hash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant, h.Version, h.MemoryKiB, h.Iterations, h.Parallelism,
		b64.EncodeToString(h.Salt), b64.EncodeToString(h.Hash))
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseArgon2Hash(string(text))
	if err != nil {
		return err
	}

	*h = parsed

	return nil
}

// Scan implements sql.Scanner so hashes can be read directly from
// database columns.
func (h *Argon2Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Argon2Hash", src)
	}
}

// Value implements driver.Valuer so hashes can be written directly to
// database columns.
func (h Argon2Hash) Value() (driver.Value, error) {
	return h.String(), nil
}
