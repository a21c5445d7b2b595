package krypto

import "fmt"

// Secret is arbitrary sensitive data that needs to be passed
// around but not exposed. Things like signing keys, salts or
// SMTP credentials.
type Secret struct {
	value []byte
}

// NewSecret creates a new secret.
func NewSecret(raw string) Secret {
	return Secret{
		value: []byte(raw),
	}
}

func (s Secret) Format(f fmt.State, verb rune) {
	f.Write([]byte(SecretMarker))
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(SecretMarker), nil
}

func (s *Secret) UnmarshalText(text []byte) error {
	s.value = make([]byte, len(text))
	copy(s.value, text)
	return nil
}

// SecretValue returns the secret as a byte slice. This is provided
// as an escape hatch for cases where the secret needs to be provided
// to third party packages or libraries.
func (s Secret) SecretValue() []byte {
	return s.value
}
