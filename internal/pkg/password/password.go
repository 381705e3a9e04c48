package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength is the bcrypt input limit; longer inputs are rejected instead of truncated.
const MaxLength = 72

// dummyHash is compared against when no account matches, so unknown emails
// take as long as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("freightlane-timing-equaliser"), bcrypt.DefaultCost)

// Hash returns the bcrypt hash of plain.
func Hash(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Matches reports whether plain matches hash. Malformed hashes are an error.
// Inputs over MaxLength never match, since bcrypt only looks at the first 72 bytes.
func Matches(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if len(plain) > MaxLength {
		return false, nil
	}
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("compare password: %w", err)
}

// Burn performs a throwaway comparison.
func Burn(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
