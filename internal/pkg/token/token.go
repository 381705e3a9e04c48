package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// backupAlphabet omits 0/O and 1/I/L so codes survive being read aloud or retyped.
const backupAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const backupCodeLength = 10

// NewOpaque generates a cryptographically random 64-character hex token,
// used for email verification and password reset links.
func NewOpaque() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewNumericCode returns a uniformly random decimal code of exactly n digits.
func NewNumericCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// NewBackupCodes returns n independent single-use alphanumeric codes.
func NewBackupCodes(n int) ([]string, error) {
	codes := make([]string, n)
	for i := range codes {
		c, err := randomString(backupAlphabet, backupCodeLength)
		if err != nil {
			return nil, err
		}
		codes[i] = c
	}
	return codes, nil
}

// NormalizeBackupCode upper-cases a user-typed backup code and drops spaces and dashes.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

// Digest returns the hex SHA-256 of a secret. Only digests are persisted.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomString(alphabet string, n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
