package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
	ErrConflict              = errors.New("conflict")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountLocked         = errors.New("account locked")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrUnauthorized          = errors.New("unauthorized")
)

// CredentialsError is returned for a wrong password on an existing account.
type CredentialsError struct {
	AttemptsRemaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid email or password, %d attempts remaining", e.AttemptsRemaining)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// LockedError reports an active lockout.
type LockedError struct {
	Until time.Time
	Now   time.Time
}

// MinutesRemaining rounds the remaining lock time up to whole minutes.
func (e *LockedError) MinutesRemaining() int {
	d := e.Until.Sub(e.Now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.MinutesRemaining())
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }
