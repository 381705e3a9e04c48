package domain

import "time"

// Kind is the marketplace side an account registered for.
type Kind string

const (
	KindShipper Kind = "shipper"
	KindCarrier Kind = "carrier"
)

// ParseKind validates a kind taken from a URL segment.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindShipper, KindCarrier:
		return Kind(s), true
	}
	return "", false
}

// Lockout policy. Fixed by design, not user-configurable.
const (
	MaxLoginAttempts = 5
	LockoutDuration  = 30 * time.Minute
)

// Token and code lifetimes.
const (
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = time.Hour
	ChallengeCodeTTL     = 10 * time.Minute
	SessionTTL           = 7 * 24 * time.Hour
	BackupCodeCount      = 10
	MinPasswordLength    = 8
)

// Profile holds the non-security fields captured at registration.
type Profile struct {
	Kind        Kind   `json:"kind"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CompanyName string `json:"companyName"`
	Phone       string `json:"phone,omitempty"`
	DOTNumber   string `json:"dotNumber,omitempty"`
}

// ExpiringSecret is the stored digest of a one-time value handed to the user
// (verification link, reset link, emailed challenge code).
type ExpiringSecret struct {
	Digest    string
	ExpiresAt time.Time
}

// Valid reports whether the secret can still be used at now.
func (s *ExpiringSecret) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// Account is the credential record of one user. A nil pointer field means
// the corresponding state is absent, so a lock always carries its expiry.
type Account struct {
	AccountID    string
	Email        string
	PasswordHash string
	Profile

	EmailVerified bool
	Verification  *ExpiringSecret

	LoginAttempts int
	LockedUntil   *time.Time

	TwoFactorEnabled bool
	Challenge        *ExpiringSecret
	BackupCodes      []string // digests of unused codes

	PasswordReset *ExpiringSecret

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockState is the lockout state machine position of an account at a given instant.
type LockState int

const (
	Unlocked LockState = iota
	Locked
	LockExpired
)

// LockStateAt evaluates the lock against now. An expired lock stays on the
// record until it is explicitly cleared.
func (a *Account) LockStateAt(now time.Time) LockState {
	if a.LockedUntil == nil {
		return Unlocked
	}
	if now.Before(*a.LockedUntil) {
		return Locked
	}
	return LockExpired
}

// AttemptsRemaining is how many more consecutive failures are allowed before lockout.
func (a *Account) AttemptsRemaining() int {
	n := MaxLoginAttempts - a.LoginAttempts
	if n < 0 {
		return 0
	}
	return n
}

// FailureResult is the outcome of an atomic failed-login increment.
type FailureResult struct {
	Attempts    int
	LockedUntil *time.Time
}

// PublicAccount is the profile view returned to clients. It never carries
// secrets, digests or lockout counters.
type PublicAccount struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	EmailVerified    bool      `json:"emailVerified"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
	Profile
}

// Public builds the client-safe view of the account.
func (a *Account) Public() *PublicAccount {
	return &PublicAccount{
		ID:               a.AccountID,
		Email:            a.Email,
		EmailVerified:    a.EmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
		Profile:          a.Profile,
	}
}
