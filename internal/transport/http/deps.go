package http

import (
	"context"
	"time"

	"github.com/freightlane/auth-core/internal/application/notify"
	"github.com/freightlane/auth-core/internal/domain"
	jwtinfra "github.com/freightlane/auth-core/internal/infrastructure/jwt"
	"github.com/rs/zerolog"
)

// AccountRepository is the credential record store every service runs on.
// Each transition is a single atomic conditional update.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByVerificationDigest(ctx context.Context, digest string) (*domain.Account, error)
	SetVerification(ctx context.Context, accountID string, secret domain.ExpiringSecret) error
	// MarkEmailVerified keeps the digest so a repeated link resolves to AlreadyVerified.
	MarkEmailVerified(ctx context.Context, accountID, digest string, now time.Time) error

	RecordLoginFailure(ctx context.Context, accountID string, now time.Time) (domain.FailureResult, error)
	ResetLoginAttempts(ctx context.Context, accountID string) error
	Unlock(ctx context.Context, accountID string, now time.Time) error

	SetChallenge(ctx context.Context, accountID string, secret domain.ExpiringSecret) error
	ConsumeChallenge(ctx context.Context, accountID, digest string, now time.Time) error
	EnableTwoFactor(ctx context.Context, accountID string, backupDigests []string) error
	DisableTwoFactor(ctx context.Context, accountID string) error
	ConsumeBackupCode(ctx context.Context, accountID, digest string) error

	SetPasswordReset(ctx context.Context, accountID string, secret domain.ExpiringSecret) error
	ConsumePasswordReset(ctx context.Context, digest, newHash string, now time.Time) (*domain.Account, error)
}

// TokenSigner mints and verifies session tokens.
type TokenSigner interface {
	Sign(accountID string) (string, *jwtinfra.Claims, error)
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// Denylist records revoked token ids until they would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Accounts AccountRepository
	Signer   TokenSigner
	Denylist Denylist              // optional; logout is a no-op without it
	Mailer   notify.Mailer
	Events   notify.EventPublisher // optional
	// Notifier delivers Mailer and Events in the background. Built from them
	// when nil; pass one in to drain pending sends on shutdown.
	Notifier *notify.Dispatcher
	Logger   zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}
