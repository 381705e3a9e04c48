package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freightlane/auth-core/internal/application/notify"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/metrics"
	"github.com/freightlane/auth-core/internal/pkg/token"
	"github.com/rs/zerolog/log"
)

const codeDigits = 6

type Service interface {
	// IssueChallenge mints and emails a fresh code, replacing any pending one.
	IssueChallenge(ctx context.Context, accountID string) error
	// VerifyChallenge consumes the pending code. A mismatch changes nothing.
	VerifyChallenge(ctx context.Context, accountID, code string) error
	// Enable turns two-factor on and returns the plaintext backup codes. They
	// are not retrievable afterwards.
	Enable(ctx context.Context, accountID string) ([]string, error)
	// Disable expects the caller to have re-confirmed the password.
	Disable(ctx context.Context, accountID string) error
	// VerifyBackupCode authenticates by email and a single-use backup code.
	VerifyBackupCode(ctx context.Context, email, code string) (*domain.Account, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Unlock(ctx context.Context, accountID string, now time.Time) error
	SetChallenge(ctx context.Context, accountID string, secret domain.ExpiringSecret) error
	ConsumeChallenge(ctx context.Context, accountID, digest string, now time.Time) error
	EnableTwoFactor(ctx context.Context, accountID string, backupDigests []string) error
	DisableTwoFactor(ctx context.Context, accountID string) error
	ConsumeBackupCode(ctx context.Context, accountID, digest string) error
}

type notifier interface {
	Email(ctx context.Context, to string, m notify.Message)
	Security(ctx context.Context, ev domain.SecurityEvent)
}

type service struct {
	store    accountStore
	notifier notifier
	now      func() time.Time
}

type ServiceDeps struct {
	Store    accountStore
	Notifier notifier
	Now      func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{store: deps.Store, notifier: deps.Notifier, now: now}
}

func (s *service) IssueChallenge(ctx context.Context, accountID string) error {
	a, err := s.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	code, err := token.NewNumericCode(codeDigits)
	if err != nil {
		return err
	}
	secret := domain.ExpiringSecret{Digest: token.Digest(code), ExpiresAt: s.now().Add(domain.ChallengeCodeTTL)}
	if err := s.store.SetChallenge(ctx, accountID, secret); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	s.notifier.Email(ctx, a.Email, notify.ChallengeMessage(code))
	log.Ctx(ctx).Info().Str("account_id", accountID).Msg("two-factor challenge issued")
	return nil
}

func (s *service) VerifyChallenge(ctx context.Context, accountID, code string) error {
	if !isNumeric(code, codeDigits) {
		return fmt.Errorf("malformed two-factor code: %w", domain.ErrInvalidOrExpiredToken)
	}
	if err := s.store.ConsumeChallenge(ctx, accountID, token.Digest(code), s.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("two-factor code: %w", domain.ErrInvalidOrExpiredToken)
		}
		return err
	}
	return nil
}

func (s *service) Enable(ctx context.Context, accountID string) ([]string, error) {
	codes, err := token.NewBackupCodes(domain.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	digests := make([]string, len(codes))
	for i, c := range codes {
		digests[i] = token.Digest(c)
	}
	if err := s.store.EnableTwoFactor(ctx, accountID, digests); err != nil {
		return nil, fmt.Errorf("enable two-factor: %w", err)
	}
	log.Ctx(ctx).Info().Str("account_id", accountID).Msg("two-factor enabled")
	return codes, nil
}

func (s *service) Disable(ctx context.Context, accountID string) error {
	a, err := s.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.store.DisableTwoFactor(ctx, accountID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	s.notifier.Security(ctx, domain.SecurityEvent{
		Type:       domain.EventTwoFactorDisabled,
		AccountID:  a.AccountID,
		Email:      a.Email,
		OccurredAt: s.now().UTC(),
	})
	log.Ctx(ctx).Info().Str("account_id", accountID).Msg("two-factor disabled")
	return nil
}

func (s *service) VerifyBackupCode(ctx context.Context, email, code string) (*domain.Account, error) {
	code = token.NormalizeBackupCode(code)
	a, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch a.LockStateAt(now) {
	case domain.Locked:
		return nil, &domain.LockedError{Until: *a.LockedUntil, Now: now}
	case domain.LockExpired:
		if err := s.store.Unlock(ctx, a.AccountID, now); err != nil {
			return nil, fmt.Errorf("unlock account: %w", err)
		}
		a.LockedUntil = nil
		a.LoginAttempts = 0
	}

	if !a.TwoFactorEnabled || code == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if err := s.store.ConsumeBackupCode(ctx, a.AccountID, token.Digest(code)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	metrics.BackupCodesUsed.Inc()
	log.Ctx(ctx).Info().Str("account_id", a.AccountID).Msg("backup code used")
	return a, nil
}

func isNumeric(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
