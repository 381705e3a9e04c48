package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/metrics"
	"github.com/freightlane/auth-core/internal/pkg/password"
	"github.com/rs/zerolog/log"
)

// Request is the login form. TwoFactorCode is only read for accounts with
// two-factor enabled.
type Request struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	TwoFactorCode string `json:"twoFactorCode"`
}

// Result carries either an authenticated account or a pending second factor.
type Result struct {
	Account           *domain.Account
	RequiresTwoFactor bool
}

type Service interface {
	Login(ctx context.Context, req Request) (*Result, error)
	// ConfirmPassword re-checks the password of an authenticated account.
	// It never touches the lockout counters.
	ConfirmPassword(ctx context.Context, accountID, plain string) error
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	RecordLoginFailure(ctx context.Context, accountID string, now time.Time) (domain.FailureResult, error)
	ResetLoginAttempts(ctx context.Context, accountID string) error
	Unlock(ctx context.Context, accountID string, now time.Time) error
}

type challenger interface {
	IssueChallenge(ctx context.Context, accountID string) error
	VerifyChallenge(ctx context.Context, accountID, code string) error
}

type notifier interface {
	Security(ctx context.Context, ev domain.SecurityEvent)
}

type service struct {
	store     accountStore
	twoFactor challenger
	notifier  notifier
	now       func() time.Time
}

type ServiceDeps struct {
	Store     accountStore
	TwoFactor challenger
	Notifier  notifier
	Now       func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{store: deps.Store, twoFactor: deps.TwoFactor, notifier: deps.Notifier, now: now}
}

func (s *service) Login(ctx context.Context, req Request) (*Result, error) {
	a, err := s.store.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		password.Burn(req.Password)
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeUnknownEmail).Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch a.LockStateAt(now) {
	case domain.Locked:
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeLocked).Inc()
		return nil, &domain.LockedError{Until: *a.LockedUntil, Now: now}
	case domain.LockExpired:
		if err := s.store.Unlock(ctx, a.AccountID, now); err != nil {
			return nil, fmt.Errorf("unlock account: %w", err)
		}
		a.LockedUntil = nil
		a.LoginAttempts = 0
	}

	ok, err := password.Matches(a.PasswordHash, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.recordFailure(ctx, a, now)
	}

	// the read may predate a concurrent failure, so reset regardless of what it shows
	if err := s.store.ResetLoginAttempts(ctx, a.AccountID); err != nil {
		return nil, fmt.Errorf("reset login attempts: %w", err)
	}
	a.LoginAttempts = 0

	if !a.TwoFactorEnabled {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
		return &Result{Account: a}, nil
	}
	if req.TwoFactorCode != "" {
		if err := s.twoFactor.VerifyChallenge(ctx, a.AccountID, req.TwoFactorCode); err != nil {
			metrics.LoginAttempts.WithLabelValues(metrics.OutcomeInvalidSecond).Inc()
			return nil, err
		}
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
		return &Result{Account: a}, nil
	}
	if err := s.twoFactor.IssueChallenge(ctx, a.AccountID); err != nil {
		return nil, err
	}
	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeChallenge).Inc()
	return &Result{RequiresTwoFactor: true}, nil
}

// recordFailure counts a wrong password and converts the outcome into the
// error the caller sees.
func (s *service) recordFailure(ctx context.Context, a *domain.Account, now time.Time) error {
	res, err := s.store.RecordLoginFailure(ctx, a.AccountID, now)
	if err != nil {
		var locked *domain.LockedError
		if errors.As(err, &locked) {
			// a concurrent request locked the account first
			metrics.LoginAttempts.WithLabelValues(metrics.OutcomeLocked).Inc()
		}
		return err
	}
	if res.LockedUntil != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeLocked).Inc()
		metrics.Lockouts.Inc()
		log.Ctx(ctx).Warn().
			Str("account_id", a.AccountID).
			Time("locked_until", *res.LockedUntil).
			Msg("account locked after repeated login failures")
		s.notifier.Security(ctx, domain.SecurityEvent{
			Type:       domain.EventAccountLocked,
			AccountID:  a.AccountID,
			Email:      a.Email,
			OccurredAt: now.UTC(),
			Until:      res.LockedUntil,
		})
		return &domain.LockedError{Until: *res.LockedUntil, Now: now}
	}
	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeInvalid).Inc()
	return &domain.CredentialsError{AttemptsRemaining: domain.MaxLoginAttempts - res.Attempts}
}

func (s *service) ConfirmPassword(ctx context.Context, accountID, plain string) error {
	a, err := s.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	ok, err := password.Matches(a.PasswordHash, plain)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("password confirmation failed: %w", domain.ErrInvalidCredentials)
	}
	return nil
}
