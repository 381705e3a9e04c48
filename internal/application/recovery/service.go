package recovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/freightlane/auth-core/internal/application/notify"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/metrics"
	"github.com/freightlane/auth-core/internal/pkg/password"
	"github.com/freightlane/auth-core/internal/pkg/token"
	"github.com/freightlane/auth-core/internal/pkg/validate"
	"github.com/rs/zerolog/log"
)

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type Service interface {
	// RequestReset behaves identically for known and unknown emails.
	RequestReset(ctx context.Context, email string)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
}

type accountStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	SetPasswordReset(ctx context.Context, accountID string, secret domain.ExpiringSecret) error
	ConsumePasswordReset(ctx context.Context, digest, newHash string, now time.Time) (*domain.Account, error)
}

type notifier interface {
	Email(ctx context.Context, to string, m notify.Message)
	Security(ctx context.Context, ev domain.SecurityEvent)
}

type service struct {
	store       accountStore
	notifier    notifier
	frontendURL string
	now         func() time.Time
}

type ServiceDeps struct {
	Store       accountStore
	Notifier    notifier
	FrontendURL string
	Now         func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{store: deps.Store, notifier: deps.Notifier, frontendURL: deps.FrontendURL, now: now}
}

// RequestReset swallows every failure after logging it, so the caller cannot
// tell whether the address belongs to an account.
func (s *service) RequestReset(ctx context.Context, email string) {
	a, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Ctx(ctx).Error().Err(err).Msg("password reset lookup failed")
		}
		return
	}
	raw, err := token.NewOpaque()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("password reset token generation failed")
		return
	}
	secret := domain.ExpiringSecret{Digest: token.Digest(raw), ExpiresAt: s.now().Add(domain.ResetTokenTTL)}
	if err := s.store.SetPasswordReset(ctx, a.AccountID, secret); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("account_id", a.AccountID).Msg("password reset token store failed")
		return
	}
	s.notifier.Email(ctx, a.Email, notify.ResetMessage(s.resetLink(raw)))
	log.Ctx(ctx).Info().Str("account_id", a.AccountID).Msg("password reset requested")
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	hash, err := password.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	now := s.now()
	a, err := s.store.ConsumePasswordReset(ctx, token.Digest(req.Token), hash, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("reset token: %w", domain.ErrInvalidOrExpiredToken)
		}
		return err
	}
	metrics.PasswordResets.Inc()
	s.notifier.Security(ctx, domain.SecurityEvent{
		Type:       domain.EventPasswordReset,
		AccountID:  a.AccountID,
		Email:      a.Email,
		OccurredAt: now.UTC(),
	})
	log.Ctx(ctx).Info().Str("account_id", a.AccountID).Msg("password reset completed")
	return nil
}

func (s *service) resetLink(raw string) string {
	return s.frontendURL + "/reset-password?token=" + url.QueryEscape(raw)
}
