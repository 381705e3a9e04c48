package registration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/freightlane/auth-core/internal/application/notify"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/metrics"
	"github.com/freightlane/auth-core/internal/pkg/id"
	"github.com/freightlane/auth-core/internal/pkg/password"
	"github.com/freightlane/auth-core/internal/pkg/token"
	"github.com/freightlane/auth-core/internal/pkg/validate"
	"github.com/rs/zerolog/log"
)

// RegisterRequest is the sign-up form. Kind comes from the route.
type RegisterRequest struct {
	Kind        domain.Kind `json:"-" validate:"required,oneof=shipper carrier"`
	Email       string      `json:"email" validate:"required,email,max=254"`
	Password    string      `json:"password" validate:"required,min=8,max=72"`
	FirstName   string      `json:"firstName" validate:"required,max=100"`
	LastName    string      `json:"lastName" validate:"required,max=100"`
	CompanyName string      `json:"companyName" validate:"required,max=200"`
	Phone       string      `json:"phone" validate:"omitempty,max=32"`
	DOTNumber   string      `json:"dotNumber" validate:"omitempty,numeric,max=8"`
}

type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyResult distinguishes a fresh verification from a repeated one.
type VerifyResult int

const (
	Verified VerifyResult = iota + 1
	AlreadyVerified
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Account, error)
	VerifyEmail(ctx context.Context, rawToken string) (VerifyResult, error)
	// ResendVerification never reports whether the email exists.
	ResendVerification(ctx context.Context, email string)
}

type accountStore interface {
	Create(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByVerificationDigest(ctx context.Context, digest string) (*domain.Account, error)
	SetVerification(ctx context.Context, accountID string, secret domain.ExpiringSecret) error
	MarkEmailVerified(ctx context.Context, accountID, digest string, now time.Time) error
}

type notifier interface {
	Email(ctx context.Context, to string, m notify.Message)
}

type service struct {
	store    accountStore
	notifier notifier
	baseURL  string
	now      func() time.Time
}

type ServiceDeps struct {
	Store    accountStore
	Notifier notifier
	BaseURL  string // public API URL the verification link points at
	Now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{store: deps.Store, notifier: deps.Notifier, baseURL: deps.BaseURL, now: now}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Kind != domain.KindCarrier {
		req.DOTNumber = ""
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	raw, secret, err := s.mintVerification()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &domain.Account{
		AccountID:    id.New(),
		Email:        req.Email,
		PasswordHash: hash,
		Profile: domain.Profile{
			Kind:        req.Kind,
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			CompanyName: strings.TrimSpace(req.CompanyName),
			Phone:       strings.TrimSpace(req.Phone),
			DOTNumber:   req.DOTNumber,
		},
		Verification: &secret,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	s.notifier.Email(ctx, a.Email, notify.VerificationMessage(s.verifyLink(raw)))
	metrics.Registrations.WithLabelValues(string(a.Kind)).Inc()
	log.Ctx(ctx).Info().Str("account_id", a.AccountID).Str("kind", string(a.Kind)).Msg("account registered")
	return a, nil
}

func (s *service) VerifyEmail(ctx context.Context, rawToken string) (VerifyResult, error) {
	if rawToken == "" {
		return 0, fmt.Errorf("verification token missing: %w", domain.ErrInvalidOrExpiredToken)
	}
	digest := token.Digest(rawToken)
	a, err := s.store.GetByVerificationDigest(ctx, digest)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("verification token: %w", domain.ErrInvalidOrExpiredToken)
	}
	if err != nil {
		return 0, err
	}
	if a.EmailVerified {
		return AlreadyVerified, nil
	}

	err = s.store.MarkEmailVerified(ctx, a.AccountID, digest, s.now())
	if errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		// a concurrent click may have won the race
		if cur, gerr := s.store.Get(ctx, a.AccountID); gerr == nil && cur.EmailVerified {
			return AlreadyVerified, nil
		}
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	metrics.EmailVerifications.Inc()
	log.Ctx(ctx).Info().Str("account_id", a.AccountID).Msg("email verified")
	return Verified, nil
}

func (s *service) ResendVerification(ctx context.Context, email string) {
	a, err := s.store.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Ctx(ctx).Error().Err(err).Msg("resend verification lookup failed")
		}
		return
	}
	if a.EmailVerified {
		return
	}
	raw, secret, err := s.mintVerification()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("verification token generation failed")
		return
	}
	if err := s.store.SetVerification(ctx, a.AccountID, secret); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("account_id", a.AccountID).Msg("verification token store failed")
		return
	}
	s.notifier.Email(ctx, a.Email, notify.VerificationMessage(s.verifyLink(raw)))
}

func (s *service) mintVerification() (string, domain.ExpiringSecret, error) {
	raw, err := token.NewOpaque()
	if err != nil {
		return "", domain.ExpiringSecret{}, err
	}
	return raw, domain.ExpiringSecret{
		Digest:    token.Digest(raw),
		ExpiresAt: s.now().Add(domain.VerificationTokenTTL),
	}, nil
}

func (s *service) verifyLink(raw string) string {
	return s.baseURL + "/auth/verify-email?token=" + url.QueryEscape(raw)
}
