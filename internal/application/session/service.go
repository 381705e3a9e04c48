package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freightlane/auth-core/internal/domain"
	jwtinfra "github.com/freightlane/auth-core/internal/infrastructure/jwt"
	"github.com/rs/zerolog/log"
)

// Session is a freshly issued bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   *domain.Account
}

// Principal is the caller behind a verified bearer token. Account is re-read
// from the store on every request.
type Principal struct {
	Account   *domain.Account
	TokenID   string
	ExpiresAt time.Time
}

type Service interface {
	Issue(ctx context.Context, a *domain.Account) (*Session, error)
	Authenticate(ctx context.Context, bearer string) (*Principal, error)
	// Revoke invalidates the principal's token for the rest of its lifetime.
	// Without a denylist it is a no-op and the token lives until expiry.
	Revoke(ctx context.Context, p *Principal) error
}

type signer interface {
	Sign(accountID string) (string, *jwtinfra.Claims, error)
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

type denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type service struct {
	signer   signer
	store    accountStore
	denylist denylist
	now      func() time.Time
}

type ServiceDeps struct {
	Signer   signer
	Store    accountStore
	Denylist denylist // optional
	Now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{signer: deps.Signer, store: deps.Store, denylist: deps.Denylist, now: now}
}

func (s *service) Issue(ctx context.Context, a *domain.Account) (*Session, error) {
	tok, claims, err := s.signer.Sign(a.AccountID)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Str("account_id", a.AccountID).Str("jti", claims.ID).Msg("session issued")
	return &Session{Token: tok, ExpiresAt: claims.ExpiresAt.Time, Account: a}, nil
}

func (s *service) Authenticate(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := s.signer.Verify(bearer)
	if err != nil {
		return nil, err
	}
	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("session revoked: %w", domain.ErrUnauthorized)
		}
	}
	a, err := s.store.Get(ctx, claims.AccountID())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session account gone: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return &Principal{Account: a, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *service) Revoke(ctx context.Context, p *Principal) error {
	if s.denylist == nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, p.TokenID, p.ExpiresAt.Sub(s.now())); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("account_id", p.Account.AccountID).Msg("session revoked")
	return nil
}
