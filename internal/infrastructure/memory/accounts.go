package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/pkg/token"
)

// AccountStore is an in-process credential store for tests and local runs.
// The maps are guarded by mu; each record has its own mutex, so transitions
// on one account never wait on another.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[string]*row
	byEmail map[string]string // email -> account id
	now     func() time.Time
}

type row struct {
	mu  sync.Mutex
	acc domain.Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[string]*row),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// WithClock sets the clock used for updated_at stamps.
func (s *AccountStore) WithClock(now func() time.Time) *AccountStore {
	s.now = now
	return s
}

func (s *AccountStore) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[a.Email]; exists {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if _, exists := s.byID[a.AccountID]; exists {
		return fmt.Errorf("account id already used: %w", domain.ErrConflict)
	}
	s.byID[a.AccountID] = &row{acc: *clone(a)}
	s.byEmail[a.Email] = a.AccountID
	return nil
}

func (s *AccountStore) Get(_ context.Context, accountID string) (*domain.Account, error) {
	r, err := s.row(accountID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(&r.acc), nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *AccountStore) GetByVerificationDigest(_ context.Context, digest string) (*domain.Account, error) {
	a := s.find(func(a *domain.Account) bool {
		return a.Verification != nil && token.Equal(a.Verification.Digest, digest)
	})
	if a == nil {
		return nil, fmt.Errorf("verification token not found: %w", domain.ErrNotFound)
	}
	return a, nil
}

func (s *AccountStore) SetVerification(_ context.Context, accountID string, secret domain.ExpiringSecret) error {
	return s.update(accountID, func(a *domain.Account) error {
		a.Verification = &secret
		return nil
	})
}

// MarkEmailVerified keeps the digest so a repeated link resolves to AlreadyVerified.
func (s *AccountStore) MarkEmailVerified(_ context.Context, accountID, digest string, now time.Time) error {
	return s.update(accountID, func(a *domain.Account) error {
		if a.EmailVerified || !a.Verification.Valid(now) || !token.Equal(a.Verification.Digest, digest) {
			return domain.ErrInvalidOrExpiredToken
		}
		a.EmailVerified = true
		return nil
	})
}

func (s *AccountStore) RecordLoginFailure(_ context.Context, accountID string, now time.Time) (domain.FailureResult, error) {
	var res domain.FailureResult
	err := s.update(accountID, func(a *domain.Account) error {
		switch a.LockStateAt(now) {
		case domain.Locked:
			return &domain.LockedError{Until: *a.LockedUntil, Now: now}
		case domain.LockExpired:
			a.LockedUntil = nil
			a.LoginAttempts = 0
		}
		a.LoginAttempts++
		if a.LoginAttempts >= domain.MaxLoginAttempts {
			until := now.Add(domain.LockoutDuration)
			a.LockedUntil = &until
		}
		res = domain.FailureResult{Attempts: a.LoginAttempts, LockedUntil: a.LockedUntil}
		return nil
	})
	return res, err
}

func (s *AccountStore) ResetLoginAttempts(_ context.Context, accountID string) error {
	return s.update(accountID, func(a *domain.Account) error {
		a.LoginAttempts = 0
		return nil
	})
}

func (s *AccountStore) Unlock(_ context.Context, accountID string, now time.Time) error {
	return s.update(accountID, func(a *domain.Account) error {
		if a.LockStateAt(now) == domain.LockExpired {
			a.LockedUntil = nil
			a.LoginAttempts = 0
		}
		return nil
	})
}

func (s *AccountStore) SetChallenge(_ context.Context, accountID string, secret domain.ExpiringSecret) error {
	return s.update(accountID, func(a *domain.Account) error {
		a.Challenge = &secret
		return nil
	})
}

func (s *AccountStore) ConsumeChallenge(_ context.Context, accountID, digest string, now time.Time) error {
	return s.update(accountID, func(a *domain.Account) error {
		if !a.Challenge.Valid(now) || !token.Equal(a.Challenge.Digest, digest) {
			return domain.ErrInvalidOrExpiredToken
		}
		a.Challenge = nil
		return nil
	})
}

func (s *AccountStore) EnableTwoFactor(_ context.Context, accountID string, backupDigests []string) error {
	return s.update(accountID, func(a *domain.Account) error {
		a.TwoFactorEnabled = true
		a.BackupCodes = slices.Clone(backupDigests)
		return nil
	})
}

func (s *AccountStore) DisableTwoFactor(_ context.Context, accountID string) error {
	return s.update(accountID, func(a *domain.Account) error {
		a.TwoFactorEnabled = false
		a.Challenge = nil
		a.BackupCodes = nil
		return nil
	})
}

func (s *AccountStore) ConsumeBackupCode(_ context.Context, accountID, digest string) error {
	return s.update(accountID, func(a *domain.Account) error {
		if !a.TwoFactorEnabled {
			return fmt.Errorf("two-factor not enabled: %w", domain.ErrNotFound)
		}
		i := slices.IndexFunc(a.BackupCodes, func(c string) bool { return token.Equal(c, digest) })
		if i < 0 {
			return fmt.Errorf("backup code not found: %w", domain.ErrNotFound)
		}
		a.BackupCodes = slices.Delete(a.BackupCodes, i, i+1)
		return nil
	})
}

func (s *AccountStore) SetPasswordReset(_ context.Context, accountID string, secret domain.ExpiringSecret) error {
	return s.update(accountID, func(a *domain.Account) error {
		a.PasswordReset = &secret
		return nil
	})
}

func (s *AccountStore) ConsumePasswordReset(_ context.Context, digest, newHash string, now time.Time) (*domain.Account, error) {
	match := s.find(func(a *domain.Account) bool {
		return a.PasswordReset != nil && token.Equal(a.PasswordReset.Digest, digest)
	})
	if match == nil {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	var out *domain.Account
	err := s.update(match.AccountID, func(a *domain.Account) error {
		// re-checked under the row lock: a concurrent reset may have consumed it
		if !a.PasswordReset.Valid(now) || !token.Equal(a.PasswordReset.Digest, digest) {
			return domain.ErrInvalidOrExpiredToken
		}
		a.PasswordHash = newHash
		a.PasswordReset = nil
		out = clone(a)
		return nil
	})
	return out, err
}

func (s *AccountStore) row(accountID string) (*row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[accountID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return r, nil
}

// update applies fn to a copy of the record and commits it only when fn succeeds.
func (s *AccountStore) update(accountID string, fn func(a *domain.Account) error) error {
	r, err := s.row(accountID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := clone(&r.acc)
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = s.now().UTC()
	r.acc = *next
	return nil
}

func (s *AccountStore) find(match func(a *domain.Account) bool) *domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.byID {
		r.mu.Lock()
		ok := match(&r.acc)
		var a *domain.Account
		if ok {
			a = clone(&r.acc)
		}
		r.mu.Unlock()
		if ok {
			return a
		}
	}
	return nil
}

func clone(a *domain.Account) *domain.Account {
	c := *a
	c.Verification = cloneSecret(a.Verification)
	c.Challenge = cloneSecret(a.Challenge)
	c.PasswordReset = cloneSecret(a.PasswordReset)
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	c.BackupCodes = slices.Clone(a.BackupCodes)
	return &c
}

func cloneSecret(s *domain.ExpiringSecret) *domain.ExpiringSecret {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
