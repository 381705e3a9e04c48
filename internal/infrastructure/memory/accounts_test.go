package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *AccountStore) *domain.Account {
	t.Helper()
	a := &domain.Account{AccountID: "a1", Email: "alice@x.com", PasswordHash: "h"}
	require.NoError(t, s.Create(context.Background(), a))
	return a
}

func TestCreate_DuplicateEmail(t *testing.T) {
	s := NewAccountStore()
	seed(t, s)
	err := s.Create(context.Background(), &domain.Account{AccountID: "a2", Email: "alice@x.com"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestGetByEmail_CaseSensitive(t *testing.T) {
	s := NewAccountStore()
	seed(t, s)
	_, err := s.GetByEmail(context.Background(), "Alice@x.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := NewAccountStore()
	seed(t, s)
	a, err := s.Get(context.Background(), "a1")
	require.NoError(t, err)
	a.LoginAttempts = 99
	b, err := s.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.LoginAttempts)
}

func TestRecordLoginFailure_LocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	seed(t, s)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 1; i < domain.MaxLoginAttempts; i++ {
		res, err := s.RecordLoginFailure(ctx, "a1", now)
		require.NoError(t, err)
		assert.Equal(t, i, res.Attempts)
		assert.Nil(t, res.LockedUntil)
	}
	res, err := s.RecordLoginFailure(ctx, "a1", now)
	require.NoError(t, err)
	require.NotNil(t, res.LockedUntil)
	assert.Equal(t, now.Add(30*time.Minute), *res.LockedUntil)

	_, err = s.RecordLoginFailure(ctx, "a1", now.Add(time.Minute))
	var locked *domain.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 29, locked.MinutesRemaining())
}

func TestRecordLoginFailure_ConcurrentIsExact(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	seed(t, s)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	lockTransitions, lockedErrs := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.RecordLoginFailure(ctx, "a1", now)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domain.ErrAccountLocked) {
				lockedErrs++
				return
			}
			if res.Attempts == domain.MaxLoginAttempts {
				lockTransitions++
			}
		}()
	}
	wg.Wait()

	a, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxLoginAttempts, a.LoginAttempts)
	assert.Equal(t, 1, lockTransitions)
	assert.Equal(t, 20-domain.MaxLoginAttempts, lockedErrs)
}

func TestUnlock_OnlyWhenExpired(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	seed(t, s)
	now := time.Now()
	for i := 0; i < domain.MaxLoginAttempts; i++ {
		_, err := s.RecordLoginFailure(ctx, "a1", now)
		require.NoError(t, err)
	}

	require.NoError(t, s.Unlock(ctx, "a1", now.Add(time.Minute)))
	a, _ := s.Get(ctx, "a1")
	assert.NotNil(t, a.LockedUntil)

	require.NoError(t, s.Unlock(ctx, "a1", now.Add(domain.LockoutDuration)))
	a, _ = s.Get(ctx, "a1")
	assert.Nil(t, a.LockedUntil)
	assert.Equal(t, 0, a.LoginAttempts)
}

func TestConsumeBackupCode_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	seed(t, s)
	d := token.Digest("ABCDEFGHJK")
	require.NoError(t, s.EnableTwoFactor(ctx, "a1", []string{d, token.Digest("other")}))

	require.NoError(t, s.ConsumeBackupCode(ctx, "a1", d))
	err := s.ConsumeBackupCode(ctx, "a1", d)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	a, _ := s.Get(ctx, "a1")
	assert.Len(t, a.BackupCodes, 1)
}

func TestConsumeChallenge(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	seed(t, s)
	now := time.Now()
	require.NoError(t, s.SetChallenge(ctx, "a1", domain.ExpiringSecret{Digest: token.Digest("123456"), ExpiresAt: now.Add(10 * time.Minute)}))

	err := s.ConsumeChallenge(ctx, "a1", token.Digest("000000"), now)
	assert.True(t, errors.Is(err, domain.ErrInvalidOrExpiredToken))
	a, _ := s.Get(ctx, "a1")
	assert.NotNil(t, a.Challenge, "failed attempt must not clear the code")

	require.NoError(t, s.ConsumeChallenge(ctx, "a1", token.Digest("123456"), now))
	a, _ = s.Get(ctx, "a1")
	assert.Nil(t, a.Challenge)
}

func TestConsumePasswordReset_SingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	seed(t, s)
	now := time.Now()
	d := token.Digest("reset-token")
	require.NoError(t, s.SetPasswordReset(ctx, "a1", domain.ExpiringSecret{Digest: d, ExpiresAt: now.Add(time.Hour)}))

	a, err := s.ConsumePasswordReset(ctx, d, "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", a.PasswordHash)
	assert.Nil(t, a.PasswordReset)

	_, err = s.ConsumePasswordReset(ctx, d, "again", now)
	assert.True(t, errors.Is(err, domain.ErrInvalidOrExpiredToken))
}

func TestMarkEmailVerified(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	seed(t, s)
	now := time.Now()
	d := token.Digest("verify")
	require.NoError(t, s.SetVerification(ctx, "a1", domain.ExpiringSecret{Digest: d, ExpiresAt: now.Add(time.Hour)}))

	found, err := s.GetByVerificationDigest(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "a1", found.AccountID)

	require.NoError(t, s.MarkEmailVerified(ctx, "a1", d, now))
	err = s.MarkEmailVerified(ctx, "a1", d, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidOrExpiredToken))

	// the link stays resolvable so a repeated click can be recognised
	a, err := s.GetByVerificationDigest(ctx, d)
	require.NoError(t, err)
	assert.True(t, a.EmailVerified)
}

func TestTransitions_StampUpdatedAtFromClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2031, 3, 4, 5, 6, 7, 0, time.UTC)

	steps := map[string]func(s *AccountStore) error{
		"reset attempts": func(s *AccountStore) error { return s.ResetLoginAttempts(ctx, "a1") },
		"enable 2fa":     func(s *AccountStore) error { return s.EnableTwoFactor(ctx, "a1", []string{token.Digest("code")}) },
		"disable 2fa":    func(s *AccountStore) error { return s.DisableTwoFactor(ctx, "a1") },
		"set reset": func(s *AccountStore) error {
			return s.SetPasswordReset(ctx, "a1", domain.ExpiringSecret{Digest: "d", ExpiresAt: fixed.Add(time.Hour)})
		},
	}
	for name, step := range steps {
		t.Run(name, func(t *testing.T) {
			s := NewAccountStore().WithClock(func() time.Time { return fixed })
			seed(t, s)
			require.NoError(t, step(s))
			a, err := s.Get(ctx, "a1")
			require.NoError(t, err)
			assert.True(t, fixed.Equal(a.UpdatedAt))
		})
	}
}
