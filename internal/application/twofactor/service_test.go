package twofactor

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/freightlane/auth-core/internal/application/notify"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockNotifier struct {
	mock.Mock
	codes []string
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func (m *mockNotifier) Email(ctx context.Context, to string, msg notify.Message) {
	m.Called(ctx, to, msg.Kind)
	if c := sixDigits.FindString(msg.Body); c != "" {
		m.codes = append(m.codes, c)
	}
}

func (m *mockNotifier) Security(ctx context.Context, ev domain.SecurityEvent) {
	m.Called(ctx, ev.Type, ev.AccountID)
}

func (m *mockNotifier) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.codes)
	return m.codes[len(m.codes)-1]
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- helpers ---

func setup(t *testing.T) (Service, *memory.AccountStore, *mockNotifier, *clock) {
	t.Helper()
	store := memory.NewAccountStore()
	require.NoError(t, store.Create(context.Background(), &domain.Account{
		AccountID: "acct-1",
		Email:     "alice@x.com",
		Profile:   domain.Profile{Kind: domain.KindShipper},
	}))
	n := &mockNotifier{}
	n.On("Email", mock.Anything, "alice@x.com", mock.Anything).Maybe()
	n.On("Security", mock.Anything, mock.Anything, mock.Anything).Maybe()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(ServiceDeps{Store: store, Notifier: n, Now: c.Now})
	return svc, store, n, c
}

func enable(t *testing.T, svc Service) []string {
	t.Helper()
	codes, err := svc.Enable(context.Background(), "acct-1")
	require.NoError(t, err)
	return codes
}

// --- challenge tests ---

func TestIssueChallenge_EmailsSixDigitCode(t *testing.T) {
	svc, store, n, c := setup(t)
	require.NoError(t, svc.IssueChallenge(context.Background(), "acct-1"))

	code := n.lastCode(t)
	assert.Len(t, code, 6)
	n.AssertCalled(t, "Email", mock.Anything, "alice@x.com", "two_factor_code")

	a, err := store.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	require.NotNil(t, a.Challenge)
	assert.Equal(t, c.Now().Add(10*time.Minute), a.Challenge.ExpiresAt)
	assert.NotEqual(t, code, a.Challenge.Digest, "only the digest is stored")
}

func TestVerifyChallenge_OnlyLatestCodeValid(t *testing.T) {
	svc, _, n, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.IssueChallenge(ctx, "acct-1"))
	first := n.lastCode(t)
	require.NoError(t, svc.IssueChallenge(ctx, "acct-1"))
	second := n.lastCode(t)

	if first != second {
		err := svc.VerifyChallenge(ctx, "acct-1", first)
		assert.True(t, errors.Is(err, domain.ErrInvalidOrExpiredToken))
	}
	assert.NoError(t, svc.VerifyChallenge(ctx, "acct-1", second))
}

func TestVerifyChallenge_ExpiresAfterTenMinutes(t *testing.T) {
	svc, _, n, c := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.IssueChallenge(ctx, "acct-1"))
	code := n.lastCode(t)

	c.Advance(10 * time.Minute)
	err := svc.VerifyChallenge(ctx, "acct-1", code)
	assert.True(t, errors.Is(err, domain.ErrInvalidOrExpiredToken))
}

func TestVerifyChallenge_ValidJustBeforeExpiry(t *testing.T) {
	svc, _, n, c := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.IssueChallenge(ctx, "acct-1"))

	c.Advance(10*time.Minute - time.Second)
	assert.NoError(t, svc.VerifyChallenge(ctx, "acct-1", n.lastCode(t)))
}

func TestVerifyChallenge_FailureMutatesNothing(t *testing.T) {
	svc, _, n, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.IssueChallenge(ctx, "acct-1"))
	code := n.lastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		assert.True(t, errors.Is(svc.VerifyChallenge(ctx, "acct-1", wrong), domain.ErrInvalidOrExpiredToken))
	}
	assert.NoError(t, svc.VerifyChallenge(ctx, "acct-1", code))
}

func TestVerifyChallenge_SingleUse(t *testing.T) {
	svc, _, n, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.IssueChallenge(ctx, "acct-1"))
	code := n.lastCode(t)

	require.NoError(t, svc.VerifyChallenge(ctx, "acct-1", code))
	assert.True(t, errors.Is(svc.VerifyChallenge(ctx, "acct-1", code), domain.ErrInvalidOrExpiredToken))
}

func TestVerifyChallenge_Malformed(t *testing.T) {
	svc, _, _, _ := setup(t)
	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		err := svc.VerifyChallenge(context.Background(), "acct-1", code)
		assert.True(t, errors.Is(err, domain.ErrInvalidOrExpiredToken), code)
	}
}

// --- enable / disable tests ---

func TestEnable_ReturnsTenDistinctCodes(t *testing.T) {
	svc, store, _, _ := setup(t)
	codes := enable(t, svc)

	require.Len(t, codes, 10)
	seen := map[string]bool{}
	for _, c := range codes {
		assert.Len(t, c, 10)
		assert.False(t, seen[c])
		seen[c] = true
	}
	a, _ := store.Get(context.Background(), "acct-1")
	assert.True(t, a.TwoFactorEnabled)
	assert.Len(t, a.BackupCodes, 10)
	assert.NotContains(t, a.BackupCodes, codes[0])
}

func TestDisable_ClearsStateAndPublishesEvent(t *testing.T) {
	svc, store, n, _ := setup(t)
	ctx := context.Background()
	enable(t, svc)
	require.NoError(t, svc.IssueChallenge(ctx, "acct-1"))

	require.NoError(t, svc.Disable(ctx, "acct-1"))

	a, _ := store.Get(ctx, "acct-1")
	assert.False(t, a.TwoFactorEnabled)
	assert.Nil(t, a.Challenge)
	assert.Empty(t, a.BackupCodes)
	n.AssertCalled(t, "Security", mock.Anything, domain.EventTwoFactorDisabled, "acct-1")
}

// --- backup code tests ---

func TestVerifyBackupCode_EachCodeOnce(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	codes := enable(t, svc)

	a, err := svc.VerifyBackupCode(ctx, "alice@x.com", codes[3])
	require.NoError(t, err)
	assert.Equal(t, "acct-1", a.AccountID)

	_, err = svc.VerifyBackupCode(ctx, "alice@x.com", codes[3])
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))

	_, err = svc.VerifyBackupCode(ctx, "alice@x.com", codes[4])
	assert.NoError(t, err)
}

func TestVerifyBackupCode_CaseAndSeparatorInsensitive(t *testing.T) {
	svc, _, _, _ := setup(t)
	codes := enable(t, svc)
	typed := strings.ToLower(codes[0][:5]) + "-" + strings.ToLower(codes[0][5:])

	_, err := svc.VerifyBackupCode(context.Background(), "alice@x.com", typed)
	assert.NoError(t, err)
}

func TestVerifyBackupCode_Rejections(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.VerifyBackupCode(ctx, "alice@x.com", "ABCDEFGHJK")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials), "two-factor not enabled")

	_, err = svc.VerifyBackupCode(ctx, "nobody@x.com", "ABCDEFGHJK")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials), "unknown email")

	enable(t, svc)
	_, err = svc.VerifyBackupCode(ctx, "alice@x.com", "")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials), "empty code")
}

func TestVerifyBackupCode_LockedAccountRefused(t *testing.T) {
	svc, store, _, c := setup(t)
	ctx := context.Background()
	codes := enable(t, svc)
	for i := 0; i < domain.MaxLoginAttempts; i++ {
		_, err := store.RecordLoginFailure(ctx, "acct-1", c.Now())
		require.NoError(t, err)
	}

	_, err := svc.VerifyBackupCode(ctx, "alice@x.com", codes[0])
	var locked *domain.LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 30, locked.MinutesRemaining())

	c.Advance(domain.LockoutDuration)
	_, err = svc.VerifyBackupCode(ctx, "alice@x.com", codes[0])
	require.NoError(t, err)

	a, _ := store.Get(ctx, "acct-1")
	assert.Nil(t, a.LockedUntil)
	assert.Zero(t, a.LoginAttempts)
}
