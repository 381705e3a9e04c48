package notify

import (
	"context"
	"testing"
	"time"

	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Publish(ctx context.Context, ev domain.SecurityEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func TestEmail_SendsRenderedMessage(t *testing.T) {
	mailer := &mockMailer{}
	msg := ChallengeMessage("123456")
	mailer.On("SendEmail", mock.Anything, "a@b.example", msg.Subject, msg.Body).Return(nil)

	d := NewDispatcher(mailer, nil)
	d.Email(context.Background(), "a@b.example", msg)
	require.NoError(t, d.Wait(context.Background()))
	mailer.AssertExpectations(t)
}

func TestEmail_FailureIsSwallowedAndCounted(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	before := testutil.ToFloat64(metrics.NotificationFailures.WithLabelValues("email"))

	d := NewDispatcher(mailer, nil)
	d.Email(context.Background(), "a@b.example", VerificationMessage("https://x/verify"))
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationFailures.WithLabelValues("email")))
}

func TestSecurity_NilPublisherIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewDispatcher(&mockMailer{}, nil).Security(context.Background(), domain.SecurityEvent{Type: domain.EventPasswordReset})
	})
}

func TestSecurity_Publishes(t *testing.T) {
	events := &mockEvents{}
	ev := domain.SecurityEvent{Type: domain.EventTwoFactorDisabled, AccountID: "a1"}
	events.On("Publish", mock.Anything, ev).Return(assert.AnError)

	d := NewDispatcher(&mockMailer{}, events)
	d.Security(context.Background(), ev)
	require.NoError(t, d.Wait(context.Background()))
	events.AssertExpectations(t)
}

func TestEmail_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	mailer := &mockMailer{}
	mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).Return(nil)
	d := NewDispatcher(mailer, nil)

	returned := make(chan struct{})
	go func() {
		d.Email(context.Background(), "a@b.example", ChallengeMessage("123456"))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Email blocked on the mailer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, d.Wait(context.Background()))
	mailer.AssertExpectations(t)
}

func TestEmail_OutlivesRequestCancellation(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("SendEmail", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	}), mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d := NewDispatcher(mailer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Email(ctx, "a@b.example", ResetMessage("https://app/reset-password?token=t"))
	require.NoError(t, d.Wait(context.Background()))
	mailer.AssertExpectations(t)
}

func TestMessages_CarryLinksAndCodes(t *testing.T) {
	assert.Contains(t, VerificationMessage("https://api/auth/verify-email?token=abc").Body, "token=abc")
	assert.Contains(t, ResetMessage("https://app/reset-password?token=xyz").Body, "token=xyz")
	assert.Contains(t, ChallengeMessage("042042").Body, "042042")
}
