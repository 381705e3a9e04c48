package smtp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/freightlane/auth-core/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestCompose_Headers(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := string(compose("noreply@x.example", "a@b.example", "Verify\r\nBcc: evil@x", "hello", at))

	assert.Contains(t, msg, "From: noreply@x.example\r\n")
	assert.Contains(t, msg, "To: a@b.example\r\n")
	assert.Contains(t, msg, "Subject: Verify Bcc: evil@x\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nhello"))
}

func TestSendEmail_CanceledContext(t *testing.T) {
	m := NewMailer(&config.Config{SMTPHost: "127.0.0.1", SMTPPort: "1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendEmail(ctx, "a@b.example", "s", "b"), context.Canceled)
}
