package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (r *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	r.exchange, r.key, r.msg = exchange, key, msg
	return r.err
}

func TestSendEmail_PublishesJob(t *testing.T) {
	ch := &recordingChannel{}
	m := NewMailer(ch, "notifications")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	require.NoError(t, m.SendEmail(ctx, "a@b.example", "Your code", "123456"))

	assert.Equal(t, "notifications", ch.exchange)
	assert.Equal(t, routingKeyEmail, ch.key)
	assert.Equal(t, "req-42", ch.msg.Headers["X-Request-ID"])
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var job emailJob
	require.NoError(t, json.Unmarshal(ch.msg.Body, &job))
	assert.Equal(t, emailJob{Type: "email", To: "a@b.example", Subject: "Your code", Body: "123456"}, job)
}

func TestSendEmail_WrapsPublishError(t *testing.T) {
	boom := errors.New("channel closed")
	m := NewMailer(&recordingChannel{err: boom}, "notifications")
	err := m.SendEmail(context.Background(), "a@b.example", "s", "b")
	assert.ErrorIs(t, err, boom)
}
