package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/freightlane/auth-core/internal/domain"
	"github.com/freightlane/auth-core/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Mailer delivers a plain-text email. Implemented by the SMTP and AMQP transports.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// EventPublisher ships security events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.SecurityEvent) error
}

// sendTimeout bounds one delivery once it is detached from the request.
const sendTimeout = 30 * time.Second

// Dispatcher sends notifications on behalf of the services. Delivery runs in
// the background so a response never waits on, or reveals, a send. Failures
// are logged and counted but never returned.
type Dispatcher struct {
	mailer  Mailer
	events  EventPublisher
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wires the transports. events may be nil when no security
// topic is configured.
func NewDispatcher(mailer Mailer, events EventPublisher) *Dispatcher {
	return &Dispatcher{mailer: mailer, events: events, timeout: sendTimeout}
}

func (d *Dispatcher) Email(ctx context.Context, to string, m Message) {
	d.background(ctx, func(ctx context.Context) {
		if err := d.mailer.SendEmail(ctx, to, m.Subject, m.Body); err != nil {
			metrics.NotificationFailures.WithLabelValues("email").Inc()
			log.Ctx(ctx).Error().Err(err).Str("kind", m.Kind).Msg("email delivery failed")
		}
	})
}

func (d *Dispatcher) Security(ctx context.Context, ev domain.SecurityEvent) {
	if d.events == nil {
		return
	}
	d.background(ctx, func(ctx context.Context) {
		if err := d.events.Publish(ctx, ev); err != nil {
			metrics.NotificationFailures.WithLabelValues("security_event").Inc()
			log.Ctx(ctx).Error().Err(err).
				Str("event", ev.Type).
				Str("account_id", ev.AccountID).
				Msg("security event publish failed")
		}
	})
}

// Wait blocks until every pending delivery has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// background runs fn outside the request lifetime. The request context keeps
// its values (logger, request id) but loses its cancellation.
func (d *Dispatcher) background(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		fn(ctx)
	}()
}

// Message is a rendered email.
type Message struct {
	Kind    string
	Subject string
	Body    string
}

func VerificationMessage(link string) Message {
	return Message{
		Kind:    "verify_email",
		Subject: "Confirm your FreightLane email address",
		Body: fmt.Sprintf("Welcome to FreightLane.\n\nConfirm your email address by opening this link:\n%s\n\n"+
			"The link expires in 24 hours.\n", link),
	}
}

func ResetMessage(link string) Message {
	return Message{
		Kind:    "password_reset",
		Subject: "Reset your FreightLane password",
		Body: fmt.Sprintf("We received a request to reset your password.\n\nSet a new password here:\n%s\n\n"+
			"The link expires in 1 hour. If you did not ask for this, ignore this email.\n", link),
	}
}

func ChallengeMessage(code string) Message {
	return Message{
		Kind:    "two_factor_code",
		Subject: "Your FreightLane sign-in code",
		Body:    fmt.Sprintf("Your sign-in code is %s.\n\nIt expires in 10 minutes.\n", code),
	}
}
