package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
)

const routingKeyEmail = "email.send"

// Publisher is the subset of *amqp.Channel the mailer needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Mailer hands outgoing mail to a notification worker through a topic exchange.
type Mailer struct {
	ch       Publisher
	exchange string
}

func NewMailer(ch Publisher, exchange string) *Mailer {
	return &Mailer{ch: ch, exchange: exchange}
}

type emailJob struct {
	Type    string `json:"type"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m *Mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(emailJob{Type: "email", To: to, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	headers := make(amqp.Table)
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		headers["X-Request-ID"] = reqID
	}

	err = m.ch.PublishWithContext(ctx, m.exchange, routingKeyEmail, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish email job: %w", err)
	}
	return nil
}

// Dial connects to the broker, opens a channel and declares the durable topic
// exchange mail jobs are routed through.
func Dial(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Locale: "en_US",
		Dial:   amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}
