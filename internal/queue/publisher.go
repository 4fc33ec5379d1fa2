package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// Publisher sends events to RabbitMQ.  Each publish dials its own
// connection, which keeps the publisher stateless; traffic is one message
// per purchase.  Errors are logged and returned so callers can decide to
// ignore them.
type Publisher struct {
	url string
	log *slog.Logger
}

func NewPublisher(url string, log *slog.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// Publish marshals v and sends it persistently to the named queue,
// declaring the queue first.
func (p *Publisher) Publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		p.log.Error("rabbitmq: marshal event failed", "queue", queueName, "err", err)
		return err
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("rabbitmq: dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		p.log.Warn("rabbitmq: queue declare failed", "queue", queueName, "err", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.log.Warn("rabbitmq: publish failed", "queue", queueName, "err", err)
		return err
	}
	return nil
}

// BookingConfirmed publishes to booking.confirmed.
func (p *Publisher) BookingConfirmed(ctx context.Context, t model.TicketRecord, pending bool) error {
	return p.Publish(ctx, BookingConfirmedQueue, NewBookingConfirmedEvent(t, pending))
}

// Escalate hands an unpersisted ticket to the reconcile queue.
func (p *Publisher) Escalate(ctx context.Context, t model.TicketRecord, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return p.Publish(ctx, TicketReconcileQueue, TicketReconcileEvent{
		Ticket:   t,
		Reason:   reason,
		FailedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
