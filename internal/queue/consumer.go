package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// ErrMalformed marks a body that can never be processed.  Such messages are
// dropped even when the consumer requeues failures.
var ErrMalformed = errors.New("malformed message")

// HandlerFunc processes one delivery body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer reads one durable queue and hands every message to Handle.  Run
// keeps reconnecting with backoff until ctx is cancelled.
//
// A failed message is dropped unless RetryDelay is set; then it is put back
// on the queue after the delay.
type Consumer struct {
	URL        string
	Queue      string
	Prefetch   int
	RetryDelay time.Duration
	Handle     HandlerFunc
	Log        *slog.Logger
}

// Run blocks until ctx is done.  It never returns a broker error; those are
// logged and followed by a reconnect.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.Log.With("consumer", c.Queue)
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("failed to dial broker", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		c.Log.Warn("set QoS failed", "queue", c.Queue, "err", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	requeue := c.RetryDelay > 0 && !errors.Is(err, ErrMalformed)
	c.Log.Error("handle message failed", "queue", c.Queue, "requeue", requeue, "err", err)
	if requeue {
		// Requeued even on shutdown so the broker keeps the message.
		sleep(ctx, c.RetryDelay)
	}
	_ = d.Nack(false, requeue)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// BookingLog appends one line per confirmed booking to dir/booking.log.
type BookingLog struct {
	dir string
	mu  sync.Mutex
}

func NewBookingLog(dir string) *BookingLog { return &BookingLog{dir: dir} }

// Handle is a HandlerFunc for the booking.confirmed queue.
func (b *BookingLog) Handle(_ context.Context, body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(b.dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatBooking(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatBooking(ev BookingConfirmedEvent) string {
	seats := make([]string, len(ev.Seats))
	for i, s := range ev.Seats {
		seats[i] = strconv.Itoa(s)
	}
	status := "recorded"
	if ev.Pending {
		status = "ledger_pending"
	}
	return fmt.Sprintf("[%s] Booking confirmed | ticket=%s | purchaser=%s | service=%s %q | date=%s | car=%s (%s) | %s->%s | total=%d %s | seats=[%s] | %s\n",
		ev.ConfirmedAt, ev.TicketID, ev.PurchaserID, ev.ServiceCode, ev.ServiceName, ev.ServiceDate,
		ev.CarID, ev.SeatClass, ev.From, ev.To, ev.Amount, ev.Currency, strings.Join(seats, ","), status)
}

// ReconcileHandler decodes ticket.reconcile messages and passes the ticket
// to retry.
func ReconcileHandler(retry func(context.Context, model.TicketRecord) error) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev TicketReconcileEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if ev.Ticket.ID == "" {
			return fmt.Errorf("%w: reconcile event without ticket id", ErrMalformed)
		}
		return retry(ctx, ev.Ticket)
	}
}
