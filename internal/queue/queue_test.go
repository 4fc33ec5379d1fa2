package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

func sampleTicket() model.TicketRecord {
	return model.TicketRecord{
		ID: "3b8e7c0e-1111-4c2e-9d51-000000000001", PurchaserID: "u1",
		ServiceCode: "701", ServiceName: "Subarna Express", ServiceDate: "2026-11-02",
		CarID: "KA", SeatClass: model.SeatClassSnigdha, Seats: []int{3, 4},
		From: "Dhaka", To: "Chattogram", PricePaid: 1650, Currency: "BDT",
		PurchasedAt: time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC),
	}
}

func TestBookingLogAppends(t *testing.T) {
	dir := t.TempDir()
	bl := NewBookingLog(dir)
	body, _ := json.Marshal(NewBookingConfirmedEvent(sampleTicket(), false))
	for i := 0; i < 2; i++ {
		if err := bl.Handle(context.Background(), body); err != nil {
			t.Fatal(err)
		}
	}
	raw, err := os.ReadFile(filepath.Join(dir, "booking.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	for _, want := range []string{"[2026-10-15T08:30:00Z]", "service=701", "seats=[3,4]", "total=1650 BDT", "recorded"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line %q missing %q", lines[0], want)
		}
	}
}

func TestBookingLogRejectsGarbage(t *testing.T) {
	if err := NewBookingLog(t.TempDir()).Handle(context.Background(), []byte("{")); err == nil {
		t.Fatal("want unmarshal error")
	}
}

func TestReconcileHandler(t *testing.T) {
	var got model.TicketRecord
	h := ReconcileHandler(func(_ context.Context, rec model.TicketRecord) error {
		got = rec
		return nil
	})
	body, _ := json.Marshal(TicketReconcileEvent{Ticket: sampleTicket(), Reason: "timeout"})
	if err := h(context.Background(), body); err != nil {
		t.Fatal(err)
	}
	if got.ID != sampleTicket().ID || len(got.Seats) != 2 {
		t.Fatalf("retried %+v", got)
	}

	body, _ = json.Marshal(TicketReconcileEvent{})
	if err := h(context.Background(), body); !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty ticket: %v", err)
	}

	boom := errors.New("boom")
	h = ReconcileHandler(func(context.Context, model.TicketRecord) error { return boom })
	body, _ = json.Marshal(TicketReconcileEvent{Ticket: sampleTicket()})
	if err := h(context.Background(), body); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Fatal("sleep ignored cancellation")
	}
}

// ackRecorder is an amqp.Acknowledger that remembers the last verdict.
type ackRecorder struct {
	acked, nacked, requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func TestDeliverVerdicts(t *testing.T) {
	ticket, _ := json.Marshal(TicketReconcileEvent{Ticket: sampleTicket()})
	failing := ReconcileHandler(func(context.Context, model.TicketRecord) error { return errors.New("store down") })
	ok := ReconcileHandler(func(context.Context, model.TicketRecord) error { return nil })

	cases := []struct {
		name         string
		delay        time.Duration
		handle       HandlerFunc
		body         []byte
		ack, requeue bool
	}{
		{"written", time.Millisecond, ok, ticket, true, false},
		{"failed retry is requeued", time.Millisecond, failing, ticket, false, true},
		{"malformed is dropped", time.Millisecond, failing, []byte("{"), false, false},
		{"no retry delay drops", 0, failing, ticket, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Consumer{Queue: TicketReconcileQueue, RetryDelay: tc.delay, Handle: tc.handle, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
			a := &ackRecorder{}
			c.deliver(context.Background(), amqp.Delivery{Acknowledger: a, DeliveryTag: 1, Body: tc.body})
			if a.acked != tc.ack || a.nacked == tc.ack || a.requeued != tc.requeue {
				t.Fatalf("acked=%v nacked=%v requeued=%v", a.acked, a.nacked, a.requeued)
			}
		})
	}
}

func TestDeliverRequeuesOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Consumer{
		Queue:      TicketReconcileQueue,
		RetryDelay: time.Hour,
		Handle:     func(context.Context, []byte) error { return errors.New("store down") },
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	a := &ackRecorder{}
	c.deliver(ctx, amqp.Delivery{Acknowledger: a, Body: []byte("{}")})
	if !a.nacked || !a.requeued {
		t.Fatalf("message not returned to the queue: %+v", a)
	}
}
