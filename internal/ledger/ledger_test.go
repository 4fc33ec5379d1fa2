package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/train-seat-reservation/internal/metrics"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
	"github.com/iliyamo/train-seat-reservation/internal/repository/memstore"
)

// flakyStore fails the first `fail` Create calls.
type flakyStore struct {
	*memstore.Tickets
	mu    sync.Mutex
	fail  int
	calls int
}

func (f *flakyStore) Create(ctx context.Context, t *model.TicketRecord) error {
	f.mu.Lock()
	f.calls++
	failing := f.calls <= f.fail
	f.mu.Unlock()
	if failing {
		return errors.New("connection reset")
	}
	return f.Tickets.Create(ctx, t)
}

type recordingEscalator struct {
	got []model.TicketRecord
}

func (r *recordingEscalator) Escalate(_ context.Context, t model.TicketRecord, _ error) error {
	r.got = append(r.got, t)
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func allocation(who string, at time.Time, seats ...int) model.Allocation {
	return model.NewAllocation(model.AllocateParams{
		Key:         model.CarKey{ServiceCode: "701", ServiceDate: "2026-11-02", CarID: "KA"},
		Seats:       seats,
		PurchaserID: who,
		At:          at,
	}, model.SeatClassSnigdha)
}

func TestRecordRetriesThenSucceeds(t *testing.T) {
	store := &flakyStore{Tickets: memstore.NewTickets(), fail: 2}
	l := New(store, Options{Attempts: 3, Backoff: time.Millisecond, Logger: quiet()})

	rec, err := l.Record(context.Background(), allocation("u1", time.Now(), 1, 2), Purchase{Amount: 1650, Currency: "BDT"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("calls = %d", store.calls)
	}
	got, err := store.GetByID(context.Background(), rec.ID)
	if err != nil || got.PricePaid != 1650 || len(got.Seats) != 2 {
		t.Fatalf("stored %+v, %v", got, err)
	}
	if len(l.Pending()) != 0 {
		t.Fatal("record left pending")
	}
}

func TestRecordExhaustedGoesPending(t *testing.T) {
	store := &flakyStore{Tickets: memstore.NewTickets(), fail: 100}
	esc := &recordingEscalator{}
	m := metrics.NewCollector()
	l := New(store, Options{Attempts: 2, Backoff: time.Millisecond, Escalator: esc, Metrics: m, Logger: quiet()})

	rec, err := l.Record(context.Background(), allocation("u1", time.Now(), 5), Purchase{})
	if !errors.Is(err, ErrLedgerWrite) {
		t.Fatalf("got %v, want ErrLedgerWrite", err)
	}
	if rec.ID == "" {
		t.Fatal("pending record has no id")
	}
	if len(esc.got) != 1 || esc.got[0].ID != rec.ID {
		t.Fatalf("escalated %+v", esc.got)
	}
	if p := l.Pending(); len(p) != 1 || p[0].ID != rec.ID {
		t.Fatalf("pending %+v", p)
	}

	// Pending receipts are visible to their purchaser.
	list, err := l.ListByPurchaser(context.Background(), "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list %+v, %v", list, err)
	}
	if _, err := l.Get(context.Background(), rec.ID); err != nil {
		t.Fatalf("Get pending: %v", err)
	}

	store.mu.Lock()
	store.fail = 0
	store.mu.Unlock()
	written, remaining := l.Reconcile(context.Background())
	if written != 1 || remaining != 0 {
		t.Fatalf("Reconcile = %d, %d", written, remaining)
	}
	if _, err := store.GetByID(context.Background(), rec.ID); err != nil {
		t.Fatalf("not persisted: %v", err)
	}
}

func TestRetryIsIdempotent(t *testing.T) {
	store := memstore.NewTickets()
	l := New(store, Options{Logger: quiet()})
	rec := l.NewRecord(allocation("u1", time.Now(), 1), Purchase{})
	for i := 0; i < 3; i++ {
		if err := l.Retry(context.Background(), rec); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
	}
	list, _ := store.ListByPurchaser(context.Background(), "u1")
	if len(list) != 1 {
		t.Fatalf("%d copies stored", len(list))
	}
}

func TestListByPurchaserNewestFirst(t *testing.T) {
	store := memstore.NewTickets()
	l := New(store, Options{Logger: quiet()})
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	first, _ := l.Record(ctx, allocation("u1", base, 1, 2), Purchase{})
	second, _ := l.Record(ctx, allocation("u1", base.Add(time.Minute), 3), Purchase{})
	_, _ = l.Record(ctx, allocation("u2", base, 9), Purchase{})

	list, err := l.ListByPurchaser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("order %+v", list)
	}
	if _, err := l.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	l := New(memstore.NewTickets(), Options{Logger: quiet()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx, time.Millisecond); close(done) }()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
