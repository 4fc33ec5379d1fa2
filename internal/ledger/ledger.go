// Package ledger persists ticket records for confirmed allocations.  A
// write that keeps failing never loses the receipt: the record is parked
// in a pending set, escalated, and retried until it lands.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/train-seat-reservation/internal/metrics"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// ErrLedgerWrite means the ticket could not be persisted after all
// attempts.  The seats remain booked and the record is pending.
var ErrLedgerWrite = errors.New("ledger write failed")

// Purchase carries what the allocation does not know about the sale.
type Purchase struct {
	ServiceName string
	From        string
	To          string
	Amount      int64
	Currency    string
	PaymentRef  string
}

// Escalator is notified about records that exhausted their attempts.
type Escalator interface {
	Escalate(ctx context.Context, t model.TicketRecord, cause error) error
}

type Options struct {
	Attempts  int
	Backoff   time.Duration
	Escalator Escalator
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

type Ledger struct {
	store    repository.TicketStore
	esc      Escalator
	m        *metrics.Collector
	log      *slog.Logger
	attempts int
	backoff  time.Duration
	newID    func() string

	mu      sync.Mutex
	pending map[string]model.TicketRecord
}

func New(store repository.TicketStore, opts Options) *Ledger {
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{
		store:    store,
		esc:      opts.Escalator,
		m:        opts.Metrics,
		log:      opts.Logger.With("component", "ledger"),
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		newID:    uuid.NewString,
		pending:  make(map[string]model.TicketRecord),
	}
}

// NewRecord builds the ticket for an allocation.  The ID is fixed here so
// that every later write of the record is the same write.
func (l *Ledger) NewRecord(a model.Allocation, p Purchase) model.TicketRecord {
	return model.TicketRecord{
		ID:          l.newID(),
		PurchaserID: a.PurchaserID,
		ServiceCode: a.ServiceCode,
		ServiceName: p.ServiceName,
		ServiceDate: a.ServiceDate,
		CarID:       a.CarID,
		SeatClass:   a.SeatClass,
		Seats:       append([]int(nil), a.Seats...),
		From:        p.From,
		To:          p.To,
		PricePaid:   p.Amount,
		Currency:    p.Currency,
		PaymentRef:  p.PaymentRef,
		PurchasedAt: a.AllocatedAt.UTC(),
	}
}

// Record writes the ticket for a confirmed allocation.  On ErrLedgerWrite
// the returned record is still valid and is held as pending.
func (l *Ledger) Record(ctx context.Context, a model.Allocation, p Purchase) (model.TicketRecord, error) {
	rec := l.NewRecord(a, p)
	// The seats are already booked; a caller going away must not abandon
	// the write.
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	wait := l.backoff
	for i := 0; i < l.attempts; i++ {
		if i > 0 {
			time.Sleep(wait)
			wait *= 2
		}
		lastErr = l.write(ctx, rec)
		if lastErr == nil {
			return rec, nil
		}
		l.log.Warn("ticket write failed", "ticket_id", rec.ID, "attempt", i+1, "err", lastErr)
	}

	l.park(rec)
	l.log.Error("ticket parked as pending", "ticket_id", rec.ID, "purchaser_id", rec.PurchaserID,
		"service", rec.ServiceCode, "date", rec.ServiceDate, "car", rec.CarID, "seats", rec.Seats, "err", lastErr)
	if l.esc != nil {
		if err := l.esc.Escalate(ctx, rec, lastErr); err != nil {
			l.log.Error("escalation failed; relying on periodic reconcile", "ticket_id", rec.ID, "err", err)
		}
	}
	return rec, fmt.Errorf("%w: %v", ErrLedgerWrite, lastErr)
}

func (l *Ledger) write(ctx context.Context, rec model.TicketRecord) error {
	err := l.store.Create(ctx, &rec)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err != nil && l.m != nil {
		l.m.LedgerWriteErrors.Inc()
	}
	return err
}

func (l *Ledger) park(rec model.TicketRecord) {
	l.mu.Lock()
	l.pending[rec.ID] = rec
	n := len(l.pending)
	l.mu.Unlock()
	if l.m != nil {
		l.m.LedgerPending.Set(float64(n))
	}
}

func (l *Ledger) settle(id string) {
	l.mu.Lock()
	delete(l.pending, id)
	n := len(l.pending)
	l.mu.Unlock()
	if l.m != nil {
		l.m.LedgerPending.Set(float64(n))
	}
}

// Retry makes one write attempt for rec.  It is the handler of the
// reconcile queue as well as the body of Reconcile.  A failed attempt
// leaves rec pending in this process.
func (l *Ledger) Retry(ctx context.Context, rec model.TicketRecord) error {
	if err := l.write(ctx, rec); err != nil {
		l.park(rec)
		return err
	}
	l.settle(rec.ID)
	return nil
}

// Reconcile retries every pending record once and reports how many were
// written and how many are still pending.
func (l *Ledger) Reconcile(ctx context.Context) (written, remaining int) {
	for _, rec := range l.Pending() {
		if ctx.Err() != nil {
			break
		}
		if err := l.Retry(ctx, rec); err != nil {
			l.log.Warn("reconcile attempt failed", "ticket_id", rec.ID, "err", err)
			continue
		}
		written++
		l.log.Info("pending ticket persisted", "ticket_id", rec.ID)
	}
	return written, len(l.Pending())
}

// Run reconciles every interval until ctx is done.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.pendingCount(); n > 0 {
				l.Reconcile(ctx)
			}
		}
	}
}

func (l *Ledger) pendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Pending returns the parked records, oldest first.
func (l *Ledger) Pending() []model.TicketRecord {
	l.mu.Lock()
	out := make([]model.TicketRecord, 0, len(l.pending))
	for _, r := range l.pending {
		out = append(out, r)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListByPurchaser returns the purchaser's tickets newest first, including
// records that are still pending in this process.
func (l *Ledger) ListByPurchaser(ctx context.Context, purchaserID string) ([]model.TicketRecord, error) {
	stored, err := l.store.ListByPurchaser(ctx, purchaserID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(stored))
	for _, t := range stored {
		seen[t.ID] = struct{}{}
	}
	merged := false
	for _, t := range l.Pending() {
		if _, ok := seen[t.ID]; ok || t.PurchaserID != purchaserID {
			continue
		}
		stored = append(stored, t)
		merged = true
	}
	if merged {
		sort.SliceStable(stored, func(i, j int) bool {
			if !stored[i].PurchasedAt.Equal(stored[j].PurchasedAt) {
				return stored[i].PurchasedAt.After(stored[j].PurchasedAt)
			}
			return stored[i].ID < stored[j].ID
		})
	}
	return stored, nil
}

// Get returns one ticket, falling back to the pending set.
func (l *Ledger) Get(ctx context.Context, id string) (*model.TicketRecord, error) {
	t, err := l.store.GetByID(ctx, id)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.pending[id]; ok {
		return &rec, nil
	}
	return nil, repository.ErrNotFound
}
