// Package booking turns validated booking requests into allocated seats and
// ticket records.  The Coordinator is the only writer of seat state.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/iliyamo/train-seat-reservation/internal/ledger"
	"github.com/iliyamo/train-seat-reservation/internal/metrics"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// ErrTimeout is returned when an allocation did not finish within the
// configured timeout.  Nothing was booked.
var ErrTimeout = errors.New("allocation timed out")

// Events receives confirmed bookings.  Publishing is best effort.
type Events interface {
	BookingConfirmed(ctx context.Context, t model.TicketRecord, pending bool) error
}

type Options struct {
	Timeout time.Duration
	Events  Events
	Metrics *metrics.Collector
	Logger  *slog.Logger
	Now     func() time.Time
}

type Coordinator struct {
	inv     repository.Inventory
	ledger  *ledger.Ledger
	events  Events
	m       *metrics.Collector
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
	locks   *carLocks
}

func NewCoordinator(inv repository.Inventory, l *ledger.Ledger, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		inv:     inv,
		ledger:  l,
		events:  opts.Events,
		m:       opts.Metrics,
		log:     opts.Logger.With("component", "coordinator"),
		timeout: opts.Timeout,
		now:     opts.Now,
		locks:   newCarLocks(),
	}
}

// Receipt is the result of a completed purchase.  Pending is set when the
// seats are booked but the ticket is not yet durable.
type Receipt struct {
	Allocation model.Allocation   `json:"allocation"`
	Ticket     model.TicketRecord `json:"ticket"`
	Pending    bool               `json:"ledger_pending"`
}

// Allocate books every seat of req or none.  Invalid requests fail before
// the store is touched.  Allocations on the same car are serialized; the
// whole call, lock wait included, is bounded by the configured timeout.
func (c *Coordinator) Allocate(ctx context.Context, req model.BookingRequest) (model.Allocation, error) {
	if err := req.Validate(); err != nil {
		c.count(metrics.OutcomeInvalid)
		return model.Allocation{}, err
	}
	start := time.Now()
	defer func() {
		if c.m != nil {
			c.m.AllocateDuration.Observe(time.Since(start).Seconds())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := req.Key()
	release, err := c.locks.acquire(ctx, key.String())
	if err != nil {
		return model.Allocation{}, c.fail(key, c.timeoutErr(err))
	}
	defer release()

	seats := append([]int(nil), req.Seats...)
	sort.Ints(seats)
	a, err := c.inv.Allocate(ctx, model.AllocateParams{
		Key:         key,
		Seats:       seats,
		PurchaserID: req.PurchaserID,
		At:          c.now().UTC(),
	})
	if err != nil {
		return model.Allocation{}, c.fail(key, c.timeoutErr(err))
	}
	c.count(metrics.OutcomeBooked)
	if c.m != nil {
		c.m.SeatsBooked.Add(float64(len(a.Seats)))
	}
	c.log.Info("seats allocated", "car", key.String(), "seats", a.Seats, "purchaser_id", a.PurchaserID)
	return a, nil
}

// Book allocates and records the ticket.  A ledger failure does not undo
// the allocation: the receipt comes back with Pending set and a nil error.
func (c *Coordinator) Book(ctx context.Context, req model.BookingRequest, p ledger.Purchase) (Receipt, error) {
	a, err := c.Allocate(ctx, req)
	if err != nil {
		return Receipt{}, err
	}
	if p.Amount == 0 {
		p.Amount = req.TotalAmount
	}
	rec, err := c.ledger.Record(ctx, a, p)
	r := Receipt{Allocation: a, Ticket: rec}
	if err != nil {
		r.Pending = true
		c.count(metrics.OutcomePending)
		c.log.Error("booking confirmed with pending ticket", "ticket_id", rec.ID, "err", err)
	}
	if c.events != nil {
		if err := c.events.BookingConfirmed(context.WithoutCancel(ctx), rec, r.Pending); err != nil {
			c.log.Warn("booking event not published", "ticket_id", rec.ID, "err", err)
		}
	}
	return r, nil
}

func (c *Coordinator) timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	return err
}

func (c *Coordinator) fail(key model.CarKey, err error) error {
	switch {
	case errors.Is(err, ErrTimeout):
		c.count(metrics.OutcomeTimeout)
	case errors.Is(err, repository.ErrNotFound):
		c.count(metrics.OutcomeNotFound)
	default:
		if _, ok := repository.IsSeatConflict(err); ok {
			c.count(metrics.OutcomeConflict)
		} else {
			c.count(metrics.OutcomeError)
		}
	}
	c.log.Info("allocation failed", "car", key.String(), "err", err)
	return err
}

func (c *Coordinator) count(outcome string) {
	if c.m != nil {
		c.m.Bookings.WithLabelValues(outcome).Inc()
	}
}

// Recount repairs a car's free counter and reports both values.
func (c *Coordinator) Recount(ctx context.Context, key model.CarKey) (stored, actual int, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	release, err := c.locks.acquire(ctx, key.String())
	if err != nil {
		return 0, 0, c.timeoutErr(err)
	}
	defer release()
	stored, actual, err = c.inv.Recount(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	if stored != actual {
		if c.m != nil {
			c.m.FreeCountRepairs.Inc()
		}
		c.log.Warn("free count repaired", "car", key.String(), "stored", stored, "actual", actual)
	}
	return stored, actual, nil
}
