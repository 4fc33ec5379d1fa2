package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/train-seat-reservation/internal/ledger"
	"github.com/iliyamo/train-seat-reservation/internal/metrics"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
	"github.com/iliyamo/train-seat-reservation/internal/repository/memstore"
)

const (
	code = "701"
	date = "2026-11-02"
)

var carKA = model.CarKey{ServiceCode: code, ServiceDate: date, CarID: "KA"}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	inv     *memstore.Inventory
	tickets *memstore.Tickets
	ledger  *ledger.Ledger
	coord   *Coordinator
	events  *eventSpy
}

type eventSpy struct {
	mu  sync.Mutex
	got []model.TicketRecord
	pen []bool
}

func (e *eventSpy) BookingConfirmed(_ context.Context, t model.TicketRecord, pending bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, t)
	e.pen = append(e.pen, pending)
	return nil
}

type fixtureOpts struct {
	wrap    func(*memstore.Inventory) repository.Inventory
	tickets repository.TicketStore
	timeout time.Duration
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	mem := memstore.NewInventory()
	svc := &model.ScheduledService{
		ServiceCode: code, ServiceName: "Subarna Express", ServiceDate: date,
		Cars: []model.Car{model.NewCar("KA", model.SeatClassSnigdha, 40)},
	}
	if err := mem.CreateService(context.Background(), svc); err != nil {
		t.Fatal(err)
	}
	var inv repository.Inventory = mem
	if o.wrap != nil {
		inv = o.wrap(mem)
	}
	memTickets := memstore.NewTickets()
	var tickets repository.TicketStore = memTickets
	if o.tickets != nil {
		tickets = o.tickets
	}
	if o.timeout == 0 {
		o.timeout = 5 * time.Second
	}
	l := ledger.New(tickets, ledger.Options{Attempts: 2, Backoff: time.Millisecond, Logger: quiet()})
	ev := &eventSpy{}
	c := NewCoordinator(inv, l, Options{
		Timeout: o.timeout,
		Events:  ev,
		Metrics: metrics.NewCollector(),
		Logger:  quiet(),
	})
	return &fixture{inv: mem, tickets: memTickets, ledger: l, coord: c, events: ev}
}

func request(who string, seats ...int) model.BookingRequest {
	return model.BookingRequest{PurchaserID: who, ServiceCode: code, ServiceDate: date, CarID: "KA", Seats: seats}
}

func TestConcurrentRequestsForOneSeat(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	const n = 100
	var wins, conflicts int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.coord.Allocate(context.Background(), request("p"+string(rune('A'+i%26)), 12))
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case isConflict(err):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
	car, _ := f.inv.GetCar(context.Background(), carKA)
	if car.FreeCount != 39 || car.CountFree() != 39 {
		t.Fatalf("free count %d, counted %d", car.FreeCount, car.CountFree())
	}
	if f.coord.locks.size() != 0 {
		t.Fatalf("%d lock entries leaked", f.coord.locks.size())
	}
}

func TestOverlappingRequestsAreAllOrNothing(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	if _, err := f.coord.Allocate(ctx, request("A", 3, 4)); err != nil {
		t.Fatalf("A: %v", err)
	}
	_, err := f.coord.Allocate(ctx, request("B", 4, 5))
	sc, ok := repository.IsSeatConflict(err)
	if !ok || len(sc.Seats) != 1 || sc.Seats[0] != 4 {
		t.Fatalf("B: got %v, want conflict on 4", err)
	}

	car, _ := f.inv.GetCar(ctx, carKA)
	if !car.Seats[car.Seat(5)].IsFree() {
		t.Fatal("seat 5 booked although B failed")
	}
	if car.FreeCount != 38 {
		t.Fatalf("free count = %d, want 38", car.FreeCount)
	}
}

func TestConcurrentOverlapNeverSplits(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := newFixture(t, fixtureOpts{})
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, seats := range [][]int{{3, 4}, {4, 5}} {
			wg.Add(1)
			go func(i int, seats []int) {
				defer wg.Done()
				_, errs[i] = f.coord.Allocate(context.Background(), request(string(rune('A'+i)), seats...))
			}(i, seats)
		}
		wg.Wait()
		if (errs[0] == nil) == (errs[1] == nil) {
			t.Fatalf("round %d: exactly one must win: %v / %v", round, errs[0], errs[1])
		}
		car, _ := f.inv.GetCar(context.Background(), carKA)
		if car.CountFree() != 38 || car.FreeCount != 38 {
			t.Fatalf("round %d: free %d/%d", round, car.FreeCount, car.CountFree())
		}
		owner := car.Seats[car.Seat(4)].BookedBy
		for _, n := range []int{3, 5} {
			if b := car.Seats[car.Seat(n)].BookedBy; b != "" && b != owner {
				t.Fatalf("round %d: seat %d owned by %q, seat 4 by %q", round, n, b, owner)
			}
		}
	}
}

// spyInventory fails the test if the coordinator touches it.
type spyInventory struct {
	repository.Inventory
	calls int32
}

func (s *spyInventory) Allocate(ctx context.Context, p model.AllocateParams) (model.Allocation, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.Inventory.Allocate(ctx, p)
}

func TestInvalidRequestsNeverReachStorage(t *testing.T) {
	spy := &spyInventory{}
	f := newFixture(t, fixtureOpts{wrap: func(m *memstore.Inventory) repository.Inventory {
		spy.Inventory = m
		return spy
	}})
	cases := []model.BookingRequest{
		request("A"),
		request("A", 1, 2, 3, 4, 5),
		request("A", 2, 2),
		request("A", 0),
		request("", 1),
	}
	for _, req := range cases {
		if _, err := f.coord.Allocate(context.Background(), req); !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("%v: got %v, want ErrInvalidRequest", req.Seats, err)
		}
	}
	if spy.calls != 0 {
		t.Fatalf("store touched %d times", spy.calls)
	}
}

func TestUnknownCarOrSeat(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	req := request("A", 1)
	req.CarID = "ZZ"
	if _, err := f.coord.Allocate(context.Background(), req); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown car: %v", err)
	}
	if _, err := f.coord.Allocate(context.Background(), request("A", 1, 41)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown seat: %v", err)
	}
	car, _ := f.inv.GetCar(context.Background(), carKA)
	if !car.Seats[0].IsFree() {
		t.Fatal("seat 1 booked by a failed request")
	}
}

func TestBookThenListByPurchaser(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	r, err := f.coord.Book(ctx, request("P", 1, 2), ledger.Purchase{ServiceName: "Subarna Express", From: "Dhaka", To: "Chattogram", Amount: 1650, Currency: "BDT"})
	if err != nil || r.Pending {
		t.Fatalf("Book: %+v, %v", r, err)
	}

	car, _ := f.inv.GetCar(ctx, carKA)
	for _, n := range []int{1, 2} {
		if s := car.Seats[car.Seat(n)]; s.BookedBy != "P" || s.BookedAt == nil {
			t.Fatalf("seat %d = %+v", n, s)
		}
	}
	if car.FreeCount != 38 {
		t.Fatalf("free count = %d", car.FreeCount)
	}

	list, err := f.ledger.ListByPurchaser(ctx, "P")
	if err != nil || len(list) != 1 {
		t.Fatalf("list %+v, %v", list, err)
	}
	got := list[0]
	if got.ID != r.Ticket.ID || len(got.Seats) != 2 || got.Seats[0] != 1 || got.Seats[1] != 2 || got.PricePaid != 1650 {
		t.Fatalf("ticket %+v", got)
	}
	if len(f.events.got) != 1 || f.events.pen[0] {
		t.Fatalf("events %+v", f.events.got)
	}
}

type brokenTickets struct{ *memstore.Tickets }

func (brokenTickets) Create(context.Context, *model.TicketRecord) error {
	return errors.New("disk full")
}

func TestLedgerFailureKeepsSeatsBooked(t *testing.T) {
	f := newFixture(t, fixtureOpts{tickets: brokenTickets{memstore.NewTickets()}})
	ctx := context.Background()
	r, err := f.coord.Book(ctx, request("P", 7), ledger.Purchase{})
	if err != nil {
		t.Fatalf("Book returned %v; a ledger failure must not fail the booking", err)
	}
	if !r.Pending {
		t.Fatal("receipt not marked pending")
	}
	car, _ := f.inv.GetCar(ctx, carKA)
	if car.Seats[car.Seat(7)].BookedBy != "P" {
		t.Fatal("seat released after ledger failure")
	}
	if p := f.ledger.Pending(); len(p) != 1 || p[0].ID != r.Ticket.ID {
		t.Fatalf("pending %+v", p)
	}
	if !f.events.pen[0] {
		t.Fatal("event not flagged pending")
	}
}

// stallingInventory blocks the first Allocate until its context ends.
type stallingInventory struct {
	repository.Inventory
	stalled int32
}

func (s *stallingInventory) Allocate(ctx context.Context, p model.AllocateParams) (model.Allocation, error) {
	if atomic.CompareAndSwapInt32(&s.stalled, 0, 1) {
		<-ctx.Done()
		return model.Allocation{}, ctx.Err()
	}
	return s.Inventory.Allocate(ctx, p)
}

func TestTimeoutReleasesCarLock(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		timeout: 100 * time.Millisecond,
		wrap: func(m *memstore.Inventory) repository.Inventory {
			return &stallingInventory{Inventory: m}
		},
	})

	_, err := f.coord.Allocate(context.Background(), request("A", 1))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if _, err := f.coord.Allocate(context.Background(), request("B", 1)); err != nil {
		t.Fatalf("lock not released after timeout: %v", err)
	}
}

func TestTimeoutWhileWaitingForLock(t *testing.T) {
	f := newFixture(t, fixtureOpts{timeout: 100 * time.Millisecond})
	release, err := f.coord.locks.acquire(context.Background(), carKA.String())
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.coord.Allocate(context.Background(), request("A", 1))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	release()
	if _, err := f.coord.Allocate(context.Background(), request("A", 1)); err != nil {
		t.Fatalf("after release: %v", err)
	}
	car, _ := f.inv.GetCar(context.Background(), carKA)
	if car.FreeCount != 39 {
		t.Fatalf("free count = %d", car.FreeCount)
	}
}

func TestRecount(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	if _, err := f.coord.Allocate(context.Background(), request("A", 1)); err != nil {
		t.Fatal(err)
	}
	stored, actual, err := f.coord.Recount(context.Background(), carKA)
	if err != nil || stored != 39 || actual != 39 {
		t.Fatalf("Recount = %d, %d, %v", stored, actual, err)
	}
}

func isConflict(err error) bool {
	_, ok := repository.IsSeatConflict(err)
	return ok
}
