package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

var (
	_ repository.Inventory   = (*Inventory)(nil)
	_ repository.TicketStore = (*Tickets)(nil)
	_ repository.UserStore   = (*Users)(nil)
)

func seed(t *testing.T) (*Inventory, model.CarKey) {
	t.Helper()
	inv := NewInventory()
	svc := &model.ScheduledService{
		ServiceCode: "701",
		ServiceName: "Subarna Express",
		ServiceDate: "2026-11-02",
		Stops: []model.Stop{
			{Station: "Dhaka"},
			{Station: "Chattogram", DurationMinutes: 330},
		},
		Cars: []model.Car{
			model.NewCar("KA", model.SeatClassSnigdha, 10),
			model.NewCar("KHA", model.SeatClassSnigdha, 5),
			model.NewCar("GA", model.SeatClassShovan, 20),
		},
	}
	if err := inv.CreateService(context.Background(), svc); err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	return inv, model.CarKey{ServiceCode: "701", ServiceDate: "2026-11-02", CarID: "KA"}
}

func params(key model.CarKey, who string, seats ...int) model.AllocateParams {
	return model.AllocateParams{Key: key, Seats: seats, PurchaserID: who, At: time.Now()}
}

func TestCreateServiceDuplicate(t *testing.T) {
	inv, _ := seed(t)
	err := inv.CreateService(context.Background(), &model.ScheduledService{ServiceCode: "701", ServiceDate: "2026-11-02"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
}

func TestCreateServiceLeavesInputUntouched(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory()
	car := model.NewCar("KA", model.SeatClassSnigdha, 4)
	car.FreeCount = 99
	svc := &model.ScheduledService{ServiceCode: "702", ServiceDate: "2026-11-02", Cars: []model.Car{car}}
	if err := inv.CreateService(ctx, svc); err != nil {
		t.Fatal(err)
	}
	if svc.Cars[0].FreeCount != 99 {
		t.Fatalf("caller's free count changed to %d", svc.Cars[0].FreeCount)
	}
	got, err := inv.GetCar(ctx, model.CarKey{ServiceCode: "702", ServiceDate: "2026-11-02", CarID: "KA"})
	if err != nil || got.FreeCount != 4 {
		t.Fatalf("stored free count = %v, %v", got, err)
	}
}

func TestAllocateAllOrNothing(t *testing.T) {
	ctx := context.Background()
	inv, key := seed(t)

	if _, err := inv.Allocate(ctx, params(key, "a", 3, 4)); err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	_, err := inv.Allocate(ctx, params(key, "b", 4, 5))
	sc, ok := repository.IsSeatConflict(err)
	if !ok || len(sc.Seats) != 1 || sc.Seats[0] != 4 {
		t.Fatalf("got %v, want conflict on seat 4", err)
	}

	car, err := inv.GetCar(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !car.Seats[car.Seat(5)].IsFree() {
		t.Fatal("seat 5 booked by a failed request")
	}
	if car.Seats[car.Seat(4)].BookedBy != "a" {
		t.Fatalf("seat 4 owner = %q", car.Seats[car.Seat(4)].BookedBy)
	}
	if car.FreeCount != 8 || car.FreeCount != car.CountFree() {
		t.Fatalf("free count = %d, counted %d", car.FreeCount, car.CountFree())
	}
}

func TestAllocateMissingSeatBooksNothing(t *testing.T) {
	ctx := context.Background()
	inv, key := seed(t)
	_, err := inv.Allocate(ctx, params(key, "a", 1, 99))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	car, _ := inv.GetCar(ctx, key)
	if car.FreeCount != 10 || !car.Seats[0].IsFree() {
		t.Fatal("seat 1 booked despite missing seat 99")
	}

	_, err = inv.Allocate(ctx, params(model.CarKey{ServiceCode: "701", ServiceDate: "2026-11-02", CarID: "ZZ"}, "a", 1))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown car: got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	inv, key := seed(t)
	snap, _ := inv.GetCar(ctx, key)
	if _, err := inv.Allocate(ctx, params(key, "a", 1)); err != nil {
		t.Fatal(err)
	}
	if !snap.Seats[0].IsFree() || snap.FreeCount != 10 {
		t.Fatal("snapshot changed after allocation")
	}
	snap.Seats[1].BookedBy = "mallory"
	again, _ := inv.GetCar(ctx, key)
	if !again.Seats[1].IsFree() {
		t.Fatal("mutating a snapshot leaked into the store")
	}
}

func TestConcurrentSingleSeat(t *testing.T) {
	ctx := context.Background()
	inv, key := seed(t)
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := inv.Allocate(ctx, params(key, string(rune('a'+i%26)), 7)); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d allocations of seat 7 succeeded", wins)
	}
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()
	inv, key := seed(t)
	if _, err := inv.Allocate(ctx, params(key, "a", 1, 2)); err != nil {
		t.Fatal(err)
	}
	n, err := inv.Availability(ctx, "701", "2026-11-02", model.SeatClassSnigdha)
	if err != nil || n != 13 {
		t.Fatalf("snigdha = %d, %v; want 13", n, err)
	}
	n, _ = inv.Availability(ctx, "701", "2026-11-02", model.SeatClassACBerth)
	if n != 0 {
		t.Fatalf("absent class = %d", n)
	}
	if _, err := inv.Availability(ctx, "999", "2026-11-02", model.SeatClassSnigdha); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown service: %v", err)
	}
}

func TestRecount(t *testing.T) {
	ctx := context.Background()
	inv, key := seed(t)
	if _, err := inv.Allocate(ctx, params(key, "a", 1)); err != nil {
		t.Fatal(err)
	}
	inv.corruptFreeCount(key, 42)
	stored, actual, err := inv.Recount(ctx, key)
	if err != nil || stored != 42 || actual != 9 {
		t.Fatalf("Recount = %d, %d, %v", stored, actual, err)
	}
	car, _ := inv.GetCar(ctx, key)
	if car.FreeCount != 9 {
		t.Fatalf("free count after repair = %d", car.FreeCount)
	}
}

func TestTicketsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewTickets()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		rec := &model.TicketRecord{ID: id, PurchaserID: "u1", Seats: []int{i + 1}, PurchasedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Create(ctx, &model.TicketRecord{ID: "t1"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate id: %v", err)
	}
	list, _ := s.ListByPurchaser(ctx, "u1")
	if len(list) != 3 || list[0].ID != "t3" || list[2].ID != "t1" {
		t.Fatalf("order = %+v", list)
	}
	empty, _ := s.ListByPurchaser(ctx, "nobody")
	if empty == nil || len(empty) != 0 {
		t.Fatal("want empty non-nil slice")
	}
}

func TestUsersEmailUnique(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()
	if err := s.Create(ctx, &model.User{ID: "1", Email: "Rahim@Example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, &model.User{ID: "2", Email: "rahim@example.com "}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("got %v", err)
	}
	u, err := s.GetByEmail(ctx, "RAHIM@example.com")
	if err != nil || u.ID != "1" {
		t.Fatalf("GetByEmail = %+v, %v", u, err)
	}
}
