package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/train-seat-reservation/internal/database"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

var (
	_ repository.Inventory   = (*Inventory)(nil)
	_ repository.TicketStore = (*Tickets)(nil)
	_ repository.UserStore   = (*Users)(nil)
)

// TestAllocateAgainstMongo runs only when MONGO_TEST_URI points at a
// disposable server.
func TestAllocateAgainstMongo(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	db, err := database.OpenMongo(uri, "trains_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	defer db.Drop(context.Background())
	if err := database.EnsureMongoIndexes(ctx, db); err != nil {
		t.Fatal(err)
	}

	inv := NewInventory(db)
	svc := &model.ScheduledService{
		ServiceCode: "701", ServiceDate: "2026-11-02",
		Cars: []model.Car{model.NewCar("KA", model.SeatClassSnigdha, 6)},
	}
	if err := inv.CreateService(ctx, svc); err != nil {
		t.Fatal(err)
	}
	if err := inv.CreateService(ctx, svc); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("second create: %v", err)
	}

	key := model.CarKey{ServiceCode: "701", ServiceDate: "2026-11-02", CarID: "KA"}
	if _, err := inv.Allocate(ctx, model.AllocateParams{Key: key, Seats: []int{3, 4}, PurchaserID: "a", At: time.Now()}); err != nil {
		t.Fatal(err)
	}
	_, err = inv.Allocate(ctx, model.AllocateParams{Key: key, Seats: []int{4, 5}, PurchaserID: "b", At: time.Now()})
	if sc, ok := repository.IsSeatConflict(err); !ok || sc.Seats[0] != 4 {
		t.Fatalf("got %v, want conflict on 4", err)
	}
	_, err = inv.Allocate(ctx, model.AllocateParams{Key: key, Seats: []int{1, 60}, PurchaserID: "b", At: time.Now()})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing seat: %v", err)
	}

	car, err := inv.GetCar(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if car.FreeCount != 4 || car.CountFree() != 4 {
		t.Fatalf("free count %d, counted %d", car.FreeCount, car.CountFree())
	}
	if !car.Seats[car.Seat(5)].IsFree() || !car.Seats[car.Seat(1)].IsFree() {
		t.Fatal("failed requests booked seats")
	}
}
