package repository

import (
	"context"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// Inventory is the single source of truth for seat state.  Reads return
// snapshots that callers may keep; Allocate is the only mutation of seat
// state and must be all-or-nothing with respect to concurrent calls on the
// same car.
type Inventory interface {
	// GetService returns the full service (route and cars) for a date.
	GetService(ctx context.Context, serviceCode, serviceDate string) (*model.ScheduledService, error)
	// ListByDate returns every service running on serviceDate.
	ListByDate(ctx context.Context, serviceDate string) ([]model.ScheduledService, error)
	// GetCar returns a snapshot of one car as of the read instant.
	GetCar(ctx context.Context, key model.CarKey) (*model.Car, error)
	// Availability sums FreeCount over the cars of class.  Advisory only.
	Availability(ctx context.Context, serviceCode, serviceDate string, class model.SeatClass) (int, error)
	// Allocate books every seat in p or none.  It returns ErrNotFound
	// when the car or a seat does not exist and *SeatConflictError when
	// any seat is already booked.
	Allocate(ctx context.Context, p model.AllocateParams) (model.Allocation, error)
	// Recount re-derives FreeCount from the seats, repairing the stored
	// value when it diverged.  It returns both values.
	Recount(ctx context.Context, key model.CarKey) (stored, actual int, err error)
	// CreateService stores a new service.  ErrDuplicate if it exists.
	CreateService(ctx context.Context, s *model.ScheduledService) error
}

// TicketStore persists ticket records.  Create must be idempotent on the
// record ID: a second Create with the same ID returns ErrDuplicate.
type TicketStore interface {
	Create(ctx context.Context, t *model.TicketRecord) error
	GetByID(ctx context.Context, id string) (*model.TicketRecord, error)
	// ListByPurchaser returns the purchaser's tickets, newest first.
	ListByPurchaser(ctx context.Context, purchaserID string) ([]model.TicketRecord, error)
}

// UserStore persists accounts.  Emails are unique (ErrDuplicate).
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}
