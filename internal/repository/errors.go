// Package repository defines the storage contracts of the booking core and
// their MySQL implementations.  Alternative backends live in the memstore
// and mongostore subpackages and return the same sentinel values, so
// higher layers such as the coordinator and the handlers can distinguish
// failure scenarios without knowing which store is configured.
package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a referenced service, car, seat, ticket or
// user does not exist.  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing key:
// an email that is already registered, or a ticket ID that was already
// persisted by an earlier attempt.
var ErrDuplicate = errors.New("duplicate")

// SeatConflictError reports the requested seats that were already booked
// when the allocation ran.  No seat of the request was booked.
type SeatConflictError struct {
	Seats []int
}

func (e *SeatConflictError) Error() string {
	parts := make([]string, len(e.Seats))
	for i, s := range e.Seats {
		parts[i] = fmt.Sprint(s)
	}
	return "seats already booked: " + strings.Join(parts, ",")
}

// NewSeatConflict returns a SeatConflictError with seats in ascending order.
func NewSeatConflict(seats []int) *SeatConflictError {
	out := append([]int(nil), seats...)
	sort.Ints(out)
	return &SeatConflictError{Seats: out}
}

// IsSeatConflict unwraps err and returns the conflict, if any.
func IsSeatConflict(err error) (*SeatConflictError, bool) {
	var sc *SeatConflictError
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}

func isMySQLDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
