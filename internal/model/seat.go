package model

import (
	"strings"
	"time"
)

// SeatClass is the category of every seat in a car.  The values are the
// class codes printed on tickets and used by the fare table.
type SeatClass string

const (
	SeatClassACChair SeatClass = "AC_CHAIR"
	SeatClassSChair  SeatClass = "S_CHAIR"
	SeatClassShovan  SeatClass = "SHOVAN"
	SeatClassSnigdha SeatClass = "SNIGDHA"
	SeatClassACBerth SeatClass = "AC_B"
	SeatClassACSeat  SeatClass = "AC_S"
	SeatClassFBerth  SeatClass = "F_BERTH"
	SeatClassFSeat   SeatClass = "F_SEAT"
)

var seatClasses = map[SeatClass]struct{}{
	SeatClassACChair: {},
	SeatClassSChair:  {},
	SeatClassShovan:  {},
	SeatClassSnigdha: {},
	SeatClassACBerth: {},
	SeatClassACSeat:  {},
	SeatClassFBerth:  {},
	SeatClassFSeat:   {},
}

// ParseSeatClass normalises raw and reports whether it names a known class.
func ParseSeatClass(raw string) (SeatClass, bool) {
	c := SeatClass(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := seatClasses[c]
	return c, ok
}

// SeatUnit is one physical seat of a car on one service date.  A seat is
// either fully free (BookedBy empty, BookedAt nil) or fully booked (both
// set).
type SeatUnit struct {
	SeatNumber int        `json:"seat_number" bson:"seatNumber"` // positive, unique within the car
	BookedBy   string     `json:"-" bson:"bookedBy,omitempty"`   // purchaser id
	BookedAt   *time.Time `json:"-" bson:"bookedAt,omitempty"`   // allocation time
}

// IsFree reports whether nobody holds the seat.
func (s SeatUnit) IsFree() bool { return s.BookedBy == "" }
