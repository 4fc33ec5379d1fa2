package model

import "time"

// Car (bogie) groups the seats of a single class on one scheduled service.
// FreeCount is stored redundantly for fast availability queries and must
// always equal CountFree(); it can be re-derived at any time.
type Car struct {
	CarID     string     `json:"car_id" bson:"carId"`
	SeatClass SeatClass  `json:"seat_class" bson:"seatClass"`
	Seats     []SeatUnit `json:"seats" bson:"seats"`
	FreeCount int        `json:"free_count" bson:"freeCount"`
}

// CarKey addresses one car of one service on one date.  ServiceDate is a
// calendar date in YYYY-MM-DD form.
type CarKey struct {
	ServiceCode string
	ServiceDate string
	CarID       string
}

func (k CarKey) String() string { return k.ServiceCode + "|" + k.ServiceDate + "|" + k.CarID }

// CountFree recomputes the number of free seats from the seat states.
func (c *Car) CountFree() int {
	n := 0
	for _, s := range c.Seats {
		if s.IsFree() {
			n++
		}
	}
	return n
}

// Seat returns the index of seat number n within c.Seats, or -1.
func (c *Car) Seat(n int) int {
	for i := range c.Seats {
		if c.Seats[i].SeatNumber == n {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers never share seat slices with a store.
func (c *Car) Clone() *Car {
	out := *c
	out.Seats = make([]SeatUnit, len(c.Seats))
	for i, s := range c.Seats {
		if s.BookedAt != nil {
			t := *s.BookedAt
			s.BookedAt = &t
		}
		out.Seats[i] = s
	}
	return &out
}

// NewCar builds a car with seats 1..n, all free.
func NewCar(carID string, class SeatClass, n int) Car {
	seats := make([]SeatUnit, n)
	for i := range seats {
		seats[i] = SeatUnit{SeatNumber: i + 1}
	}
	return Car{CarID: carID, SeatClass: class, Seats: seats, FreeCount: n}
}

// AllocateParams is what the coordinator hands to the store: a validated
// request for a set of seats in one car.
type AllocateParams struct {
	Key         CarKey
	Seats       []int
	PurchaserID string
	At          time.Time
}

// Allocation is the confirmed outcome of a successful allocation.
type Allocation struct {
	Key         CarKey    `json:"-"`
	ServiceCode string    `json:"service_code"`
	ServiceDate string    `json:"service_date"`
	CarID       string    `json:"car_id"`
	SeatClass   SeatClass `json:"seat_class"`
	Seats       []int     `json:"seats"`
	PurchaserID string    `json:"purchaser_id"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// NewAllocation fills the flattened key fields from p.
func NewAllocation(p AllocateParams, class SeatClass) Allocation {
	seats := make([]int, len(p.Seats))
	copy(seats, p.Seats)
	return Allocation{
		Key:         p.Key,
		ServiceCode: p.Key.ServiceCode,
		ServiceDate: p.Key.ServiceDate,
		CarID:       p.Key.CarID,
		SeatClass:   class,
		Seats:       seats,
		PurchaserID: p.PurchaserID,
		AllocatedAt: p.At,
	}
}
