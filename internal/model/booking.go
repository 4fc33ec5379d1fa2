package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxSeatsPerBooking caps a single purchase to discourage bulk buying.
const MaxSeatsPerBooking = 4

// ErrInvalidRequest marks a malformed booking request.  It is detected
// before any storage access and is never retried.
var ErrInvalidRequest = errors.New("invalid booking request")

// BookingRequest is a purchaser's request for specific seats of one car.
// It is transient; only the resulting TicketRecord is persisted.
type BookingRequest struct {
	PurchaserID string `json:"purchaser_id"`
	ServiceCode string `json:"service_code"`
	ServiceDate string `json:"service_date"`
	CarID       string `json:"car_id"`
	Seats       []int  `json:"seats"`
	TotalAmount int64  `json:"total_amount"`
}

// Key returns the car the request targets.
func (r BookingRequest) Key() CarKey {
	return CarKey{ServiceCode: r.ServiceCode, ServiceDate: r.ServiceDate, CarID: r.CarID}
}

// Validate checks the request shape: identities present, 1..4 seats, all
// positive and distinct, non-negative amount.
func (r BookingRequest) Validate() error {
	if strings.TrimSpace(r.PurchaserID) == "" {
		return fmt.Errorf("%w: purchaser is required", ErrInvalidRequest)
	}
	if r.ServiceCode == "" || r.ServiceDate == "" || r.CarID == "" {
		return fmt.Errorf("%w: service, date and car are required", ErrInvalidRequest)
	}
	if n := len(r.Seats); n < 1 || n > MaxSeatsPerBooking {
		return fmt.Errorf("%w: between 1 and %d seats per booking, got %d", ErrInvalidRequest, MaxSeatsPerBooking, n)
	}
	seen := make(map[int]struct{}, len(r.Seats))
	for _, s := range r.Seats {
		if s <= 0 {
			return fmt.Errorf("%w: seat number %d is not positive", ErrInvalidRequest, s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: seat %d requested twice", ErrInvalidRequest, s)
		}
		seen[s] = struct{}{}
	}
	if r.TotalAmount < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidRequest)
	}
	return nil
}

// ParseSeatNumbers converts client supplied seat identifiers into numbers.
// Anything that is not a plain positive integer is rejected.
func ParseSeatNumbers(raw []string) ([]int, error) {
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: seat %q is not a seat number", ErrInvalidRequest, s)
		}
		out = append(out, n)
	}
	return out, nil
}

// BookingForm is the client's purchase form as it arrives over HTTP.  Seat
// identifiers come in as strings (the seat map renders them as labels).
type BookingForm struct {
	ServiceCode string   `json:"service_code"`
	ServiceDate string   `json:"service_date"`
	CarID       string   `json:"car_id"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Seats       []string `json:"seats"`
	TotalAmount int64    `json:"total_amount"`
}

// ParseBookingForm is the strict boundary between client input and the
// booking core: it normalises the date, parses seat numbers and validates
// the resulting request for purchaser.
func ParseBookingForm(f BookingForm, purchaser string) (BookingRequest, error) {
	date, err := ParseServiceDate(f.ServiceDate)
	if err != nil {
		return BookingRequest{}, err
	}
	seats, err := ParseSeatNumbers(f.Seats)
	if err != nil {
		return BookingRequest{}, err
	}
	req := BookingRequest{
		PurchaserID: purchaser,
		ServiceCode: strings.TrimSpace(f.ServiceCode),
		ServiceDate: date,
		CarID:       strings.TrimSpace(f.CarID),
		Seats:       seats,
		TotalAmount: f.TotalAmount,
	}
	if err := req.Validate(); err != nil {
		return BookingRequest{}, err
	}
	return req, nil
}
