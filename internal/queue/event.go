// Package queue defines the messages exchanged over RabbitMQ together with
// their publisher and the background consumers.
package queue

import "github.com/iliyamo/train-seat-reservation/internal/model"

// Queue names.  Both are declared durable.
const (
	BookingConfirmedQueue = "booking.confirmed"
	TicketReconcileQueue  = "ticket.reconcile"
)

// BookingConfirmedEvent is published once seats are allocated and the
// receipt exists, durable or pending.  It carries enough for downstream
// consumers to log or notify without reading the stores.
type BookingConfirmedEvent struct {
	TicketID    string          `json:"ticket_id"`
	PurchaserID string          `json:"purchaser_id"`
	ServiceCode string          `json:"service_code"`
	ServiceName string          `json:"service_name"`
	ServiceDate string          `json:"service_date"`
	CarID       string          `json:"car_id"`
	SeatClass   model.SeatClass `json:"seat_class"`
	Seats       []int           `json:"seats"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      int64           `json:"amount"`
	Currency    string          `json:"currency"`
	Pending     bool            `json:"ledger_pending"`
	ConfirmedAt string          `json:"confirmed_at"`
}

// NewBookingConfirmedEvent flattens a ticket record into an event.
func NewBookingConfirmedEvent(t model.TicketRecord, pending bool) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		TicketID:    t.ID,
		PurchaserID: t.PurchaserID,
		ServiceCode: t.ServiceCode,
		ServiceName: t.ServiceName,
		ServiceDate: t.ServiceDate,
		CarID:       t.CarID,
		SeatClass:   t.SeatClass,
		Seats:       t.Seats,
		From:        t.From,
		To:          t.To,
		Amount:      t.PricePaid,
		Currency:    t.Currency,
		Pending:     pending,
		ConfirmedAt: t.PurchasedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// TicketReconcileEvent escalates a ticket record the ledger could not
// persist.  The seats behind it are booked; the record must eventually be
// written.
type TicketReconcileEvent struct {
	Ticket   model.TicketRecord `json:"ticket"`
	Reason   string             `json:"reason"`
	FailedAt string             `json:"failed_at"`
}
