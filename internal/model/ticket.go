package model

import "time"

// TicketRecord is the durable receipt of a completed purchase.  It is
// written once by the ledger after the seats were allocated and never
// updated afterwards.  ID is a UUID chosen before the first write attempt,
// PricePaid is the agreed total in Currency, PaymentRef is the gateway's
// validation id and PurchasedAt is the allocation time.
type TicketRecord struct {
	ID          string    `json:"id" bson:"_id"`
	PurchaserID string    `json:"purchaser_id" bson:"purchaserId"`
	ServiceCode string    `json:"service_code" bson:"serviceCode"`
	ServiceName string    `json:"service_name" bson:"serviceName"`
	ServiceDate string    `json:"service_date" bson:"serviceDate"`
	CarID       string    `json:"car_id" bson:"carId"`
	SeatClass   SeatClass `json:"seat_class" bson:"seatClass"`
	Seats       []int     `json:"seats" bson:"seats"`
	From        string    `json:"from" bson:"from"`
	To          string    `json:"to" bson:"to"`
	PricePaid   int64     `json:"price_paid" bson:"pricePaid"`
	Currency    string    `json:"currency" bson:"currency"`
	PaymentRef  string    `json:"payment_ref,omitempty" bson:"paymentRef,omitempty"`
	PurchasedAt time.Time `json:"purchased_at" bson:"purchasedAt"`
}
