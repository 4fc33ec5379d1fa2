// Package payment talks to the card payment gateway and keeps the payment
// intents that link a gateway transaction to the booking it pays for.
package payment

import (
	"context"
	"errors"
)

// ErrInvalidPayment means the gateway did not confirm the transaction or
// confirmed different terms than the intent.
var ErrInvalidPayment = errors.New("payment not validated")

// Customer details shown on the gateway's checkout page.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// InitRequest opens a checkout session.
type InitRequest struct {
	TranID      string
	Amount      int64
	Currency    string
	ProductName string
	Customer    Customer
	SuccessURL  string
	FailURL     string
	CancelURL   string
}

// Validation is the gateway's verdict on a completed transaction.
type Validation struct {
	TranID   string
	ValID    string
	Amount   float64
	Currency string
	Status   string
}

// Gateway is a hosted-checkout payment provider.
type Gateway interface {
	// Init returns the URL the customer is sent to for payment.
	Init(ctx context.Context, req InitRequest) (string, error)
	// Validate asks the provider whether valID is a settled payment.
	Validate(ctx context.Context, valID string) (Validation, error)
}
