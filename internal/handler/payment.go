package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-seat-reservation/internal/booking"
	"github.com/iliyamo/train-seat-reservation/internal/ledger"
	"github.com/iliyamo/train-seat-reservation/internal/metrics"
	"github.com/iliyamo/train-seat-reservation/internal/middleware"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/payment"
	"github.com/iliyamo/train-seat-reservation/internal/pricing"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// PaymentHandler runs the hosted checkout flow.  The booking is decided on
// the server: the intent stored at Init is what gets booked once the
// gateway confirms the payment, whatever the callback carries.
type PaymentHandler struct {
	Inv      repository.Inventory
	Users    repository.UserStore
	Coord    *booking.Coordinator
	Gateway  payment.Gateway
	Intents  payment.IntentStore
	Pricer   pricing.Pricer
	Metrics  *metrics.Collector
	Log      *slog.Logger
	Currency string
	TTL      time.Duration
	// PublicBaseURL is this API as the gateway reaches it; ClientBaseURL
	// is the web app the browser returns to.
	PublicBaseURL string
	ClientBaseURL string
}

// Init handles POST /v1/payments/init.  The form is parsed and checked
// against the current seat map before any money moves.
func (h *PaymentHandler) Init(c echo.Context) error {
	var form model.BookingForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	uid := middleware.UserID(c)
	req, err := model.ParseBookingForm(form, uid)
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	svc, err := h.Inv.GetService(ctx, req.ServiceCode, req.ServiceDate)
	if err != nil {
		return writeError(c, err)
	}
	car := svc.Car(req.CarID)
	if car == nil {
		return writeError(c, repository.ErrNotFound)
	}
	minutes, ok := svc.Leg(form.From, form.To)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "service does not run from " + form.From + " to " + form.To})
	}
	amount := h.Pricer.PerSeat(car.SeatClass, minutes) * int64(len(req.Seats))
	if amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat class not sold on this leg"})
	}
	if req.TotalAmount != 0 && req.TotalAmount != amount {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_mismatch", "amount": amount})
	}
	req.TotalAmount = amount

	// Advisory: the allocation at confirmation time is what counts.
	var taken []int
	for _, n := range req.Seats {
		i := car.Seat(n)
		if i < 0 {
			return writeError(c, fmt.Errorf("seat %d: %w", n, repository.ErrNotFound))
		}
		if !car.Seats[i].IsFree() {
			taken = append(taken, n)
		}
	}
	if len(taken) > 0 {
		return writeError(c, repository.NewSeatConflict(taken))
	}

	in := payment.Intent{
		TranID:      "tran_" + uuid.NewString(),
		Request:     req,
		ServiceName: svc.ServiceName,
		From:        form.From,
		To:          form.To,
		Amount:      amount,
		Currency:    h.Currency,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Intents.Put(ctx, in, h.TTL); err != nil {
		h.Log.Error("store payment intent failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment init failed"})
	}

	cust := payment.Customer{}
	if u, err := h.Users.GetByID(ctx, uid); err == nil {
		cust = payment.Customer{Name: u.Name, Email: u.Email, Phone: u.Phone, Address: u.Address}
	}
	gwURL, err := h.Gateway.Init(ctx, payment.InitRequest{
		TranID:      in.TranID,
		Amount:      amount,
		Currency:    h.Currency,
		ProductName: fmt.Sprintf("Train ticket %s %s", svc.ServiceCode, svc.ServiceDate),
		Customer:    cust,
		SuccessURL:  h.PublicBaseURL + "/v1/payments/success",
		FailURL:     h.PublicBaseURL + "/v1/payments/fail",
		CancelURL:   h.PublicBaseURL + "/v1/payments/cancel",
	})
	if err != nil {
		h.Log.Error("gateway init failed", "tran_id", in.TranID, "err", err)
		_, _ = h.Intents.Take(ctx, in.TranID)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"url": gwURL, "tran_id": in.TranID, "amount": amount, "currency": h.Currency})
}

// Success handles the gateway's POST /v1/payments/success callback.
func (h *PaymentHandler) Success(c echo.Context) error {
	ctx := c.Request().Context()
	tranID, valID := c.FormValue("tran_id"), c.FormValue("val_id")
	log := h.Log.With("tran_id", tranID)

	in, err := h.Intents.Take(ctx, tranID)
	if err != nil {
		log.Warn("success callback without intent", "err", err)
		return h.finish(c, "invalid", url.Values{"status": {"invalid"}})
	}

	v, err := h.Gateway.Validate(ctx, valID)
	if err != nil && !errors.Is(err, payment.ErrInvalidPayment) {
		// Not a verdict; keep the intent so the callback can be retried.
		_ = h.Intents.Put(ctx, in, h.TTL)
		log.Error("payment validation unavailable", "err", err)
		return h.finish(c, "error", url.Values{"status": {"error"}})
	}
	if err != nil || v.TranID != in.TranID || v.Amount+0.005 < float64(in.Amount) || (v.Currency != "" && v.Currency != in.Currency) {
		log.Warn("payment rejected", "err", err, "validated_tran_id", v.TranID, "amount", v.Amount)
		return h.finish(c, "fail", url.Values{"status": {"failure"}})
	}

	r, err := h.Coord.Book(ctx, in.Request, ledger.Purchase{
		ServiceName: in.ServiceName,
		From:        in.From,
		To:          in.To,
		Amount:      in.Amount,
		Currency:    in.Currency,
		PaymentRef:  valID,
	})
	if err != nil {
		if !bookingSettled(err) {
			// Paid but not allocated; the intent stays so the callback can be replayed.
			if perr := h.Intents.Put(context.WithoutCancel(ctx), in, h.TTL); perr != nil {
				log.Error("restore intent", "err", perr)
			}
			log.Error("paid booking interrupted", "purchaser_id", in.Request.PurchaserID, "val_id", valID, "err", err)
			return h.finish(c, "error", url.Values{"status": {"error"}, "tran_id": {tranID}})
		}
		status := "error"
		if _, ok := repository.IsSeatConflict(err); ok {
			status = "conflict"
		}
		log.Error("paid booking failed", "refund_required", true, "purchaser_id", in.Request.PurchaserID,
			"amount", in.Amount, "currency", in.Currency, "val_id", valID, "err", err)
		if h.Metrics != nil {
			h.Metrics.Bookings.WithLabelValues(metrics.OutcomeRefund).Inc()
		}
		return h.finish(c, "success", url.Values{"status": {status}, "tran_id": {tranID}})
	}
	q := url.Values{"status": {"success"}, "ticket": {r.Ticket.ID}}
	if r.Pending {
		q.Set("pending", "1")
	}
	return h.finish(c, "success", q)
}

// Fail handles POST /v1/payments/fail.
func (h *PaymentHandler) Fail(c echo.Context) error {
	_, _ = h.Intents.Take(c.Request().Context(), c.FormValue("tran_id"))
	return h.finish(c, "fail", url.Values{"status": {"failure"}})
}

// Cancel handles POST /v1/payments/cancel.
func (h *PaymentHandler) Cancel(c echo.Context) error {
	_, _ = h.Intents.Take(c.Request().Context(), c.FormValue("tran_id"))
	return h.finish(c, "cancel", url.Values{"status": {"cancelled"}})
}

// bookingSettled reports whether a Book error is a final answer for the
// intent rather than a transient failure worth retrying.
func bookingSettled(err error) bool {
	if _, ok := repository.IsSeatConflict(err); ok {
		return true
	}
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, model.ErrInvalidRequest)
}

func (h *PaymentHandler) finish(c echo.Context, callback string, q url.Values) error {
	if h.Metrics != nil {
		h.Metrics.PaymentCallbacks.WithLabelValues(callback).Inc()
	}
	return c.Redirect(http.StatusSeeOther, h.ClientBaseURL+"/payment?"+q.Encode())
}

