package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// TicketRepo stores ticket records in the tickets table.  Seat numbers are
// kept as a comma separated list; a ticket never holds more than a handful
// of seats and the list is only ever read back whole.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, purchaser_id, service_code, service_name, DATE_FORMAT(service_date, '%Y-%m-%d'),
	car_id, seat_class, seats, from_station, to_station, price_paid, currency, payment_ref, purchased_at`

// Create inserts t.  A record whose ID already exists yields ErrDuplicate,
// which the ledger treats as "already persisted".
func (r *TicketRepo) Create(ctx context.Context, t *model.TicketRecord) error {
	const q = `INSERT INTO tickets (id, purchaser_id, service_code, service_name, service_date, car_id, seat_class,
	                                seats, from_station, to_station, price_paid, currency, payment_ref, purchased_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)`
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.PurchaserID, t.ServiceCode, t.ServiceName, t.ServiceDate, t.CarID, string(t.SeatClass),
		joinSeats(t.Seats), t.From, t.To, t.PricePaid, t.Currency, t.PaymentRef, t.PurchasedAt.UTC())
	if isMySQLDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID returns one ticket or ErrNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (*model.TicketRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListByPurchaser returns the purchaser's tickets, newest first.  An empty
// slice (not nil) is returned when there are none.
func (r *TicketRepo) ListByPurchaser(ctx context.Context, purchaserID string) ([]model.TicketRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE purchaser_id = ? ORDER BY purchased_at DESC, id`, purchaserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TicketRecord, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(s scanner) (*model.TicketRecord, error) {
	var t model.TicketRecord
	var class, seats string
	var ref sql.NullString
	if err := s.Scan(&t.ID, &t.PurchaserID, &t.ServiceCode, &t.ServiceName, &t.ServiceDate,
		&t.CarID, &class, &seats, &t.From, &t.To, &t.PricePaid, &t.Currency, &ref, &t.PurchasedAt); err != nil {
		return nil, err
	}
	t.SeatClass = model.SeatClass(class)
	t.Seats = splitSeats(seats)
	t.PaymentRef = ref.String
	t.PurchasedAt = t.PurchasedAt.UTC()
	return &t, nil
}

func joinSeats(seats []int) string {
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}

func splitSeats(s string) []int {
	out := make([]int, 0, 4)
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
