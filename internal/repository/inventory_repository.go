package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// InventoryRepo is the MySQL Inventory.  A service is stored across the
// services, service_stops, cars and car_seats tables; cars.free_count is
// the redundant availability counter kept in step with car_seats by
// Allocate and repaired by Recount.
type InventoryRepo struct {
	db *sql.DB
}

// NewInventoryRepo returns an InventoryRepo bound to db.
func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type serviceRow struct {
	id   uint64
	code string
	name string
	date string
}

type carRow struct {
	pk    uint64
	car   model.Car
	index int
}

// GetService loads one service with its stops and cars.
func (r *InventoryRepo) GetService(ctx context.Context, serviceCode, serviceDate string) (*model.ScheduledService, error) {
	const q = `SELECT id, service_code, service_name, DATE_FORMAT(service_date, '%Y-%m-%d')
	           FROM services WHERE service_code = ? AND service_date = ?`
	var sr serviceRow
	err := r.db.QueryRowContext(ctx, q, serviceCode, serviceDate).Scan(&sr.id, &sr.code, &sr.name, &sr.date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.loadService(ctx, r.db, sr)
}

// ListByDate loads every service running on serviceDate, ordered by code.
func (r *InventoryRepo) ListByDate(ctx context.Context, serviceDate string) ([]model.ScheduledService, error) {
	const q = `SELECT id, service_code, service_name, DATE_FORMAT(service_date, '%Y-%m-%d')
	           FROM services WHERE service_date = ? ORDER BY service_code`
	rows, err := r.db.QueryContext(ctx, q, serviceDate)
	if err != nil {
		return nil, err
	}
	var heads []serviceRow
	for rows.Next() {
		var sr serviceRow
		if err := rows.Scan(&sr.id, &sr.code, &sr.name, &sr.date); err != nil {
			rows.Close()
			return nil, err
		}
		heads = append(heads, sr)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	out := make([]model.ScheduledService, 0, len(heads))
	for _, sr := range heads {
		s, err := r.loadService(ctx, r.db, sr)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *InventoryRepo) loadService(ctx context.Context, q querier, sr serviceRow) (*model.ScheduledService, error) {
	s := &model.ScheduledService{ServiceCode: sr.code, ServiceName: sr.name, ServiceDate: sr.date}

	const stopQ = `SELECT station, COALESCE(arrival_time, ''), COALESCE(departure_time, ''), halt_minutes, duration_minutes
	               FROM service_stops WHERE service_id = ? ORDER BY seq`
	rows, err := q.QueryContext(ctx, stopQ, sr.id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var st model.Stop
		if err := rows.Scan(&st.Station, &st.ArrivalTime, &st.DepartureTime, &st.HaltMinutes, &st.DurationMinutes); err != nil {
			rows.Close()
			return nil, err
		}
		s.Stops = append(s.Stops, st)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	const carQ = `SELECT id, car_id, seat_class, free_count FROM cars WHERE service_id = ? ORDER BY position`
	crows, err := q.QueryContext(ctx, carQ, sr.id)
	if err != nil {
		return nil, err
	}
	var cars []carRow
	for crows.Next() {
		var cr carRow
		var class string
		if err := crows.Scan(&cr.pk, &cr.car.CarID, &class, &cr.car.FreeCount); err != nil {
			crows.Close()
			return nil, err
		}
		cr.car.SeatClass = model.SeatClass(class)
		cr.index = len(cars)
		cars = append(cars, cr)
	}
	if err := crows.Close(); err != nil {
		return nil, err
	}
	if err := loadSeats(ctx, q, cars); err != nil {
		return nil, err
	}
	s.Cars = make([]model.Car, len(cars))
	for i, cr := range cars {
		s.Cars[i] = cr.car
	}
	return s, nil
}

// loadSeats fills the seats of every car in a single query.
func loadSeats(ctx context.Context, q querier, cars []carRow) error {
	if len(cars) == 0 {
		return nil
	}
	index := make(map[uint64]int, len(cars))
	args := make([]any, 0, len(cars))
	for i, cr := range cars {
		index[cr.pk] = i
		args = append(args, cr.pk)
	}
	query := `SELECT car_pk, seat_number, booked_by, booked_at FROM car_seats
	          WHERE car_pk IN (` + placeholders(len(cars)) + `) ORDER BY car_pk, seat_number`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pk uint64
		var seat model.SeatUnit
		var by sql.NullString
		var at sql.NullTime
		if err := rows.Scan(&pk, &seat.SeatNumber, &by, &at); err != nil {
			return err
		}
		if by.Valid {
			seat.BookedBy = by.String
		}
		if at.Valid {
			t := at.Time.UTC()
			seat.BookedAt = &t
		}
		idx, ok := index[pk]
		if !ok {
			continue
		}
		cars[idx].car.Seats = append(cars[idx].car.Seats, seat)
	}
	return rows.Err()
}

// GetCar returns one car with its seats.
func (r *InventoryRepo) GetCar(ctx context.Context, key model.CarKey) (*model.Car, error) {
	cr, err := findCar(ctx, r.db, key, false)
	if err != nil {
		return nil, err
	}
	cars := []carRow{cr}
	if err := loadSeats(ctx, r.db, cars); err != nil {
		return nil, err
	}
	return &cars[0].car, nil
}

// findCar resolves a CarKey to its row.  With lock set the row is taken
// with FOR UPDATE, which makes the enclosing transaction the only writer of
// that car until it ends.
func findCar(ctx context.Context, q querier, key model.CarKey, lock bool) (carRow, error) {
	query := `SELECT c.id, c.car_id, c.seat_class, c.free_count
	          FROM cars c
	          JOIN services s ON s.id = c.service_id
	          WHERE s.service_code = ? AND s.service_date = ? AND c.car_id = ?`
	if lock {
		query += " FOR UPDATE"
	}
	var cr carRow
	var class string
	err := q.QueryRowContext(ctx, query, key.ServiceCode, key.ServiceDate, key.CarID).
		Scan(&cr.pk, &cr.car.CarID, &class, &cr.car.FreeCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return carRow{}, ErrNotFound
		}
		return carRow{}, err
	}
	cr.car.SeatClass = model.SeatClass(class)
	return cr, nil
}

// Availability sums free_count across the cars of class.
func (r *InventoryRepo) Availability(ctx context.Context, serviceCode, serviceDate string, class model.SeatClass) (int, error) {
	const q = `SELECT s.id, COALESCE(SUM(c.free_count), 0)
	           FROM services s
	           LEFT JOIN cars c ON c.service_id = s.id AND c.seat_class = ?
	           WHERE s.service_code = ? AND s.service_date = ?
	           GROUP BY s.id`
	var id uint64
	var n int
	err := r.db.QueryRowContext(ctx, q, string(class), serviceCode, serviceDate).Scan(&id, &n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return n, nil
}

// Allocate books p.Seats in one transaction.  The car row is locked first,
// so concurrent allocations on the same car (from any server instance) run
// one after another.  The seat update is additionally conditional on
// booked_by IS NULL and must touch exactly len(p.Seats) rows; anything
// else rolls the whole request back.
func (r *InventoryRepo) Allocate(ctx context.Context, p model.AllocateParams) (model.Allocation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Allocation{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cr, err := findCar(ctx, tx, p.Key, true)
	if err != nil {
		return model.Allocation{}, err
	}

	args := make([]any, 0, len(p.Seats)+1)
	args = append(args, cr.pk)
	for _, s := range p.Seats {
		args = append(args, s)
	}
	checkQ := `SELECT seat_number, booked_by IS NOT NULL FROM car_seats
	           WHERE car_pk = ? AND seat_number IN (` + placeholders(len(p.Seats)) + `)`
	rows, err := tx.QueryContext(ctx, checkQ, args...)
	if err != nil {
		return model.Allocation{}, err
	}
	found := make(map[int]bool, len(p.Seats))
	var taken []int
	for rows.Next() {
		var n int
		var booked bool
		if err := rows.Scan(&n, &booked); err != nil {
			rows.Close()
			return model.Allocation{}, err
		}
		found[n] = true
		if booked {
			taken = append(taken, n)
		}
	}
	if err := rows.Close(); err != nil {
		return model.Allocation{}, err
	}
	for _, s := range p.Seats {
		if !found[s] {
			return model.Allocation{}, fmt.Errorf("seat %d in car %s: %w", s, p.Key.CarID, ErrNotFound)
		}
	}
	if len(taken) > 0 {
		return model.Allocation{}, NewSeatConflict(taken)
	}

	at := p.At.UTC()
	upArgs := make([]any, 0, len(p.Seats)+3)
	upArgs = append(upArgs, p.PurchaserID, at, cr.pk)
	upArgs = append(upArgs, args[1:]...)
	upQ := `UPDATE car_seats SET booked_by = ?, booked_at = ?
	        WHERE car_pk = ? AND seat_number IN (` + placeholders(len(p.Seats)) + `) AND booked_by IS NULL`
	res, err := tx.ExecContext(ctx, upQ, upArgs...)
	if err != nil {
		return model.Allocation{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Allocation{}, err
	}
	if int(n) != len(p.Seats) {
		// Only a writer that skipped the car row lock gets here.
		return model.Allocation{}, NewSeatConflict(p.Seats)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cars SET free_count = free_count - ? WHERE id = ?`, len(p.Seats), cr.pk); err != nil {
		return model.Allocation{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Allocation{}, err
	}
	committed = true
	p.At = at
	return model.NewAllocation(p, cr.car.SeatClass), nil
}

// Recount compares cars.free_count with the number of free seats and
// rewrites the counter when they differ.
func (r *InventoryRepo) Recount(ctx context.Context, key model.CarKey) (int, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	cr, err := findCar(ctx, tx, key, true)
	if err != nil {
		return 0, 0, err
	}
	var actual int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM car_seats WHERE car_pk = ? AND booked_by IS NULL`, cr.pk).Scan(&actual); err != nil {
		return 0, 0, err
	}
	if actual != cr.car.FreeCount {
		if _, err := tx.ExecContext(ctx, `UPDATE cars SET free_count = ? WHERE id = ?`, actual, cr.pk); err != nil {
			return 0, 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	committed = true
	return cr.car.FreeCount, actual, nil
}

// CreateService inserts a service with its stops, cars and seats.  The
// stored free_count of each car is derived from its seats.
func (r *InventoryRepo) CreateService(ctx context.Context, s *model.ScheduledService) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO services (service_code, service_name, service_date) VALUES (?, ?, ?)`,
		s.ServiceCode, s.ServiceName, s.ServiceDate)
	if err != nil {
		if isMySQLDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	sid, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i, st := range s.Stops {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_stops (service_id, seq, station, arrival_time, departure_time, halt_minutes, duration_minutes)
			 VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`,
			sid, i, st.Station, st.ArrivalTime, st.DepartureTime, st.HaltMinutes, st.DurationMinutes); err != nil {
			return err
		}
	}
	for i := range s.Cars {
		c := &s.Cars[i]
		cres, err := tx.ExecContext(ctx,
			`INSERT INTO cars (service_id, car_id, seat_class, position, free_count) VALUES (?, ?, ?, ?, ?)`,
			sid, c.CarID, string(c.SeatClass), i, c.CountFree())
		if err != nil {
			if isMySQLDuplicate(err) {
				return fmt.Errorf("car %s listed twice: %w", c.CarID, ErrDuplicate)
			}
			return err
		}
		cpk, err := cres.LastInsertId()
		if err != nil {
			return err
		}
		if err := insertSeatsTx(ctx, tx, uint64(cpk), c.Seats); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// insertSeatsTx inserts a car's seats in a single statement.
func insertSeatsTx(ctx context.Context, tx *sql.Tx, carPK uint64, seats []model.SeatUnit) error {
	if len(seats) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO car_seats (car_pk, seat_number, booked_by, booked_at) VALUES `)
	args := make([]any, 0, len(seats)*4)
	for i, s := range seats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?)")
		var by, at any
		if !s.IsFree() {
			by = s.BookedBy
			t := time.Now().UTC()
			if s.BookedAt != nil {
				t = s.BookedAt.UTC()
			}
			at = t
		}
		args = append(args, carPK, s.SeatNumber, by, at)
	}
	_, err := tx.ExecContext(ctx, b.String(), args...)
	if isMySQLDuplicate(err) {
		return fmt.Errorf("seat number repeated: %w", ErrDuplicate)
	}
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
