// Package memstore holds in-process implementations of the repository
// contracts.  They back the dev profile (STORE_DRIVER=memory) and the test
// suites; state is lost on restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// Inventory keeps services in memory.  Each car has its own mutex, which is
// the serialization point for allocations on that car; the map lock only
// guards the set of services.
type Inventory struct {
	mu       sync.RWMutex
	services map[string]*serviceEntry
}

type serviceEntry struct {
	head  model.ScheduledService // route only; Cars is nil
	order []string
	cars  map[string]*carSlot
}

type carSlot struct {
	mu  sync.Mutex
	car model.Car
}

// NewInventory returns an empty store.
func NewInventory() *Inventory {
	return &Inventory{services: make(map[string]*serviceEntry)}
}

func serviceKey(code, date string) string { return code + "|" + date }

// CreateService stores a deep copy of s; s itself is not modified.  The
// stored FreeCount of each car is derived from its seats.
func (m *Inventory) CreateService(_ context.Context, s *model.ScheduledService) error {
	e := &serviceEntry{
		head: model.ScheduledService{
			ServiceCode: s.ServiceCode,
			ServiceName: s.ServiceName,
			ServiceDate: s.ServiceDate,
			Stops:       append([]model.Stop(nil), s.Stops...),
		},
		cars: make(map[string]*carSlot, len(s.Cars)),
	}
	for i := range s.Cars {
		c := s.Cars[i].Clone()
		if _, dup := e.cars[c.CarID]; dup {
			return fmt.Errorf("car %s listed twice: %w", c.CarID, repository.ErrDuplicate)
		}
		seen := make(map[int]struct{}, len(c.Seats))
		for _, st := range c.Seats {
			if _, dup := seen[st.SeatNumber]; dup {
				return fmt.Errorf("seat %d repeated in car %s: %w", st.SeatNumber, c.CarID, repository.ErrDuplicate)
			}
			seen[st.SeatNumber] = struct{}{}
		}
		c.FreeCount = c.CountFree()
		e.cars[c.CarID] = &carSlot{car: *c}
		e.order = append(e.order, c.CarID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := serviceKey(s.ServiceCode, s.ServiceDate)
	if _, ok := m.services[k]; ok {
		return repository.ErrDuplicate
	}
	m.services[k] = e
	return nil
}

func (m *Inventory) entry(code, date string) (*serviceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.services[serviceKey(code, date)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (m *Inventory) slot(key model.CarKey) (*carSlot, error) {
	e, err := m.entry(key.ServiceCode, key.ServiceDate)
	if err != nil {
		return nil, err
	}
	s, ok := e.cars[key.CarID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (e *serviceEntry) snapshot() model.ScheduledService {
	s := e.head
	s.Stops = append([]model.Stop(nil), e.head.Stops...)
	s.Cars = make([]model.Car, 0, len(e.order))
	for _, id := range e.order {
		slot := e.cars[id]
		slot.mu.Lock()
		s.Cars = append(s.Cars, *slot.car.Clone())
		slot.mu.Unlock()
	}
	return s
}

// GetService returns a copy of the service.
func (m *Inventory) GetService(_ context.Context, code, date string) (*model.ScheduledService, error) {
	e, err := m.entry(code, date)
	if err != nil {
		return nil, err
	}
	s := e.snapshot()
	return &s, nil
}

// ListByDate returns copies of the services on date, ordered by code.
func (m *Inventory) ListByDate(_ context.Context, date string) ([]model.ScheduledService, error) {
	m.mu.RLock()
	entries := make([]*serviceEntry, 0)
	for _, e := range m.services {
		if e.head.ServiceDate == date {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].head.ServiceCode < entries[j].head.ServiceCode })
	out := make([]model.ScheduledService, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out, nil
}

// GetCar returns a copy of one car.
func (m *Inventory) GetCar(_ context.Context, key model.CarKey) (*model.Car, error) {
	s, err := m.slot(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.car.Clone(), nil
}

// Availability sums FreeCount over the cars of class.
func (m *Inventory) Availability(_ context.Context, code, date string, class model.SeatClass) (int, error) {
	e, err := m.entry(code, date)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range e.order {
		slot := e.cars[id]
		slot.mu.Lock()
		if slot.car.SeatClass == class {
			total += slot.car.FreeCount
		}
		slot.mu.Unlock()
	}
	return total, nil
}

// Allocate checks and books all seats under the car's mutex.
func (m *Inventory) Allocate(ctx context.Context, p model.AllocateParams) (model.Allocation, error) {
	s, err := m.slot(p.Key)
	if err != nil {
		return model.Allocation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.Allocation{}, err
	}

	idx := make([]int, len(p.Seats))
	var taken []int
	for i, n := range p.Seats {
		j := s.car.Seat(n)
		if j < 0 {
			return model.Allocation{}, fmt.Errorf("seat %d in car %s: %w", n, p.Key.CarID, repository.ErrNotFound)
		}
		if !s.car.Seats[j].IsFree() {
			taken = append(taken, n)
		}
		idx[i] = j
	}
	if len(taken) > 0 {
		return model.Allocation{}, repository.NewSeatConflict(taken)
	}
	at := p.At.UTC()
	for _, j := range idx {
		t := at
		s.car.Seats[j].BookedBy = p.PurchaserID
		s.car.Seats[j].BookedAt = &t
	}
	s.car.FreeCount -= len(idx)
	p.At = at
	return model.NewAllocation(p, s.car.SeatClass), nil
}

// Recount repairs FreeCount from the seat states.
func (m *Inventory) Recount(_ context.Context, key model.CarKey) (int, int, error) {
	s, err := m.slot(key)
	if err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, actual := s.car.FreeCount, s.car.CountFree()
	s.car.FreeCount = actual
	return stored, actual, nil
}

// corruptFreeCount overwrites the stored counter.  Tests use it to exercise
// Recount.
func (m *Inventory) corruptFreeCount(key model.CarKey, n int) {
	s, err := m.slot(key)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.car.FreeCount = n
	s.mu.Unlock()
}
