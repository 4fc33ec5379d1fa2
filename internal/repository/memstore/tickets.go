package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// Tickets is an in-memory TicketStore.
type Tickets struct {
	mu   sync.RWMutex
	byID map[string]model.TicketRecord
}

func NewTickets() *Tickets {
	return &Tickets{byID: make(map[string]model.TicketRecord)}
}

func cloneTicket(t model.TicketRecord) model.TicketRecord {
	t.Seats = append([]int(nil), t.Seats...)
	return t
}

// Create stores t unless its ID is already present.
func (s *Tickets) Create(_ context.Context, t *model.TicketRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[t.ID]; ok {
		return repository.ErrDuplicate
	}
	s.byID[t.ID] = cloneTicket(*t)
	return nil
}

func (s *Tickets) GetByID(_ context.Context, id string) (*model.TicketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTicket(t)
	return &out, nil
}

// ListByPurchaser returns newest first, ties broken by ID.
func (s *Tickets) ListByPurchaser(_ context.Context, purchaserID string) ([]model.TicketRecord, error) {
	s.mu.RLock()
	out := make([]model.TicketRecord, 0)
	for _, t := range s.byID {
		if t.PurchaserID == purchaserID {
			out = append(out, cloneTicket(t))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.After(out[j].PurchasedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
