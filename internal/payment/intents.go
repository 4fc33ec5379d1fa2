package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/train-seat-reservation/internal/model"
)

// ErrIntentNotFound is returned for unknown, expired or already consumed
// transactions.
var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is what the server remembers between starting a checkout and the
// gateway's callback.  The booking is taken from here, never from the
// callback parameters.
type Intent struct {
	TranID      string               `json:"tran_id"`
	Request     model.BookingRequest `json:"request"`
	ServiceName string               `json:"service_name"`
	From        string               `json:"from"`
	To          string               `json:"to"`
	Amount      int64                `json:"amount"`
	Currency    string               `json:"currency"`
	CreatedAt   time.Time            `json:"created_at"`
}

// IntentStore keeps intents for a limited time.  Take removes the intent
// it returns, so a transaction is booked at most once.
type IntentStore interface {
	Put(ctx context.Context, in Intent, ttl time.Duration) error
	Take(ctx context.Context, tranID string) (Intent, error)
}

// RedisIntents stores intents as JSON strings under prefix:tranID.
type RedisIntents struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisIntents(rdb *redis.Client, prefix string) *RedisIntents {
	return &RedisIntents{rdb: rdb, prefix: prefix}
}

func (r *RedisIntents) key(id string) string { return r.prefix + ":" + id }

func (r *RedisIntents) Put(ctx context.Context, in Intent, ttl time.Duration) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(in.TranID), b, ttl).Err()
}

func (r *RedisIntents) Take(ctx context.Context, tranID string) (Intent, error) {
	b, err := r.rdb.GetDel(ctx, r.key(tranID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Intent{}, ErrIntentNotFound
	}
	if err != nil {
		return Intent{}, err
	}
	var in Intent
	if err := json.Unmarshal(b, &in); err != nil {
		return Intent{}, err
	}
	return in, nil
}

// MemoryIntents is the single-process fallback used without Redis.
type MemoryIntents struct {
	mu  sync.Mutex
	m   map[string]memoryIntent
	now func() time.Time
}

type memoryIntent struct {
	in      Intent
	expires time.Time
}

func NewMemoryIntents() *MemoryIntents {
	return &MemoryIntents{m: make(map[string]memoryIntent), now: time.Now}
}

func (s *MemoryIntents) Put(_ context.Context, in Intent, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.m {
		if now.After(e.expires) {
			delete(s.m, id)
		}
	}
	s.m[in.TranID] = memoryIntent{in: in, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryIntents) Take(_ context.Context, tranID string) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[tranID]
	if !ok {
		return Intent{}, ErrIntentNotFound
	}
	delete(s.m, tranID)
	if s.now().After(e.expires) {
		return Intent{}, ErrIntentNotFound
	}
	return e.in, nil
}
