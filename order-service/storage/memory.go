// Package storage holds the order stores and idempotency ledgers the
// processor can run against.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
)

// MemoryStore keeps orders in process memory. Orders are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]domain.Order)}
}

func (s *MemoryStore) Save(ctx context.Context, o domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.OrderID] = o
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

// Len reports the number of stored orders.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// MemoryLedger is a single-process idempotency ledger. Claims expire after
// ttl like their Redis counterparts; a ttl of zero keeps them forever.
type MemoryLedger struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]memoryClaim
	swept  time.Time
	now    func() time.Time
}

type memoryClaim struct {
	owner   string
	expires time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl < 0 {
		ttl = 0
	}
	return &MemoryLedger{ttl: ttl, claims: make(map[string]memoryClaim), now: time.Now}
}

func (l *MemoryLedger) Claim(ctx context.Context, key, orderID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)
	if c, ok := l.claims[key]; ok && !c.expired(now) {
		return c.owner, false, nil
	}
	c := memoryClaim{owner: orderID}
	if l.ttl > 0 {
		c.expires = now.Add(l.ttl)
	}
	l.claims[key] = c
	return orderID, true, nil
}

// Release drops the claim on key if orderID still owns it.
func (l *MemoryLedger) Release(ctx context.Context, key, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claims[key].owner == orderID {
		delete(l.claims, key)
	}
	return nil
}

// Len reports the number of live claims.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for _, c := range l.claims {
		if !c.expired(now) {
			n++
		}
	}
	return n
}

// sweep drops expired claims, at most once per ttl.
func (l *MemoryLedger) sweep(now time.Time) {
	if l.ttl == 0 || now.Sub(l.swept) < l.ttl {
		return
	}
	l.swept = now
	for k, c := range l.claims {
		if c.expired(now) {
			delete(l.claims, k)
		}
	}
}

func (c memoryClaim) expired(now time.Time) bool {
	return !c.expires.IsZero() && !now.Before(c.expires)
}
