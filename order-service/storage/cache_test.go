package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
)

type stubBackend struct {
	saveFn func(ctx context.Context, o domain.Order) error
	getFn  func(ctx context.Context, orderID string) (domain.Order, error)
}

func (s *stubBackend) Save(ctx context.Context, o domain.Order) error {
	if s.saveFn == nil {
		return errors.New("unexpected Save call")
	}
	return s.saveFn(ctx, o)
}

func (s *stubBackend) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, errors.New("unexpected Get call")
	}
	return s.getFn(ctx, orderID)
}

func TestCacheGetMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubBackend{
		getFn: func(ctx context.Context, id string) (domain.Order, error) {
			calls++
			if id != sampleOrder.OrderID {
				t.Fatalf("unexpected order id: %s", id)
			}
			return sampleOrder, nil
		},
	}, client, time.Minute, nil)

	got, err := cache.Get(ctx, sampleOrder.OrderID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != sampleOrder || calls != 1 {
		t.Fatalf("unexpected first get: %#v calls=%d", got, calls)
	}
	if ttl := mr.TTL(orderCacheKey(sampleOrder.OrderID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	got, err = cache.Get(ctx, sampleOrder.OrderID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if got != sampleOrder || calls != 1 {
		t.Fatalf("expected cached get to avoid backend, calls=%d", calls)
	}
}

func TestCacheSaveWritesThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	var saved []domain.Order
	cache := NewCache(&stubBackend{
		saveFn: func(ctx context.Context, o domain.Order) error {
			saved = append(saved, o)
			return nil
		},
	}, client, time.Minute, nil)

	if err := cache.Save(context.Background(), sampleOrder); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected backend save, got %d", len(saved))
	}
	if !mr.Exists(orderCacheKey(sampleOrder.OrderID)) {
		t.Fatal("expected saved order to be cached")
	}
	got, err := cache.Get(context.Background(), sampleOrder.OrderID)
	if err != nil || got != sampleOrder {
		t.Fatalf("expected cached order, got %#v %v", got, err)
	}
}

func TestCacheSaveFailureIsNotCached(t *testing.T) {
	mr, client := newTestRedis(t)
	boom := errors.New("boom")
	cache := NewCache(&stubBackend{
		saveFn: func(context.Context, domain.Order) error { return boom },
	}, client, time.Minute, nil)

	if err := cache.Save(context.Background(), sampleOrder); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if mr.Exists(orderCacheKey(sampleOrder.OrderID)) {
		t.Fatal("failed saves must not be cached")
	}
}

func TestCacheFallsBackOnCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	if err := mr.Set(orderCacheKey(sampleOrder.OrderID), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cache := NewCache(&stubBackend{
		getFn: func(context.Context, string) (domain.Order, error) { return sampleOrder, nil },
	}, client, time.Minute, nil)

	got, err := cache.Get(context.Background(), sampleOrder.OrderID)
	if err != nil || got != sampleOrder {
		t.Fatalf("expected backend order, got %#v %v", got, err)
	}
}

func TestCacheWithoutRedis(t *testing.T) {
	cache := NewCache(&stubBackend{
		getFn: func(context.Context, string) (domain.Order, error) { return domain.Order{}, domain.ErrOrderNotFound },
	}, nil, time.Minute, nil)
	if _, err := cache.Get(context.Background(), "x"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCacheLogsRedisOutage(t *testing.T) {
	mr, client := newTestRedis(t)
	logger, hook := test.NewNullLogger()
	cache := NewCache(&stubBackend{
		saveFn: func(context.Context, domain.Order) error { return nil },
		getFn:  func(context.Context, string) (domain.Order, error) { return sampleOrder, nil },
	}, client, time.Minute, logger)
	mr.Close()

	got, err := cache.Get(context.Background(), sampleOrder.OrderID)
	if err != nil || got != sampleOrder {
		t.Fatalf("expected backend order, got %#v %v", got, err)
	}
	if err := cache.Save(context.Background(), sampleOrder); err != nil {
		t.Fatalf("save must not fail on a cache outage: %v", err)
	}

	warned := map[string]bool{}
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel && e.Data["orderId"] == sampleOrder.OrderID {
			warned[e.Message] = true
		}
	}
	for _, msg := range []string{"Order cache read failed", "Order cache write failed"} {
		if !warned[msg] {
			t.Fatalf("expected warning %q, got %v", msg, warned)
		}
	}
}
