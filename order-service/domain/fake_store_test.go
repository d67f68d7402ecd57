package domain

import (
	"context"
	"sync"
)

type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]Order
	saveErr error
	saveFn  func(Order)
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]Order{}}
}

func (f *fakeStore) Save(ctx context.Context, o Order) error {
	if f.saveFn != nil {
		f.saveFn(o)
	}
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.OrderID] = o
	return nil
}

func (f *fakeStore) Get(ctx context.Context, orderID string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeLedger struct {
	mu       sync.Mutex
	claims   map[string]string
	claimErr error
	released []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{claims: map[string]string{}}
}

func (f *fakeLedger) Claim(ctx context.Context, key, orderID string) (string, bool, error) {
	if f.claimErr != nil {
		return "", false, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner, ok := f.claims[key]; ok {
		return owner, false, nil
	}
	f.claims[key] = orderID
	return orderID, true, nil
}

func (f *fakeLedger) Release(ctx context.Context, key, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claims[key] == orderID {
		delete(f.claims, key)
	}
	f.released = append(f.released, orderID)
	return nil
}
