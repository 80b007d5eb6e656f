package service

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

func connectivityErr(op string) error {
	return apperr.Connectivity(op, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
}

// fakeLog is an in-memory event log. Counts follow the slices unless
// overridden.
type fakeLog struct {
	mu sync.Mutex

	orders    []entity.OrderFact
	checkouts []entity.CheckoutFact
	counters  map[entity.InventoryKey]int64

	countErr     error
	decrementErr error
	markErr      error

	decrements []entity.InventoryKey
	reads      int
	empties    []entity.InventoryKey
}

func newFakeLog() *fakeLog {
	return &fakeLog{counters: make(map[entity.InventoryKey]int64)}
}

func (f *fakeLog) CountOrders(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.orders)), nil
}

func (f *fakeLog) LatestOrder(ctx context.Context) (*entity.OrderFact, error) {
	orders, err := f.RecentOrders(ctx, 1)
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

func (f *fakeLog) RecentOrders(_ context.Context, limit int) ([]entity.OrderFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := max(len(f.orders)-limit, 0)
	return append([]entity.OrderFact(nil), f.orders[from:]...), nil
}

func (f *fakeLog) CountConfirmedCheckouts(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.checkouts)), nil
}

func (f *fakeLog) LatestConfirmedCheckout(ctx context.Context) (*entity.CheckoutFact, error) {
	checkouts, err := f.RecentConfirmedCheckouts(ctx, 1)
	if err != nil || len(checkouts) == 0 {
		return nil, err
	}
	return &checkouts[0], nil
}

func (f *fakeLog) RecentConfirmedCheckouts(_ context.Context, limit int) ([]entity.CheckoutFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := max(len(f.checkouts)-limit, 0)
	return append([]entity.CheckoutFact(nil), f.checkouts[from:]...), nil
}

func (f *fakeLog) DecrementCounter(_ context.Context, key entity.InventoryKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decrementErr != nil {
		return f.decrementErr
	}
	f.decrements = append(f.decrements, key)
	f.counters[key]--
	return nil
}

func (f *fakeLog) ReadCounter(_ context.Context, key entity.InventoryKey) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.counters[key], nil
}

func (f *fakeLog) MarkEmpty(_ context.Context, key entity.InventoryKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.empties = append(f.empties, key)
	return nil
}

func (f *fakeLog) decrementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decrements)
}

type fakeRefs struct {
	routes map[string]entity.RouteReference
	trucks map[string]entity.TruckReference
	err    error
}

func (f *fakeRefs) FindRouteByStop(_ context.Context, stop string) (*entity.RouteReference, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.routes[stop]
	if !ok {
		return nil, apperr.NotFound("find route by stop", errors.New(stop))
	}
	return &r, nil
}

func (f *fakeRefs) FindTruckByRoute(_ context.Context, route string) (*entity.TruckReference, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.trucks[route]
	if !ok {
		// Stores may also report a miss as nil.
		return nil, nil
	}
	return &t, nil
}

type fakePlans struct {
	mu       sync.Mutex
	endpoint string
	err      error
	// reject fails single plans by id.
	reject   map[string]error
	plans    []entity.DeliveryPlan
	attempts int
}

func (f *fakePlans) InsertPlan(_ context.Context, plan entity.DeliveryPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	if err := f.reject[plan.ID]; err != nil {
		return err
	}
	f.plans = append(f.plans, plan)
	return nil
}

func (f *fakePlans) Endpoint() string { return f.endpoint }

func (f *fakePlans) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type fakeLedger struct {
	err   error
	calls []entity.CheckoutFact
}

func (f *fakeLedger) RecordCheckout(_ context.Context, c entity.CheckoutFact) (string, error) {
	f.calls = append(f.calls, c)
	if f.err != nil {
		return "", f.err
	}
	return "ledger-" + c.ID.String(), nil
}

type published struct {
	topic string
	key   string
	event any
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []published
}

func (f *fakePublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{topic: topic, key: key, event: event})
	return nil
}

// failingCursors fails every load and save.
type failingCursors struct{}

func (failingCursors) Load(context.Context, entity.Stream) (int64, bool, error) {
	return 0, false, errors.New("cursor store down")
}

func (failingCursors) Save(context.Context, entity.Stream, int64) error {
	return errors.New("cursor store down")
}
