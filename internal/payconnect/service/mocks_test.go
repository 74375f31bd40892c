package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/payconnect/data"
)

// memOrders is an OrderRepository that keeps orders in memory and counts
// writes.
type memOrders struct {
	mux        sync.Mutex
	orders     map[string]data.Order
	inserts    int
	writes     int
	lookups    int
	missesLeft int

	insertErr error
	lookupErr error
	claimErr  error
	appendErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]data.Order)}
}

func (m *memOrders) InsertOrder(_ context.Context, order *data.Order) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.orders[order.OrderID]; ok {
		return data.ErrUniqueConstraintViolation
	}
	m.inserts++
	order.RecordID = fmt.Sprintf("rec%d", m.inserts)
	m.orders[order.OrderID] = *order
	return nil
}

func (m *memOrders) GetOrderByOrderID(_ context.Context, orderID string) (data.Order, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.lookups++
	if m.lookupErr != nil {
		return data.Order{}, m.lookupErr
	}
	if m.missesLeft > 0 {
		m.missesLeft--
		return data.Order{}, data.ErrOrderNotFound
	}
	order, ok := m.orders[orderID]
	if !ok {
		return data.Order{}, data.ErrOrderNotFound
	}
	return order, nil
}

func (m *memOrders) GetOrderByIdempotencyKey(_ context.Context, key string) (data.Order, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.lookupErr != nil {
		return data.Order{}, m.lookupErr
	}
	for _, order := range m.orders {
		if order.IdempotencyKey == key {
			return order, nil
		}
	}
	return data.Order{}, data.ErrOrderNotFound
}

func (m *memOrders) ClaimNotification(_ context.Context, order data.Order) (bool, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	stored, ok := m.orders[order.OrderID]
	if !ok {
		return false, data.ErrOrderNotFound
	}
	if stored.NotificationSent {
		return false, nil
	}
	m.writes++
	stored.NotificationSent = true
	m.orders[order.OrderID] = stored
	return true, nil
}

func (m *memOrders) ReleaseNotification(_ context.Context, order data.Order) error {
	return m.update(order.OrderID, nil, func(stored *data.Order) {
		stored.NotificationSent = false
	})
}

func (m *memOrders) AppendResponseLog(_ context.Context, order data.Order, entry string) error {
	return m.update(order.OrderID, m.appendErr, func(stored *data.Order) {
		stored.ResponseLog = data.AppendLog(stored.ResponseLog, entry)
	})
}

func (m *memOrders) SetProviderResponse(_ context.Context, order data.Order, reference string, entry string) error {
	return m.update(order.OrderID, m.appendErr, func(stored *data.Order) {
		stored.ProviderReference = reference
		stored.ResponseLog = data.AppendLog(stored.ResponseLog, entry)
	})
}

func (m *memOrders) SetOrderStatus(_ context.Context, order data.Order, status data.Status) error {
	return m.update(order.OrderID, nil, func(stored *data.Order) {
		stored.Status = status
	})
}

func (m *memOrders) update(orderID string, failWith error, f func(stored *data.Order)) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if failWith != nil {
		return failWith
	}
	stored, ok := m.orders[orderID]
	if !ok {
		return data.ErrOrderNotFound
	}
	m.writes++
	f(&stored)
	m.orders[orderID] = stored
	return nil
}

func (m *memOrders) get(orderID string) data.Order {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.orders[orderID]
}

func (m *memOrders) put(order data.Order) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.orders[order.OrderID] = order
}

func (m *memOrders) counts() (inserts int, writes int) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.inserts, m.writes
}

type fakeProvider struct {
	mux      sync.Mutex
	requests []bulkclixprotocol.ChargeRequest
	err      error
}

func (p *fakeProvider) Charge(
	_ context.Context,
	req bulkclixprotocol.ChargeRequest,
) (bulkclixprotocol.ChargeResult, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return bulkclixprotocol.ChargeResult{}, p.err
	}
	raw, _ := json.Marshal(map[string]any{
		"message": "Payment initiated",
		"data":    map[string]string{"transaction_id": req.TransactionID, "ext_transaction_id": "ext-" + req.TransactionID},
	})
	return bulkclixprotocol.ChargeResult{Reference: "ext-" + req.TransactionID, Raw: raw}, nil
}

func (p *fakeProvider) calls() []bulkclixprotocol.ChargeRequest {
	p.mux.Lock()
	defer p.mux.Unlock()
	return append([]bulkclixprotocol.ChargeRequest(nil), p.requests...)
}

type sentSMS struct {
	To      string
	Content string
}

type fakeSMS struct {
	mux  sync.Mutex
	sent []sentSMS
	err  error
}

func (s *fakeSMS) Send(_ context.Context, to string, content string) ([]byte, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, sentSMS{To: to, Content: content})
	return []byte(`{"responseCode":"0000","data":{"messageId":"m1"}}`), nil
}

func (s *fakeSMS) messages() []sentSMS {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]sentSMS(nil), s.sent...)
}

// blockingOrders holds every call until the caller's context is done.
type blockingOrders struct {
	memOrders
}

func (b *blockingOrders) wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingOrders) InsertOrder(ctx context.Context, _ *data.Order) error {
	return b.wait(ctx)
}

func (b *blockingOrders) GetOrderByOrderID(ctx context.Context, _ string) (data.Order, error) {
	return data.Order{}, b.wait(ctx)
}

func (b *blockingOrders) GetOrderByIdempotencyKey(ctx context.Context, _ string) (data.Order, error) {
	return data.Order{}, b.wait(ctx)
}

// blockingLocker never grants a lock before the context is done.
type blockingLocker struct{}

func (blockingLocker) Lock(ctx context.Context, _ string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingTransactions struct {
	mux   sync.Mutex
	calls int
}

func (c *countingTransactions) DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	c.mux.Lock()
	c.calls++
	c.mux.Unlock()
	return f(ctx)
}
