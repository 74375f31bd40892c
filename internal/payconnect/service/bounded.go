package service

import (
	"context"
	"time"

	"payconnect/internal/payconnect/data"
)

// Timeouts bound the calls the services make to the order store and the
// locker. Zero values leave the caller's context as is.
type Timeouts struct {
	// Store bounds one repository call.
	Store time.Duration
	// Lock bounds waiting for a per-order lock, not holding it.
	Lock time.Duration
	// Transaction bounds a whole store transaction.
	Transaction time.Duration
}

type boundedOrders struct {
	orders  OrderRepository
	timeout time.Duration
}

func boundOrders(orders OrderRepository, timeout time.Duration) OrderRepository {
	if timeout <= 0 {
		return orders
	}
	return &boundedOrders{orders: orders, timeout: timeout}
}

func (b *boundedOrders) InsertOrder(ctx context.Context, order *data.Order) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.InsertOrder(ctx, order)
}

func (b *boundedOrders) GetOrderByOrderID(ctx context.Context, orderID string) (data.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.GetOrderByOrderID(ctx, orderID)
}

func (b *boundedOrders) GetOrderByIdempotencyKey(ctx context.Context, key string) (data.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.GetOrderByIdempotencyKey(ctx, key)
}

func (b *boundedOrders) ClaimNotification(ctx context.Context, order data.Order) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.ClaimNotification(ctx, order)
}

func (b *boundedOrders) ReleaseNotification(ctx context.Context, order data.Order) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.ReleaseNotification(ctx, order)
}

func (b *boundedOrders) AppendResponseLog(ctx context.Context, order data.Order, entry string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.AppendResponseLog(ctx, order, entry)
}

func (b *boundedOrders) SetProviderResponse(ctx context.Context, order data.Order, reference string, entry string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.SetProviderResponse(ctx, order, reference, entry)
}

func (b *boundedOrders) SetOrderStatus(ctx context.Context, order data.Order, status data.Status) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.orders.SetOrderStatus(ctx, order, status)
}

type boundedLocker struct {
	locker  Locker
	timeout time.Duration
}

func boundLocker(locker Locker, timeout time.Duration) Locker {
	if timeout <= 0 {
		return locker
	}
	return &boundedLocker{locker: locker, timeout: timeout}
}

func (b *boundedLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.locker.Lock(ctx, key)
}

type boundedTransactions struct {
	transactions TransactionManager
	timeout      time.Duration
}

func boundTransactions(transactions TransactionManager, timeout time.Duration) TransactionManager {
	if timeout <= 0 {
		return transactions
	}
	return &boundedTransactions{transactions: transactions, timeout: timeout}
}

func (b *boundedTransactions) DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.transactions.DoWithTransaction(ctx, f)
}
