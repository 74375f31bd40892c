package service

import (
	"context"

	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/payconnect/data"
)

type OrderRepository interface {
	InsertOrder(ctx context.Context, order *data.Order) error
	GetOrderByOrderID(ctx context.Context, orderID string) (data.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (data.Order, error)
	// ClaimNotification sets the notification flag unless it is already
	// set and reports whether this call set it.
	ClaimNotification(ctx context.Context, order data.Order) (bool, error)
	// ReleaseNotification clears the flag after the SMS was definitely not
	// delivered, so a later notification may send it.
	ReleaseNotification(ctx context.Context, order data.Order) error
	AppendResponseLog(ctx context.Context, order data.Order, entry string) error
	SetProviderResponse(ctx context.Context, order data.Order, reference string, entry string) error
	SetOrderStatus(ctx context.Context, order data.Order, status data.Status) error
}

type PaymentProvider interface {
	Charge(ctx context.Context, req bulkclixprotocol.ChargeRequest) (bulkclixprotocol.ChargeResult, error)
}

type SMSSender interface {
	Send(ctx context.Context, to string, content string) ([]byte, error)
}

// Locker serializes work on one key: an order id or an idempotency key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type TransactionManager interface {
	DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error
}

// NoTransactions runs f directly, for stores without transactions.
type NoTransactions struct{}

func (NoTransactions) DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}
