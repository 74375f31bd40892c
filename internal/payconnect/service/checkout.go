package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/common/upstream"
	"payconnect/internal/payconnect/data"
	"payconnect/pkg/logging"
	"payconnect/pkg/orderid"
	"payconnect/pkg/phone"
)

const (
	DefaultChargeReference = "PAYCONNECT"

	idempotencyLockPrefix = "idempotency:"
)

type CheckoutConfig struct {
	ChargeReference string
	Timeouts        Timeouts
}

type CheckoutRequest struct {
	Email          string
	Phone          string
	Recipient      string
	DataPlan       string
	Network        string
	IdempotencyKey string
	CallbackURL    string
	Amount         decimal.NullDecimal
}

type CheckoutResult struct {
	OrderID           string
	RecordID          string
	ProviderReference string
	Network           data.Network
	Status            data.Status
	ProviderResponse  json.RawMessage
	Duplicate         bool
}

// Checkout records a pending order and asks the provider to charge the
// customer. It does not wait for the payment outcome.
type Checkout struct {
	orders   OrderRepository
	provider PaymentProvider
	locker   Locker
	cfg      CheckoutConfig
	logger   *logging.ZapLogger
	newID    func() string
	now      func() time.Time
}

func NewCheckout(
	cfg CheckoutConfig,
	orders OrderRepository,
	provider PaymentProvider,
	locker Locker,
	logger *logging.ZapLogger,
) *Checkout {
	if cfg.ChargeReference == "" {
		cfg.ChargeReference = DefaultChargeReference
	}
	return &Checkout{
		orders:   boundOrders(orders, cfg.Timeouts.Store),
		provider: provider,
		locker:   boundLocker(locker, cfg.Timeouts.Lock),
		cfg:      cfg,
		logger:   logger,
		newID:    orderid.New,
		now:      time.Now,
	}
}

func (c *Checkout) InitiateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	order, err := c.buildOrder(req)
	if err != nil {
		return CheckoutResult{}, err
	}
	if order.IdempotencyKey == "" {
		return c.initiate(ctx, order, req.CallbackURL)
	}

	unlock, err := c.locker.Lock(ctx, idempotencyLockPrefix+order.IdempotencyKey)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("failed to lock idempotency key: %w", err)
	}
	defer unlock()

	existing, err := c.orders.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
	switch {
	case err == nil:
		return c.replay(ctx, existing, req.CallbackURL)
	case errors.Is(err, data.ErrOrderNotFound):
		return c.initiate(ctx, order, req.CallbackURL)
	default:
		return CheckoutResult{}, upstream.Wrap(upstream.Store, fmt.Errorf("idempotency lookup failed: %w", err))
	}
}

func (c *Checkout) buildOrder(req CheckoutRequest) (data.Order, error) {
	switch {
	case strings.TrimSpace(req.Phone) == "":
		return data.Order{}, NewValidationError("phone", "is required")
	case strings.TrimSpace(req.Recipient) == "":
		return data.Order{}, NewValidationError("recipient", "is required")
	case strings.TrimSpace(req.DataPlan) == "":
		return data.Order{}, NewValidationError("dataPlan", "is required")
	case !req.Amount.Valid:
		return data.Order{}, NewValidationError("amount", "is required")
	case !req.Amount.Decimal.IsPositive():
		return data.Order{}, NewValidationError("amount", "must be a positive number")
	}
	customerPhone, err := phone.Normalize(req.Phone)
	if err != nil {
		return data.Order{}, NewValidationError("phone", "is not a valid phone number")
	}
	recipient, err := phone.Normalize(req.Recipient)
	if err != nil {
		return data.Order{}, NewValidationError("recipient", "is not a valid phone number")
	}
	network := data.InferNetwork(req.DataPlan)
	if req.Network != "" {
		network, err = data.ParseNetwork(req.Network)
		if err != nil {
			return data.Order{}, NewValidationError("network", "must be one of MTN, TELECEL, AIRTELTIGO")
		}
	}
	return data.Order{
		OrderID:         c.newID(),
		IdempotencyKey:  strings.TrimSpace(req.IdempotencyKey),
		Email:           strings.TrimSpace(req.Email),
		CustomerPhone:   customerPhone,
		RecipientNumber: recipient,
		DataPlan:        strings.TrimSpace(req.DataPlan),
		Network:         network,
		Amount:          req.Amount.Decimal,
		Status:          data.PendingStatus,
	}, nil
}

func (c *Checkout) initiate(ctx context.Context, order data.Order, callbackURL string) (CheckoutResult, error) {
	if err := c.orders.InsertOrder(ctx, &order); err != nil {
		if errors.Is(err, data.ErrUniqueConstraintViolation) && order.IdempotencyKey != "" {
			existing, lookupErr := c.orders.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
			if lookupErr == nil {
				return c.replay(ctx, existing, callbackURL)
			}
		}
		c.logger.ErrorCtx(ctx, "failed to record pending order", zap.Error(err), zap.String("orderId", order.OrderID))
		return CheckoutResult{}, upstream.Wrap(upstream.Store, fmt.Errorf("failed to record order: %w", err))
	}
	ctx = logging.WithContextFields(ctx, zap.String("orderId", order.OrderID))
	c.logger.InfoCtx(ctx, "pending order recorded", zap.String("recordId", order.RecordID))

	return c.charge(ctx, order, callbackURL)
}

// replay answers a repeated idempotency key. An order whose charge was never
// accepted by the provider is charged again under the same transaction id.
func (c *Checkout) replay(ctx context.Context, existing data.Order, callbackURL string) (CheckoutResult, error) {
	ctx = logging.WithContextFields(
		ctx,
		zap.String("orderId", existing.OrderID),
		zap.String("idempotencyKey", existing.IdempotencyKey),
	)
	if existing.ProviderReference == "" && existing.Status == data.PendingStatus && !existing.NotificationSent {
		c.logger.InfoCtx(ctx, "checkout replayed, retrying charge")
		return c.charge(ctx, existing, callbackURL)
	}
	c.logger.InfoCtx(ctx, "checkout replayed")
	return duplicateResult(existing), nil
}

func (c *Checkout) charge(ctx context.Context, order data.Order, callbackURL string) (CheckoutResult, error) {
	localPhone, err := phone.Local(order.CustomerPhone)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("stored phone is not valid: %w", err)
	}
	charge, err := c.provider.Charge(ctx, bulkclixprotocol.ChargeRequest{
		Amount:        json.Number(order.Amount.String()),
		PhoneNumber:   localPhone,
		Network:       string(order.Network),
		TransactionID: order.OrderID,
		CallbackURL:   callbackURL,
		Reference:     c.cfg.ChargeReference,
	})
	if err != nil {
		// the pending record is left in place, nothing compensates it
		c.logger.ErrorCtx(ctx, "charge initiation failed", zap.Error(err))
		if logErr := c.orders.AppendResponseLog(ctx, order, data.LogEntry(c.now(), "provider error", err.Error())); logErr != nil {
			c.logger.WarnCtx(ctx, "failed to log provider error", zap.Error(logErr))
		}
		return CheckoutResult{OrderID: order.OrderID, RecordID: order.RecordID}, upstream.Wrap(upstream.Provider, err)
	}

	reference := charge.Reference
	if reference == "" {
		reference = order.OrderID
	}
	entry := data.LogEntry(c.now(), "provider", string(charge.Raw))
	if err := c.orders.SetProviderResponse(ctx, order, reference, entry); err != nil {
		c.logger.WarnCtx(ctx, "failed to store provider response", zap.Error(err))
	}
	c.logger.InfoCtx(ctx, "charge initiated", zap.String("providerReference", reference))

	return CheckoutResult{
		OrderID:           order.OrderID,
		RecordID:          order.RecordID,
		ProviderReference: reference,
		Network:           order.Network,
		Status:            order.Status,
		ProviderResponse:  charge.Raw,
	}, nil
}

func duplicateResult(order data.Order) CheckoutResult {
	return CheckoutResult{
		OrderID:           order.OrderID,
		RecordID:          order.RecordID,
		ProviderReference: order.ProviderReference,
		Network:           order.Network,
		Status:            order.Status,
		Duplicate:         true,
	}
}
