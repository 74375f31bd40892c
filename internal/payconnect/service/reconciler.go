package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/common/upstream"
	"payconnect/internal/payconnect/data"
	"payconnect/pkg/logging"
	"payconnect/pkg/timeutils"
)

const orderLockPrefix = "order:"

type ReconcilerConfig struct {
	// ApplyTerminalStatus moves orders to Completed or Failed. When off the
	// stored status stays Pending and only the audit log and the
	// notification flag change.
	ApplyTerminalStatus bool
	// LookupAttemptDelays are waited between order lookups that found
	// nothing, to cover a notification arriving before the order is stored.
	LookupAttemptDelays []time.Duration
	SupportContact      string
	Timeouts            Timeouts
}

// Reconciler applies payment notifications to stored orders. Each order is
// notified by SMS at most once, however many success notifications arrive.
type Reconciler struct {
	orders       OrderRepository
	sms          SMSSender
	locker       Locker
	transactions TransactionManager
	cfg          ReconcilerConfig
	logger       *logging.ZapLogger
	now          func() time.Time
}

func NewReconciler(
	cfg ReconcilerConfig,
	orders OrderRepository,
	sms SMSSender,
	locker Locker,
	transactions TransactionManager,
	logger *logging.ZapLogger,
) *Reconciler {
	if cfg.SupportContact == "" {
		cfg.SupportContact = DefaultSupportContact
	}
	if transactions == nil {
		transactions = NoTransactions{}
	}
	return &Reconciler{
		orders:       boundOrders(orders, cfg.Timeouts.Store),
		sms:          sms,
		locker:       boundLocker(locker, cfg.Timeouts.Lock),
		transactions: boundTransactions(transactions, cfg.Timeouts.Transaction),
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, n Notification) (Outcome, error) {
	n.TransactionID = strings.TrimSpace(n.TransactionID)
	if n.TransactionID == "" {
		return OutcomeFailed, NewValidationError("transaction_id", "is required")
	}
	if n.Source == "" {
		n.Source = SourceWebhook
	}
	ctx = logging.WithContextFields(ctx, zap.String("orderId", n.TransactionID))

	unlock, err := r.locker.Lock(ctx, orderLockPrefix+n.TransactionID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to lock order: %w", err)
	}
	defer unlock()

	order, err := r.findOrder(ctx, n.TransactionID)
	switch {
	case errors.Is(err, data.ErrOrderNotFound):
		r.logger.WarnCtx(ctx, "notification for unknown order", zap.String("status", n.Status))
		return OutcomeNotFound, nil
	case err != nil:
		r.logger.ErrorCtx(ctx, "order lookup failed", zap.Error(err))
		return OutcomeFailed, upstream.Wrap(upstream.Store, err)
	}

	if bulkclixprotocol.IsSuccess(n.Status) {
		return r.notify(ctx, order, n)
	}
	return r.record(ctx, order, n)
}

func (r *Reconciler) findOrder(ctx context.Context, orderID string) (data.Order, error) {
	return timeutils.Retry(
		ctx,
		r.cfg.LookupAttemptDelays,
		func(ctx context.Context) (data.Order, error) {
			return r.orders.GetOrderByOrderID(ctx, orderID)
		},
		func(_ data.Order, err error) bool {
			return errors.Is(err, data.ErrOrderNotFound)
		},
	)
}

func (r *Reconciler) notify(ctx context.Context, order data.Order, n Notification) (Outcome, error) {
	if order.NotificationSent {
		r.logger.InfoCtx(ctx, "duplicate success notification")
		return OutcomeDuplicate, nil
	}

	// The flag is committed before the SMS goes out: a crash or a timeout
	// after this point loses the SMS instead of sending it twice. Only a
	// definite rejection by the gateway gives the claim back.
	claimed, err := r.orders.ClaimNotification(ctx, order)
	if err != nil {
		r.logger.ErrorCtx(ctx, "failed to claim notification", zap.Error(err))
		return OutcomeFailed, upstream.Wrap(upstream.Store, err)
	}
	if !claimed {
		r.logger.InfoCtx(ctx, "notification already claimed")
		return OutcomeDuplicate, nil
	}
	order.NotificationSent = true

	now := r.now()
	entry := data.LogEntry(now, n.Source, string(n.Raw))
	response, sendErr := r.sms.Send(ctx, order.CustomerPhone, confirmationMessage(order, r.cfg.SupportContact))
	if sendErr != nil {
		r.logger.ErrorCtx(ctx, "failed to send sms", zap.Error(sendErr))
		entry = data.AppendLog(entry, data.LogEntry(now, "sms error", sendErr.Error()))
	} else {
		r.logger.InfoCtx(ctx, "customer notified", zap.String("to", order.CustomerPhone))
		entry = data.AppendLog(entry, data.LogEntry(now, "sms", string(response)))
	}

	release := sendErr != nil && upstream.IsRejection(sendErr)
	err = r.transactions.DoWithTransaction(ctx, func(ctx context.Context) error {
		if err := r.orders.AppendResponseLog(ctx, order, entry); err != nil {
			return fmt.Errorf("failed to append sms response: %w", err)
		}
		if release {
			// left Pending so the sweeper picks the order up again
			if err := r.orders.ReleaseNotification(ctx, order); err != nil {
				return fmt.Errorf("failed to release notification: %w", err)
			}
			return nil
		}
		return r.applyStatus(ctx, order, data.CompletedStatus)
	})
	if release && err == nil {
		r.logger.InfoCtx(ctx, "sms rejected, notification released")
	}
	switch {
	case sendErr != nil:
		if err != nil {
			r.logger.ErrorCtx(ctx, "failed to record sms error", zap.Error(err))
		}
		return OutcomeFailed, upstream.Wrap(upstream.SMS, sendErr)
	case err != nil:
		r.logger.ErrorCtx(ctx, "failed to record notification", zap.Error(err))
		return OutcomeNotified, upstream.Wrap(upstream.Store, err)
	}
	return OutcomeNotified, nil
}

func (r *Reconciler) record(ctx context.Context, order data.Order, n Notification) (Outcome, error) {
	entry := data.LogEntry(r.now(), n.Source, string(n.Raw))
	err := r.transactions.DoWithTransaction(ctx, func(ctx context.Context) error {
		if err := r.orders.AppendResponseLog(ctx, order, entry); err != nil {
			return fmt.Errorf("failed to append notification: %w", err)
		}
		if bulkclixprotocol.IsFailure(n.Status) {
			return r.applyStatus(ctx, order, data.FailedStatus)
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorCtx(ctx, "failed to record notification", zap.Error(err))
		return OutcomeFailed, upstream.Wrap(upstream.Store, err)
	}
	r.logger.InfoCtx(ctx, "notification recorded", zap.String("status", n.Status))
	return OutcomeRecorded, nil
}

func (r *Reconciler) applyStatus(ctx context.Context, order data.Order, status data.Status) error {
	if !r.cfg.ApplyTerminalStatus {
		return nil
	}
	if !order.Status.CanTransitionTo(status) {
		r.logger.InfoCtx(
			ctx,
			"status left unchanged",
			zap.String("from", string(order.Status)),
			zap.String("to", string(status)),
		)
		return nil
	}
	if err := r.orders.SetOrderStatus(ctx, order, status); err != nil {
		return fmt.Errorf("failed to set status %s: %w", status, err)
	}
	return nil
}
