package ordersmonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/payconnect/data"
	"payconnect/internal/payconnect/service"
	"payconnect/pkg/logging"
	"payconnect/pkg/threadsafe"
)

type OrdersRepository interface {
	GetPendingOrders(ctx context.Context, limit int) ([]data.Order, error)
}

type PaymentProvider interface {
	CheckStatus(ctx context.Context, transactionID string) (bulkclixprotocol.StatusResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, n service.Notification) (service.Outcome, error)
}

type Config struct {
	TickPeriod        time.Duration
	WorkersCount      int
	TasksBufferLength int
	// MinOrderAge leaves young orders to the webhook.
	MinOrderAge time.Duration
	// ReportFailures feeds failed payments to the reconciler as well. Without
	// a terminal status they would be reported on every tick.
	ReportFailures bool
	// StoreTimeout bounds the pending orders query of one tick.
	StoreTimeout time.Duration
}

// OrdersMonitor polls the provider for pending orders whose webhook never
// arrived and reconciles the ones that reached a final status.
type OrdersMonitor struct {
	orders           OrdersRepository
	provider         PaymentProvider
	reconciler       Reconciler
	processingOrders *threadsafe.HashSet[string]
	config           Config
	logger           *logging.ZapLogger
	now              func() time.Time
	done             chan struct{}
}

func NewOrdersMonitor(
	config Config,
	orders OrdersRepository,
	provider PaymentProvider,
	reconciler Reconciler,
	logger *logging.ZapLogger,
) *OrdersMonitor {
	if config.WorkersCount <= 0 {
		config.WorkersCount = 1
	}
	if config.TasksBufferLength <= 0 {
		config.TasksBufferLength = config.WorkersCount
	}
	return &OrdersMonitor{
		orders:           orders,
		provider:         provider,
		reconciler:       reconciler,
		config:           config,
		processingOrders: threadsafe.NewHashSet[string](),
		logger:           logger,
		now:              time.Now,
		done:             make(chan struct{}),
	}
}

func (om *OrdersMonitor) Run() {
	orderIDsChan := make(chan string, om.config.TasksBufferLength)

	wg := &sync.WaitGroup{}

	for i := 0; i < om.config.WorkersCount; i++ {
		wg.Add(1)
		go func(orderIDsChan <-chan string) {
			defer wg.Done()
			om.worker(orderIDsChan)
		}(orderIDsChan)
	}

	wg.Add(1)
	go func(orderIDsChan chan<- string) {
		defer wg.Done()
		om.scheduler(orderIDsChan)
	}(orderIDsChan)

	wg.Wait()
}

func (om *OrdersMonitor) Stop() {
	close(om.done)
}

func (om *OrdersMonitor) scheduler(orderIDsChan chan<- string) {
	defer close(orderIDsChan)

	ticker := time.NewTicker(om.config.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-om.done:
			return
		case <-ticker.C:
			if err := om.tick(orderIDsChan); err != nil {
				om.logger.ErrorCtx(context.Background(), "error while scheduling orders", zap.Error(err))
			}
		}
	}
}

func (om *OrdersMonitor) tick(orderIDsChan chan<- string) error {
	maxTasksToSchedule := om.config.TasksBufferLength - len(orderIDsChan)
	if maxTasksToSchedule <= 0 {
		return nil
	}
	orders, err := om.pendingOrders(maxTasksToSchedule)
	if err != nil {
		return fmt.Errorf("failed to get pending orders: %w", err)
	}
	for _, order := range orders {
		if om.config.MinOrderAge > 0 && om.now().Sub(order.CreatedAt) < om.config.MinOrderAge {
			continue
		}
		if !om.processingOrders.Add(order.OrderID) {
			continue
		}
		om.logger.DebugCtx(context.Background(), "scheduling order", zap.String("orderId", order.OrderID))
		orderIDsChan <- order.OrderID
	}
	return nil
}

func (om *OrdersMonitor) pendingOrders(limit int) ([]data.Order, error) {
	ctx := context.Background()
	if om.config.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, om.config.StoreTimeout)
		defer cancel()
	}
	return om.orders.GetPendingOrders(ctx, limit)
}

func (om *OrdersMonitor) worker(orderIDsChan <-chan string) {
	for orderID := range orderIDsChan {
		err := om.handleOrder(orderID)
		om.processingOrders.Remove(orderID)
		if err != nil {
			om.logger.ErrorCtx(context.Background(), "failed to handle order", zap.String("orderId", orderID), zap.Error(err))
		}
	}
}

func (om *OrdersMonitor) handleOrder(orderID string) error {
	ctx := logging.WithContextFields(context.Background(), zap.String("orderId", orderID))
	result, err := om.provider.CheckStatus(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to get payment status: %w", err)
	}
	switch {
	case bulkclixprotocol.IsSuccess(result.Status):
	case bulkclixprotocol.IsFailure(result.Status) && om.config.ReportFailures:
	default:
		om.logger.DebugCtx(ctx, "payment not final", zap.String("status", result.Status))
		return nil
	}
	outcome, err := om.reconciler.Reconcile(ctx, service.Notification{
		TransactionID: orderID,
		Status:        result.Status,
		Source:        service.SourceStatusCheck,
		Raw:           result.Raw,
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile order: %w", err)
	}
	om.logger.InfoCtx(ctx, "order reconciled from status check", zap.String("outcome", string(outcome)))
	return nil
}
