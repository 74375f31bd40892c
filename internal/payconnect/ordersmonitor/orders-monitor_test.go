package ordersmonitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/payconnect/data"
	"payconnect/internal/payconnect/service"
	"payconnect/pkg/logging"
)

type stubOrders struct {
	orders []data.Order
	err    error
}

func (s *stubOrders) GetPendingOrders(_ context.Context, limit int) ([]data.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.orders) > limit {
		return s.orders[:limit], nil
	}
	return s.orders, nil
}

type stubProvider struct {
	statuses map[string]string
	err      error
}

func (s *stubProvider) CheckStatus(_ context.Context, transactionID string) (bulkclixprotocol.StatusResult, error) {
	if s.err != nil {
		return bulkclixprotocol.StatusResult{}, s.err
	}
	status := s.statuses[transactionID]
	return bulkclixprotocol.StatusResult{
		Status: status,
		Raw:    []byte(`{"status":"` + status + `"}`),
	}, nil
}

type recordingReconciler struct {
	mux           sync.Mutex
	notifications []service.Notification
}

func (r *recordingReconciler) Reconcile(_ context.Context, n service.Notification) (service.Outcome, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.notifications = append(r.notifications, n)
	return service.OutcomeNotified, nil
}

func (r *recordingReconciler) received() []service.Notification {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]service.Notification(nil), r.notifications...)
}

func TestOrdersMonitor_HandleOrder(t *testing.T) {
	tests := []struct {
		name           string
		status         string
		reportFailures bool
		reconciled     bool
	}{
		{"success", "success", false, true},
		{"failure ignored", "failed", false, false},
		{"failure reported", "failed", true, true},
		{"pending", "pending", true, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			reconciler := &recordingReconciler{}
			monitor := NewOrdersMonitor(
				Config{ReportFailures: test.reportFailures},
				&stubOrders{},
				&stubProvider{statuses: map[string]string{"T1": test.status}},
				reconciler,
				logging.NewNop(),
			)

			require.NoError(t, monitor.handleOrder("T1"))

			received := reconciler.received()
			if !test.reconciled {
				assert.Empty(t, received)
				return
			}
			require.Len(t, received, 1)
			assert.Equal(t, "T1", received[0].TransactionID)
			assert.Equal(t, test.status, received[0].Status)
			assert.Equal(t, service.SourceStatusCheck, received[0].Source)
			assert.JSONEq(t, `{"status":"`+test.status+`"}`, string(received[0].Raw))
		})
	}
}

func TestOrdersMonitor_HandleOrderProviderError(t *testing.T) {
	reconciler := &recordingReconciler{}
	monitor := NewOrdersMonitor(
		Config{},
		&stubOrders{},
		&stubProvider{err: errors.New("timeout")},
		reconciler,
		logging.NewNop(),
	)

	assert.Error(t, monitor.handleOrder("T1"))
	assert.Empty(t, reconciler.received())
}

func TestOrdersMonitor_Tick(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := &stubOrders{orders: []data.Order{
		{OrderID: "T1", CreatedAt: now.Add(-time.Hour)},
		{OrderID: "T2", CreatedAt: now.Add(-time.Minute)},
		{OrderID: "T3", CreatedAt: now.Add(-2 * time.Hour)},
	}}
	monitor := NewOrdersMonitor(
		Config{TasksBufferLength: 10, MinOrderAge: 10 * time.Minute},
		orders,
		&stubProvider{},
		&recordingReconciler{},
		logging.NewNop(),
	)
	monitor.now = func() time.Time { return now }
	monitor.processingOrders.Add("T3")

	orderIDsChan := make(chan string, 10)
	require.NoError(t, monitor.tick(orderIDsChan))
	close(orderIDsChan)

	scheduled := make([]string, 0)
	for id := range orderIDsChan {
		scheduled = append(scheduled, id)
	}
	assert.Equal(t, []string{"T1"}, scheduled)
	assert.True(t, monitor.processingOrders.Contains("T1"))
}

func TestOrdersMonitor_TickRepositoryError(t *testing.T) {
	monitor := NewOrdersMonitor(
		Config{TasksBufferLength: 1},
		&stubOrders{err: errors.New("unavailable")},
		&stubProvider{},
		&recordingReconciler{},
		logging.NewNop(),
	)

	assert.Error(t, monitor.tick(make(chan string, 1)))
}

type blockingOrders struct{}

func (blockingOrders) GetPendingOrders(ctx context.Context, _ int) ([]data.Order, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOrdersMonitor_TickStoreTimeout(t *testing.T) {
	monitor := NewOrdersMonitor(
		Config{TasksBufferLength: 1, StoreTimeout: 20 * time.Millisecond},
		blockingOrders{},
		&stubProvider{},
		&recordingReconciler{},
		logging.NewNop(),
	)

	started := time.Now()
	err := monitor.tick(make(chan string, 1))

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestOrdersMonitor_RunAndStop(t *testing.T) {
	reconciler := &recordingReconciler{}
	monitor := NewOrdersMonitor(
		Config{TickPeriod: 5 * time.Millisecond, WorkersCount: 2, TasksBufferLength: 4},
		&stubOrders{orders: []data.Order{{OrderID: "T1"}, {OrderID: "T2"}}},
		&stubProvider{statuses: map[string]string{"T1": "success", "T2": "pending"}},
		reconciler,
		logging.NewNop(),
	)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		monitor.Run()
	}()

	assert.Eventually(t, func() bool {
		return len(reconciler.received()) > 0
	}, time.Second, 5*time.Millisecond)
	monitor.Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	for _, n := range reconciler.received() {
		assert.Equal(t, "T1", n.TransactionID)
	}
}
