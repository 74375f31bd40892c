package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/common/upstream"
	"payconnect/internal/payconnect/data"
	"payconnect/internal/payconnect/service"
	"payconnect/pkg/logging"
)

type stubCheckout struct {
	received []service.CheckoutRequest
	res      service.CheckoutResult
	err      error
}

func (s *stubCheckout) InitiateCheckout(_ context.Context, req service.CheckoutRequest) (service.CheckoutResult, error) {
	s.received = append(s.received, req)
	return s.res, s.err
}

type stubReconciler struct {
	received []service.Notification
	outcome  service.Outcome
	err      error
}

func (s *stubReconciler) Reconcile(_ context.Context, n service.Notification) (service.Outcome, error) {
	s.received = append(s.received, n)
	return s.outcome, s.err
}

type stubStatusChecker struct {
	transactionID string
	res           bulkclixprotocol.StatusResult
	err           error
}

func (s *stubStatusChecker) CheckStatus(_ context.Context, transactionID string) (bulkclixprotocol.StatusResult, error) {
	s.transactionID = transactionID
	return s.res, s.err
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCheckoutHandler_Success(t *testing.T) {
	checkout := &stubCheckout{res: service.CheckoutResult{
		OrderID:           "T1",
		RecordID:          "rec1",
		ProviderReference: "ext-1",
		Network:           data.MTN,
		Status:            data.PendingStatus,
		ProviderResponse:  json.RawMessage(`{"message":"ok"}`),
	}}
	handler := NewCheckoutHandler(checkout, "https://relay.example.com/", logging.NewNop())
	req := httptest.NewRequest(
		http.MethodPost,
		"/checkout",
		strings.NewReader(`{"phone":"0241234567","recipient":"0241234567","dataPlan":"MTN 1GB","amount":"5.00"}`),
	)
	req.Header.Set(IdempotencyKeyHeader, "key-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"ok": true,
		"orderId": "T1",
		"providerReference": "ext-1",
		"network": "MTN",
		"provider": {"message":"ok"},
		"store": {"recordId":"rec1","status":"Pending"}
	}`, rec.Body.String())
	require.Len(t, checkout.received, 1)
	got := checkout.received[0]
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.Equal(t, "https://relay.example.com/payment-webhook", got.CallbackURL)
	assert.True(t, got.Amount.Valid)
	assert.Equal(t, "5", got.Amount.Decimal.String())
}

func TestCheckoutHandler_CallbackFromRequest(t *testing.T) {
	checkout := &stubCheckout{}
	handler := NewCheckoutHandler(checkout, "", logging.NewNop())
	req := httptest.NewRequest(http.MethodPost, "http://relay.local/checkout", strings.NewReader(`{}`))
	req.Header.Set("X-Forwarded-Proto", "https")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, checkout.received, 1)
	assert.Equal(t, "https://relay.local/payment-webhook", checkout.received[0].CallbackURL)
}

func TestCheckoutHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		expected int
		provider bool
	}{
		{name: "malformed json", body: `{"amount":`, expected: http.StatusBadRequest},
		{name: "malformed amount", body: `{"amount":"abc"}`, expected: http.StatusBadRequest},
		{name: "validation", body: `{}`, err: service.NewValidationError("amount", "is required"), expected: http.StatusBadRequest},
		{
			name:     "provider",
			body:     `{}`,
			err:      &upstream.Error{Service: upstream.Provider, StatusCode: 401, Body: `{"message":"bad key"}`},
			expected: http.StatusBadGateway,
			provider: true,
		},
		{name: "store", body: `{}`, err: upstream.Wrap(upstream.Store, errors.New("down")), expected: http.StatusBadGateway},
		{name: "other", body: `{}`, err: errors.New("boom"), expected: http.StatusInternalServerError},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			handler := NewCheckoutHandler(&stubCheckout{err: test.err}, "", logging.NewNop())
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(test.body)))

			assert.Equal(t, test.expected, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.NotEmpty(t, body["error"])
			if test.provider {
				assert.Equal(t, map[string]any{"message": "bad key"}, body["provider"])
			}
		})
	}
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		outcome       service.Outcome
		err           error
		expected      int
		transactionID string
		warning       bool
	}{
		{
			name:          "top level id",
			body:          `{"transaction_id":"T1","status":"success","amount":"5"}`,
			outcome:       service.OutcomeNotified,
			expected:      http.StatusOK,
			transactionID: "T1",
		},
		{
			name:          "nested id",
			body:          `{"data":{"ext_transaction_id":"T2","status":"failed"}}`,
			outcome:       service.OutcomeRecorded,
			expected:      http.StatusOK,
			transactionID: "T2",
		},
		{
			name:          "failure is acknowledged",
			body:          `{"transaction_id":"T3","status":"success"}`,
			outcome:       service.OutcomeFailed,
			err:           upstream.Wrap(upstream.SMS, errors.New("hubtel down")),
			expected:      http.StatusOK,
			transactionID: "T3",
			warning:       true,
		},
		{
			name:          "unparseable amount is acknowledged",
			body:          `{"transaction_id":"T4","status":"success","amount":"","phone_number":233241234567}`,
			outcome:       service.OutcomeNotified,
			expected:      http.StatusOK,
			transactionID: "T4",
		},
		{
			name:          "amount with currency is acknowledged",
			body:          `{"transaction_id":"T5","status":"success","amount":"GHS 10"}`,
			outcome:       service.OutcomeNotified,
			expected:      http.StatusOK,
			transactionID: "T5",
		},
		{name: "malformed", body: `{"transaction_id":`, expected: http.StatusBadRequest},
		{name: "missing id", body: `{"status":"success"}`, expected: http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			reconciler := &stubReconciler{outcome: test.outcome, err: test.err}
			handler := NewWebhookHandler(reconciler, logging.NewNop())
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(test.body)))

			require.Equal(t, test.expected, rec.Code)
			body := decodeBody(t, rec)
			if test.expected != http.StatusOK {
				assert.Equal(t, false, body["ok"])
				assert.Empty(t, reconciler.received)
				return
			}
			assert.Equal(t, true, body["ok"])
			assert.Equal(t, string(test.outcome), body["outcome"])
			if test.warning {
				assert.NotEmpty(t, body["warning"])
			} else {
				assert.NotContains(t, body, "warning")
			}
			require.Len(t, reconciler.received, 1)
			assert.Equal(t, test.transactionID, reconciler.received[0].TransactionID)
			assert.Equal(t, service.SourceWebhook, reconciler.received[0].Source)
			assert.JSONEq(t, test.body, string(reconciler.received[0].Raw))
		})
	}
}

func TestStatusCheckingHandler(t *testing.T) {
	checker := &stubStatusChecker{res: bulkclixprotocol.StatusResult{
		Status: "success",
		Raw:    json.RawMessage(`{"status":"success"}`),
	}}
	router := chi.NewRouter()
	router.Get("/check-status/{"+TransactionIDParam+"}", NewStatusCheckingHandler(checker, logging.NewNop()).ServeHTTP)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check-status/T9", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "T9", checker.transactionID)
	assert.JSONEq(t, `{"ok":true,"data":{"status":"success"}}`, rec.Body.String())
}

func TestStatusCheckingHandler_ProviderError(t *testing.T) {
	checker := &stubStatusChecker{err: &upstream.Error{Service: upstream.Provider, StatusCode: 404, Body: "not found"}}
	router := chi.NewRouter()
	router.Get("/check-status/{"+TransactionIDParam+"}", NewStatusCheckingHandler(checker, logging.NewNop()).ServeHTTP)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check-status/T9", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"not found"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
