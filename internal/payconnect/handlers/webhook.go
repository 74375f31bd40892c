package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/common/clientprotocol"
	"payconnect/internal/payconnect/service"
	"payconnect/pkg/logging"
)

type Reconciler interface {
	Reconcile(ctx context.Context, n service.Notification) (service.Outcome, error)
}

// WebhookHandler receives payment notifications. Once a notification names
// an order it is always acknowledged, so the provider does not keep
// redelivering it; failures are logged and reported as a warning.
type WebhookHandler struct {
	reconciler Reconciler
	logger     *logging.ZapLogger
}

func NewWebhookHandler(reconciler Reconciler, logger *logging.ZapLogger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer closeBody(ctx, r.Body, h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.DebugCtx(ctx, "error reading webhook body", zap.Error(err))
		writeResponseJSON(ctx, w, http.StatusBadRequest, clientprotocol.ErrorResponse{Error: "invalid request body"}, h.logger)
		return
	}
	var notification bulkclixprotocol.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		h.logger.DebugCtx(ctx, "error decoding webhook", zap.Error(err))
		writeResponseJSON(ctx, w, http.StatusBadRequest, clientprotocol.ErrorResponse{Error: "invalid JSON"}, h.logger)
		return
	}
	transactionID := notification.CorrelationID()
	if transactionID == "" {
		h.logger.WarnCtx(ctx, "webhook without transaction id", zap.ByteString("body", body))
		writeResponseJSON(ctx, w, http.StatusBadRequest, clientprotocol.ErrorResponse{Error: "missing transaction_id"}, h.logger)
		return
	}

	outcome, err := h.reconciler.Reconcile(ctx, service.Notification{
		TransactionID: transactionID,
		Status:        notification.PaymentStatus(),
		Source:        service.SourceWebhook,
		Raw:           body,
	})
	res := clientprotocol.WebhookResponse{
		OK:      true,
		Outcome: string(outcome),
	}
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeResponseJSON(ctx, w, http.StatusBadRequest, clientprotocol.ErrorResponse{Error: err.Error()}, h.logger)
			return
		}
		h.logger.ErrorCtx(ctx, "webhook processing failed", zap.String("orderId", transactionID), zap.Error(err))
		res.Warning = err.Error()
	}
	writeResponseJSON(ctx, w, http.StatusOK, res, h.logger)
}
