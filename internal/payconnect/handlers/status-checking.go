package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/common/clientprotocol"
	"payconnect/internal/common/upstream"
	"payconnect/pkg/logging"
)

const TransactionIDParam = "transactionId"

type StatusChecker interface {
	CheckStatus(ctx context.Context, transactionID string) (bulkclixprotocol.StatusResult, error)
}

type StatusCheckingHandler struct {
	provider StatusChecker
	logger   *logging.ZapLogger
}

func NewStatusCheckingHandler(provider StatusChecker, logger *logging.ZapLogger) *StatusCheckingHandler {
	return &StatusCheckingHandler{
		provider: provider,
		logger:   logger,
	}
}

func (h *StatusCheckingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transactionID := strings.TrimSpace(chi.URLParam(r, TransactionIDParam))
	if transactionID == "" {
		writeResponseJSON(ctx, w, http.StatusBadRequest, clientprotocol.ErrorResponse{Error: "missing transaction id"}, h.logger)
		return
	}

	res, err := h.provider.CheckStatus(ctx, transactionID)
	if err != nil {
		h.logger.ErrorCtx(ctx, "status check failed", zap.String("transactionId", transactionID), zap.Error(err))
		msg := "payment provider error"
		var upstreamErr *upstream.Error
		if errors.As(err, &upstreamErr) && upstreamErr.Body != "" {
			msg = upstreamErr.Body
		}
		writeResponseJSON(ctx, w, http.StatusBadGateway, clientprotocol.StatusResponse{Error: msg}, h.logger)
		return
	}
	writeResponseJSON(ctx, w, http.StatusOK, clientprotocol.StatusResponse{OK: true, Data: res.Raw}, h.logger)
}
