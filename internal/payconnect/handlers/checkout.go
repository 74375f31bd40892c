package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"payconnect/internal/common/clientprotocol"
	"payconnect/internal/common/upstream"
	"payconnect/internal/payconnect/service"
	"payconnect/pkg/logging"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	WebhookPath          = "/payment-webhook"
)

type CheckoutService interface {
	InitiateCheckout(ctx context.Context, req service.CheckoutRequest) (service.CheckoutResult, error)
}

type CheckoutHandler struct {
	service       CheckoutService
	publicBaseURL string
	logger        *logging.ZapLogger
}

func NewCheckoutHandler(service CheckoutService, publicBaseURL string, logger *logging.ZapLogger) *CheckoutHandler {
	return &CheckoutHandler{
		service:       service,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer closeBody(ctx, r.Body, h.logger)

	input, err := decodeJSON[clientprotocol.CheckoutRequest](http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.DebugCtx(ctx, "error decoding checkout request", zap.Error(err))
		writeResponseJSON(ctx, w, http.StatusBadRequest, clientprotocol.ErrorResponse{Error: "invalid request body"}, h.logger)
		return
	}
	idempotencyKey := input.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = r.Header.Get(IdempotencyKeyHeader)
	}

	res, err := h.service.InitiateCheckout(ctx, service.CheckoutRequest{
		Email:          input.Email,
		Phone:          input.Phone,
		Recipient:      input.Recipient,
		DataPlan:       input.DataPlan,
		Network:        input.Network,
		IdempotencyKey: idempotencyKey,
		CallbackURL:    h.callbackURL(r),
		Amount:         input.Amount,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeResponseJSON(ctx, w, http.StatusOK, clientprotocol.CheckoutResponse{
		OK:                true,
		OrderID:           res.OrderID,
		ProviderReference: res.ProviderReference,
		Network:           string(res.Network),
		Duplicate:         res.Duplicate,
		Provider:          res.ProviderResponse,
		Store: &clientprotocol.StoreInfo{
			RecordID: res.RecordID,
			Status:   string(res.Status),
		},
	}, h.logger)
}

func (h *CheckoutHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var upstreamErr *upstream.Error
	switch {
	case errors.Is(err, service.ErrValidation):
		h.logger.DebugCtx(ctx, "invalid checkout request", zap.Error(err))
		writeResponseJSON(ctx, w, http.StatusBadRequest, clientprotocol.ErrorResponse{Error: err.Error()}, h.logger)
	case errors.As(err, &upstreamErr) && upstreamErr.Service == upstream.Provider:
		h.logger.ErrorCtx(ctx, "payment provider rejected checkout", zap.Error(err))
		writeResponseJSON(ctx, w, http.StatusBadGateway, clientprotocol.CheckoutResponse{
			Error:    "payment provider error",
			Provider: rawOrString(upstreamErr.Body),
		}, h.logger)
	case errors.As(err, &upstreamErr):
		h.logger.ErrorCtx(ctx, "order store failed during checkout", zap.Error(err))
		writeResponseJSON(ctx, w, http.StatusBadGateway, clientprotocol.ErrorResponse{Error: "order store error"}, h.logger)
	default:
		h.logger.ErrorCtx(ctx, "checkout handler error", zap.Error(err))
		writeResponseJSON(ctx, w, http.StatusInternalServerError, clientprotocol.ErrorResponse{Error: "internal error"}, h.logger)
	}
}

func (h *CheckoutHandler) callbackURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + WebhookPath
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return scheme + "://" + host + WebhookPath
}
