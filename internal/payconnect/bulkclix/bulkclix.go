package bulkclix

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"payconnect/internal/common/bulkclixprotocol"
	"payconnect/internal/common/upstream"
	"payconnect/pkg/logging"
)

const (
	DefaultBaseURL = "https://api.bulkclix.com"

	chargePath      = "/api/v1/payment-api/momopay"
	checkStatusPath = "/api/v1/payment-api/checkstatus/{transactionId}"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the BulkClix mobile money API.
type Client struct {
	client *resty.Client
	logger *logging.ZapLogger
}

func New(cfg Config, logger *logging.ZapLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("x-api-key", cfg.APIKey)
	return &Client{
		client: client,
		logger: logger,
	}
}

func (c *Client) Charge(
	ctx context.Context,
	req bulkclixprotocol.ChargeRequest,
) (bulkclixprotocol.ChargeResult, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(chargePath)
	if err != nil {
		return bulkclixprotocol.ChargeResult{}, upstream.Wrap(upstream.Provider, fmt.Errorf("charge request failed: %w", err))
	}
	if !resp.IsSuccess() {
		c.logger.ErrorCtx(
			ctx,
			"provider rejected charge",
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()),
		)
		return bulkclixprotocol.ChargeResult{}, &upstream.Error{
			Service:    upstream.Provider,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}
	var parsed bulkclixprotocol.ChargeResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return bulkclixprotocol.ChargeResult{}, &upstream.Error{
			Service:    upstream.Provider,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
			Err:        fmt.Errorf("malformed charge response: %w", err),
		}
	}
	c.logger.DebugCtx(ctx, "charge initiated", zap.String("transactionId", req.TransactionID))
	return bulkclixprotocol.ChargeResult{
		Reference: parsed.Reference(),
		Raw:       resp.Body(),
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, transactionID string) (bulkclixprotocol.StatusResult, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("transactionId", transactionID).
		Get(checkStatusPath)
	if err != nil {
		return bulkclixprotocol.StatusResult{}, upstream.Wrap(upstream.Provider, fmt.Errorf("status request failed: %w", err))
	}
	if !resp.IsSuccess() {
		return bulkclixprotocol.StatusResult{}, &upstream.Error{
			Service:    upstream.Provider,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}
	var parsed bulkclixprotocol.StatusResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return bulkclixprotocol.StatusResult{}, &upstream.Error{
			Service:    upstream.Provider,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
			Err:        fmt.Errorf("malformed status response: %w", err),
		}
	}
	return bulkclixprotocol.StatusResult{
		Status: parsed.PaymentStatus(),
		Raw:    resp.Body(),
	}, nil
}
