package hubtel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"payconnect/internal/common/upstream"
	"payconnect/pkg/logging"
)

const (
	DefaultBaseURL = "https://smsc.hubtel.com"

	sendPath = "/v1/messages/send"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Sender       string
	Timeout      time.Duration
}

type Client struct {
	client *resty.Client
	cfg    Config
	logger *logging.ZapLogger
}

func New(cfg Config, logger *logging.ZapLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout),
		cfg:    cfg,
		logger: logger,
	}
}

// Send delivers content to an already normalized number and returns the
// response body. Bodies that are not JSON are wrapped as {"raw": ...}.
func (c *Client) Send(ctx context.Context, to string, content string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"clientid":     c.cfg.ClientID,
			"clientsecret": c.cfg.ClientSecret,
			"from":         c.cfg.Sender,
			"to":           to,
			"content":      content,
		}).
		Get(sendPath)
	if err != nil {
		return nil, upstream.Wrap(upstream.SMS, fmt.Errorf("send request failed: %w", err))
	}
	body := resp.Body()
	if !json.Valid(body) {
		body, _ = json.Marshal(map[string]string{"raw": string(body)})
	}
	if !resp.IsSuccess() {
		c.logger.ErrorCtx(ctx, "sms rejected", zap.Int("status", resp.StatusCode()), zap.ByteString("body", body))
		return body, &upstream.Error{
			Service:    upstream.SMS,
			StatusCode: resp.StatusCode(),
			Body:       string(body),
		}
	}
	c.logger.DebugCtx(ctx, "sms sent", zap.String("to", to))
	return body, nil
}
