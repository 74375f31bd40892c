package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"payconnect/internal/common/upstream"
	"payconnect/internal/payconnect/data"
	"payconnect/pkg/logging"
)

const (
	DefaultBaseURL = "https://api.airtable.com/v0"

	tablePath  = "/{base}/{table}"
	recordPath = "/{base}/{table}/{recordId}"
)

const (
	fieldOrderID           = "Order ID"
	fieldTransactionID     = "Transaction ID"
	fieldIdempotencyKey    = "Idempotency Key"
	fieldEmail             = "Email"
	fieldDataPlan          = "Data Plan"
	fieldNetwork           = "Network"
	fieldAmount            = "Amount"
	fieldCustomerPhone     = "Customer Phone"
	fieldRecipient         = "Data Recipient Number"
	fieldStatus            = "Status"
	fieldProviderReference = "Provider Reference"
	fieldNotificationSent  = "Hubtel Sent"
	fieldResponseLog       = "Hubtel Response"
)

type Config struct {
	BaseURL string
	APIKey  string
	Base    string
	Table   string
	Timeout time.Duration
}

type fields struct {
	OrderID           string      `json:"Order ID,omitempty"`
	TransactionID     string      `json:"Transaction ID,omitempty"`
	IdempotencyKey    string      `json:"Idempotency Key,omitempty"`
	Email             string      `json:"Email,omitempty"`
	DataPlan          string      `json:"Data Plan,omitempty"`
	Network           string      `json:"Network,omitempty"`
	Amount            json.Number `json:"Amount,omitempty"`
	CustomerPhone     string      `json:"Customer Phone,omitempty"`
	Recipient         string      `json:"Data Recipient Number,omitempty"`
	Status            string      `json:"Status,omitempty"`
	ProviderReference string      `json:"Provider Reference,omitempty"`
	NotificationSent  bool        `json:"Hubtel Sent,omitempty"`
	ResponseLog       string      `json:"Hubtel Response,omitempty"`
}

type record struct {
	ID          string `json:"id,omitempty"`
	CreatedTime string `json:"createdTime,omitempty"`
	Fields      fields `json:"fields"`
}

type listResponse struct {
	Records []record `json:"records"`
}

// Store keeps orders as rows of an Airtable table. Airtable has no
// conditional writes, so read-then-update sequences rely on the caller
// holding the per-order lock.
type Store struct {
	client *resty.Client
	logger *logging.ZapLogger
}

func New(cfg Config, logger *logging.ZapLogger) *Store {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetPathParams(map[string]string{
			"base":  cfg.Base,
			"table": cfg.Table,
		})
	return &Store{
		client: client,
		logger: logger,
	}
}

func (s *Store) InsertOrder(ctx context.Context, order *data.Order) error {
	body := map[string]any{
		"fields": fields{
			OrderID:        order.OrderID,
			TransactionID:  order.OrderID,
			IdempotencyKey: order.IdempotencyKey,
			Email:          order.Email,
			DataPlan:       order.DataPlan,
			Network:        string(order.Network),
			Amount:         json.Number(order.Amount.String()),
			CustomerPhone:  order.CustomerPhone,
			Recipient:      order.RecipientNumber,
			Status:         string(order.Status),
		},
	}
	var created record
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&created).
		Post(tablePath)
	if err := checkResponse(resp, err); err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	order.RecordID = created.ID
	if createdAt, err := time.Parse(time.RFC3339, created.CreatedTime); err == nil {
		order.CreatedAt = createdAt
	}
	s.logger.DebugCtx(ctx, "record created", zap.String("recordId", created.ID), zap.String("orderId", order.OrderID))
	return nil
}

func (s *Store) GetOrderByOrderID(ctx context.Context, orderID string) (data.Order, error) {
	return s.findOne(ctx, fmt.Sprintf("{%s} = %s", fieldTransactionID, quote(orderID)))
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (data.Order, error) {
	return s.findOne(ctx, fmt.Sprintf("{%s} = %s", fieldIdempotencyKey, quote(key)))
}

// GetPendingOrders returns pending orders whose customer has not been
// notified yet, oldest first.
func (s *Store) GetPendingOrders(ctx context.Context, limit int) ([]data.Order, error) {
	formula := fmt.Sprintf(
		"AND({%s} = %s, NOT({%s}))",
		fieldStatus,
		quote(string(data.PendingStatus)),
		fieldNotificationSent,
	)
	records, err := s.list(ctx, formula, limit)
	if err != nil {
		return nil, err
	}
	res := make([]data.Order, 0, len(records))
	for _, r := range records {
		res = append(res, toOrder(r))
	}
	return res, nil
}

func (s *Store) ClaimNotification(ctx context.Context, order data.Order) (bool, error) {
	current, err := s.get(ctx, order.RecordID)
	if err != nil {
		return false, err
	}
	if current.Fields.NotificationSent {
		return false, nil
	}
	if err := s.patch(ctx, order.RecordID, map[string]any{fieldNotificationSent: true}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ReleaseNotification(ctx context.Context, order data.Order) error {
	return s.patch(ctx, order.RecordID, map[string]any{fieldNotificationSent: false})
}

func (s *Store) AppendResponseLog(ctx context.Context, order data.Order, entry string) error {
	current, err := s.get(ctx, order.RecordID)
	if err != nil {
		return err
	}
	return s.patch(ctx, order.RecordID, map[string]any{
		fieldResponseLog: data.AppendLog(current.Fields.ResponseLog, entry),
	})
}

func (s *Store) SetProviderResponse(ctx context.Context, order data.Order, reference string, entry string) error {
	current, err := s.get(ctx, order.RecordID)
	if err != nil {
		return err
	}
	return s.patch(ctx, order.RecordID, map[string]any{
		fieldProviderReference: reference,
		fieldResponseLog:       data.AppendLog(current.Fields.ResponseLog, entry),
	})
}

func (s *Store) SetOrderStatus(ctx context.Context, order data.Order, status data.Status) error {
	return s.patch(ctx, order.RecordID, map[string]any{fieldStatus: string(status)})
}

func (s *Store) findOne(ctx context.Context, formula string) (data.Order, error) {
	records, err := s.list(ctx, formula, 1)
	if err != nil {
		return data.Order{}, err
	}
	if len(records) == 0 {
		return data.Order{}, data.ErrOrderNotFound
	}
	return toOrder(records[0]), nil
}

func (s *Store) list(ctx context.Context, formula string, limit int) ([]record, error) {
	var res listResponse
	req := s.client.R().
		SetContext(ctx).
		SetQueryParam("filterByFormula", formula).
		SetResult(&res)
	if limit > 0 {
		req.SetQueryParam("maxRecords", strconv.Itoa(limit))
	}
	resp, err := req.Get(tablePath)
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return res.Records, nil
}

func (s *Store) get(ctx context.Context, recordID string) (record, error) {
	if recordID == "" {
		return record{}, data.ErrOrderNotFound
	}
	var res record
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("recordId", recordID).
		SetResult(&res).
		Get(recordPath)
	if err == nil && resp.StatusCode() == 404 {
		return record{}, data.ErrOrderNotFound
	}
	if err := checkResponse(resp, err); err != nil {
		return record{}, fmt.Errorf("failed to get record %s: %w", recordID, err)
	}
	return res, nil
}

func (s *Store) patch(ctx context.Context, recordID string, update map[string]any) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("recordId", recordID).
		SetBody(map[string]any{"fields": update}).
		Patch(recordPath)
	if err := checkResponse(resp, err); err != nil {
		return fmt.Errorf("failed to update record %s: %w", recordID, err)
	}
	return nil
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return upstream.Wrap(upstream.Store, err)
	}
	if !resp.IsSuccess() {
		return &upstream.Error{
			Service:    upstream.Store,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}
	return nil
}

func toOrder(r record) data.Order {
	order := data.Order{
		RecordID:          r.ID,
		OrderID:           r.Fields.OrderID,
		IdempotencyKey:    r.Fields.IdempotencyKey,
		Email:             r.Fields.Email,
		CustomerPhone:     r.Fields.CustomerPhone,
		RecipientNumber:   r.Fields.Recipient,
		DataPlan:          r.Fields.DataPlan,
		Network:           data.Network(r.Fields.Network),
		ProviderReference: r.Fields.ProviderReference,
		ResponseLog:       r.Fields.ResponseLog,
		Status:            data.Status(r.Fields.Status),
		NotificationSent:  r.Fields.NotificationSent,
	}
	if order.OrderID == "" {
		order.OrderID = r.Fields.TransactionID
	}
	if order.Status == data.NullStatus {
		order.Status = data.PendingStatus
	}
	if amount, err := decimal.NewFromString(r.Fields.Amount.String()); err == nil {
		order.Amount = amount
	}
	if createdAt, err := time.Parse(time.RFC3339, r.CreatedTime); err == nil {
		order.CreatedAt = createdAt
	}
	return order
}

// quote renders value as an Airtable formula string literal.
func quote(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + replacer.Replace(value) + "'"
}
