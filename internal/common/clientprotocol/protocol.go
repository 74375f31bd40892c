package clientprotocol

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	Email          string              `json:"email"`
	Phone          string              `json:"phone"`
	Recipient      string              `json:"recipient"`
	DataPlan       string              `json:"dataPlan"`
	Network        string              `json:"network"`
	IdempotencyKey string              `json:"idempotencyKey"`
	Amount         decimal.NullDecimal `json:"amount"`
}

type CheckoutResponse struct {
	OK                bool            `json:"ok"`
	OrderID           string          `json:"orderId,omitempty"`
	ProviderReference string          `json:"providerReference,omitempty"`
	Network           string          `json:"network,omitempty"`
	Duplicate         bool            `json:"duplicate,omitempty"`
	Provider          json.RawMessage `json:"provider,omitempty"`
	Store             *StoreInfo      `json:"store,omitempty"`
	Error             string          `json:"error,omitempty"`
}

type StoreInfo struct {
	RecordID string `json:"recordId"`
	Status   string `json:"status"`
}

type WebhookResponse struct {
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

type StatusResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
