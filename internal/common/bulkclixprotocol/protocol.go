package bulkclixprotocol

import (
	"encoding/json"
	"strings"
)

type ChargeRequest struct {
	Amount        json.Number `json:"amount"`
	PhoneNumber   string      `json:"phone_number"`
	Network       string      `json:"network"`
	TransactionID string      `json:"transaction_id"`
	CallbackURL   string      `json:"callback_url"`
	Reference     string      `json:"reference"`
}

type ChargeResponse struct {
	Message string `json:"message"`
	Data    struct {
		TransactionID    string `json:"transaction_id"`
		ExtTransactionID string `json:"ext_transaction_id"`
	} `json:"data"`
}

// Reference is the provider's own id for the charge, if it returned one.
func (r ChargeResponse) Reference() string {
	if r.Data.ExtTransactionID != "" {
		return r.Data.ExtTransactionID
	}
	return r.Data.TransactionID
}

type ChargeResult struct {
	Reference string
	Raw       json.RawMessage
}

// Notification is the body the provider posts to the callback URL. Phone
// number and amount are informational and kept raw, so a notification is
// never rejected over their format.
type Notification struct {
	TransactionID    string          `json:"transaction_id"`
	ExtTransactionID string          `json:"ext_transaction_id"`
	Status           string          `json:"status"`
	PhoneNumber      json.RawMessage `json:"phone_number"`
	Amount           json.RawMessage `json:"amount"`
	Data             *struct {
		TransactionID    string `json:"transaction_id"`
		ExtTransactionID string `json:"ext_transaction_id"`
		Status           string `json:"status"`
	} `json:"data"`
}

// CorrelationID returns our transaction id, looking into the nested data
// object when the provider wraps the payload.
func (n Notification) CorrelationID() string {
	switch {
	case n.TransactionID != "":
		return n.TransactionID
	case n.Data == nil:
		return ""
	case n.Data.TransactionID != "":
		return n.Data.TransactionID
	}
	return n.Data.ExtTransactionID
}

func (n Notification) PaymentStatus() string {
	if n.Status == "" && n.Data != nil {
		return n.Data.Status
	}
	return n.Status
}

type StatusResponse struct {
	Status string `json:"status"`
	Data   *struct {
		Status string `json:"status"`
	} `json:"data"`
}

type StatusResult struct {
	Status string
	Raw    json.RawMessage
}

func (r StatusResponse) PaymentStatus() string {
	if r.Data != nil && r.Data.Status != "" {
		return r.Data.Status
	}
	return r.Status
}

var (
	successWords = map[string]struct{}{"success": {}, "successful": {}, "succeeded": {}}
	failureWords = map[string]struct{}{
		"fail": {}, "failed": {}, "failure": {}, "unsuccessful": {}, "declined": {},
	}
	negationWords = map[string]struct{}{"not": {}, "no": {}, "un": {}}
)

// IsSuccess reports whether status names a successful payment. Words are
// matched whole, so "unsuccessful" and "not successful" are not successes.
func IsSuccess(status string) bool {
	words := statusWords(status)
	if containsAny(words, negationWords) || containsAny(words, failureWords) {
		return false
	}
	return containsAny(words, successWords)
}

func IsFailure(status string) bool {
	words := statusWords(status)
	if containsAny(words, failureWords) {
		return true
	}
	return containsAny(words, negationWords) && containsAny(words, successWords)
}

func statusWords(status string) []string {
	return strings.FieldsFunc(strings.ToLower(status), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
}

func containsAny(words []string, set map[string]struct{}) bool {
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
