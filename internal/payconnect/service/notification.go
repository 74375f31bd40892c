package service

import (
	"fmt"

	"payconnect/internal/payconnect/data"
	"payconnect/pkg/phone"
)

const (
	DefaultSupportContact = "233531300654"

	SourceWebhook     = "webhook"
	SourceStatusCheck = "status check"
)

type Outcome string

const (
	OutcomeNotified  = Outcome("notified")
	OutcomeDuplicate = Outcome("duplicate")
	OutcomeRecorded  = Outcome("recorded")
	OutcomeNotFound  = Outcome("not_found")
	OutcomeFailed    = Outcome("failed")
)

// Notification is a payment outcome reported for one of our orders, either
// pushed by the provider or found by polling its status endpoint.
type Notification struct {
	TransactionID string
	Status        string
	Source        string
	Raw           []byte
}

// confirmationMessage is built from the stored order only, never from the
// notification body.
func confirmationMessage(order data.Order, supportContact string) string {
	recipient, err := phone.Local(order.RecipientNumber)
	if err != nil {
		recipient = order.RecipientNumber
	}
	return fmt.Sprintf(
		"Your data purchase of %s for %s has been processed and will be delivered in 30 minutes to 4 hours. "+
			"Order ID: %s. For support, WhatsApp: %s.",
		order.DataPlan,
		recipient,
		order.OrderID,
		supportContact,
	)
}
