package data

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	NullStatus      = Status("")
	PendingStatus   = Status("Pending")
	CompletedStatus = Status("Completed")
	FailedStatus    = Status("Failed")
)

// CanTransitionTo reports whether a stored order may move from s to next.
// Terminal statuses never change.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case NullStatus:
		return next == PendingStatus
	case PendingStatus:
		return next == CompletedStatus || next == FailedStatus
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == CompletedStatus || s == FailedStatus
}

type Order struct {
	CreatedAt         time.Time
	RecordID          string
	OrderID           string
	IdempotencyKey    string
	Email             string
	CustomerPhone     string
	RecipientNumber   string
	DataPlan          string
	Network           Network
	ProviderReference string
	ResponseLog       string
	Status            Status
	Amount            decimal.Decimal
	NotificationSent  bool
}
