package domain

import "time"

// PaymentType differentiates what a payment bought.
type PaymentType string

const (
	PaymentTypeBoost        PaymentType = "boost"
	PaymentTypeSubscription PaymentType = "subscription"
)

// PaymentSource records which path settled the payment.
type PaymentSource string

const (
	PaymentSourceConfirm PaymentSource = "confirm"
	PaymentSourceWebhook PaymentSource = "webhook"
)

// Payment is an append-only ledger entry keyed by the processor transaction id.
type Payment struct {
	ID            string
	Email         string
	IssueID       *string
	Amount        int64
	Currency      string
	Type          PaymentType
	TransactionID string
	Source        PaymentSource
	CreatedAt     time.Time
}
