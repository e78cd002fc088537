package dto

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/service"
)

// BoostIntentRequest payload.
type BoostIntentRequest struct {
	IssueID string `json:"issueId"`
}

// BoostConfirmRequest payload.
type BoostConfirmRequest struct {
	IssueID       string `json:"issueId"`
	TransactionID string `json:"transactionId"`
}

// SubscriptionConfirmRequest payload.
type SubscriptionConfirmRequest struct {
	TransactionID string `json:"transactionId"`
}

// IntentResponse gives the client what it needs to pay.
type IntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"intentId"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// PaymentResponse renders a ledger entry.
type PaymentResponse struct {
	ID            string               `json:"id"`
	Email         string               `json:"email"`
	IssueID       *string              `json:"issueId,omitempty"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Type          domain.PaymentType   `json:"type"`
	TransactionID string               `json:"transactionId"`
	Source        domain.PaymentSource `json:"source"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// SettlementResponse reports a confirmation outcome.
type SettlementResponse struct {
	Duplicate bool             `json:"duplicate"`
	Payment   *PaymentResponse `json:"payment,omitempty"`
	Issue     *IssueResponse   `json:"issue,omitempty"`
	User      *UserResponse    `json:"user,omitempty"`
}

// NewIntentResponse maps an intent result.
func NewIntentResponse(r *service.IntentResult) IntentResponse {
	return IntentResponse{
		ClientSecret: r.ClientSecret,
		IntentID:     r.IntentID,
		Amount:       r.Amount,
		Currency:     r.Currency,
	}
}

// NewPaymentResponse maps a payment.
func NewPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		Email:         p.Email,
		IssueID:       p.IssueID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Type:          p.Type,
		TransactionID: p.TransactionID,
		Source:        p.Source,
		CreatedAt:     p.CreatedAt,
	}
}

// NewPaymentsResponse maps a payment list.
func NewPaymentsResponse(payments []domain.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, NewPaymentResponse(&payments[i]))
	}
	return out
}

// NewSettlementResponse maps a settlement result.
func NewSettlementResponse(r *service.SettlementResult) SettlementResponse {
	resp := SettlementResponse{Duplicate: r.Duplicate}
	if r.Payment != nil {
		p := NewPaymentResponse(r.Payment)
		resp.Payment = &p
	}
	if r.Issue != nil {
		i := NewIssueResponse(r.Issue)
		resp.Issue = &i
	}
	if r.User != nil {
		u := NewUserResponse(r.User)
		resp.User = &u
	}
	return resp
}
