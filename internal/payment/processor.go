// Package payment adapts the external payment processor.
package payment

import (
	"context"
	"errors"
)

// Metadata keys attached to every intent.
const (
	MetaType    = "type"
	MetaIssueID = "issueId"
	MetaEmail   = "email"
)

// Intent states reported by the processor.
const (
	StatusSucceeded = "succeeded"
)

// EventIntentSucceeded is the only event type that settles a payment.
const EventIntentSucceeded = "payment_intent.succeeded"

var (
	// ErrInvalidSignature marks a webhook whose signature did not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent marks a verified webhook whose body could not be decoded.
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrNotConfigured is returned by the disabled processor.
	ErrNotConfigured = errors.New("payment processor not configured")
)

// IntentRequest describes a charge. Amount is in major currency units.
type IntentRequest struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Intent is the processor's view of a charge. Amount is in major currency units.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// Succeeded reports whether the processor captured the funds.
func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == StatusSucceeded
}

// Event is a verified webhook notification. Intent is set for intent events.
type Event struct {
	ID     string
	Type   string
	Intent *Intent
}

// Processor creates and inspects payment intents.
type Processor interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	// ParseEvent verifies the signature over the raw payload before decoding.
	ParseEvent(payload []byte, signature string) (*Event, error)
}

type disabledProcessor struct{}

// NewDisabledProcessor returns a Processor that rejects every call. Used when
// no processor credentials are configured.
func NewDisabledProcessor() Processor {
	return disabledProcessor{}
}

func (disabledProcessor) CreateIntent(context.Context, IntentRequest) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (disabledProcessor) GetIntent(context.Context, string) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (disabledProcessor) ParseEvent([]byte, string) (*Event, error) {
	return nil, ErrInvalidSignature
}
