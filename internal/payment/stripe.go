package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// minorUnits converts major currency units to the processor's smallest unit.
const minorUnits = 100

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	MaxRetries    int
}

// StripeProcessor implements Processor on the Stripe API.
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
	maxRetries    uint64
	logger        *zap.Logger
}

// NewStripeProcessor builds a processor bound to the given credentials.
func NewStripeProcessor(cfg StripeConfig, logger *zap.Logger) *StripeProcessor {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &StripeProcessor{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		maxRetries:    uint64(retries),
		logger:        logger,
	}
}

func (p *StripeProcessor) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var created *stripe.PaymentIntent
	err := p.retry(ctx, "create_intent", func() error {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(req.Amount * minorUnits),
			Currency: stripe.String(strings.ToLower(req.Currency)),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		params.Context = ctx
		for key, value := range req.Metadata {
			params.AddMetadata(key, value)
		}
		pi, err := p.api.PaymentIntents.New(params)
		if err != nil {
			return classify(err)
		}
		created = pi
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return fromStripe(created), nil
}

func (p *StripeProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	var found *stripe.PaymentIntent
	err := p.retry(ctx, "get_intent", func() error {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := p.api.PaymentIntents.Get(id, params)
		if err != nil {
			return classify(err)
		}
		found = pi
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get payment intent %s: %w", id, err)
	}
	return fromStripe(found), nil
}

func (p *StripeProcessor) ParseEvent(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &Event{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(result.Type, "payment_intent.") {
		return result, nil
	}
	if event.Data == nil {
		return nil, ErrMalformedEvent
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	result.Intent = fromStripe(&pi)
	return result, nil
}

func (p *StripeProcessor) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, p.maxRetries), ctx)
	return backoff.RetryNotify(fn, b, func(err error, wait time.Duration) {
		if p.logger != nil {
			p.logger.Warn("payment processor call failed, retrying",
				zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
		}
	})
}

// classify marks errors the processor will keep returning as permanent.
func classify(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return err
		}
		return backoff.Permanent(err)
	}
	return err
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	metadata := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		metadata[k] = v
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount / minorUnits,
		Currency:     string(pi.Currency),
		Metadata:     metadata,
	}
}
