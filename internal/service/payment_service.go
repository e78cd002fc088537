package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/payment"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util"
)

// Settlement outcomes reported to metrics.
const (
	outcomeSettled   = "settled"
	outcomeDuplicate = "duplicate"
	outcomeBusy      = "in_progress"
	outcomeFailed    = "failed"
)

const settlementPollInterval = 50 * time.Millisecond

// PaymentService creates processor intents and settles confirmed payments.
// Settlement is shared by the direct confirmation and webhook paths and is
// idempotent on the processor transaction id.
type PaymentService struct {
	payments  repository.PaymentRepository
	issues    repository.IssueRepository
	users     repository.UserRepository
	timeline  *TimelineService
	processor payment.Processor
	locker    persistence.Locker
	events    eventPublisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	cfg       config.PaymentConfig
	now       func() time.Time
}

// PaymentDependencies bundles collaborators for the payment service.
type PaymentDependencies struct {
	PaymentRepo repository.PaymentRepository
	IssueRepo   repository.IssueRepository
	UserRepo    repository.UserRepository
	Timeline    *TimelineService
	Processor   payment.Processor
	Locker      persistence.Locker
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Config      config.PaymentConfig
}

// IntentResult is what the client needs to complete a payment.
type IntentResult struct {
	ClientSecret string
	IntentID     string
	Amount       int64
	Currency     string
}

// SettlementResult describes the outcome of a settlement attempt.
type SettlementResult struct {
	Payment   *domain.Payment
	Issue     *domain.Issue
	User      *domain.User
	Duplicate bool
}

// WebhookResult reports how a webhook delivery was handled.
type WebhookResult struct {
	EventID    string
	EventType  string
	Handled    bool
	Settlement *SettlementResult
}

type settlementRequest struct {
	TransactionID string
	Email         string
	IssueID       string
	Type          domain.PaymentType
	Amount        int64
	Currency      string
	Source        domain.PaymentSource
}

// NewPaymentService constructs the service.
func NewPaymentService(deps PaymentDependencies) *PaymentService {
	logger := orNop(deps.Logger)
	locker := deps.Locker
	if locker == nil {
		locker = persistence.NewLocalLocker()
	}
	return &PaymentService{
		payments:  deps.PaymentRepo,
		issues:    deps.IssueRepo,
		users:     deps.UserRepo,
		timeline:  deps.Timeline,
		processor: deps.Processor,
		locker:    locker,
		events:    eventPublisher{dispatcher: deps.Dispatcher, logger: logger},
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       deps.Config,
		now:       time.Now,
	}
}

// CreateBoostIntent starts a priority boost payment for an issue.
func (s *PaymentService) CreateBoostIntent(ctx context.Context, actor Actor, issueID string) (*IntentResult, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": issueID})
		}
		return nil, err
	}
	if issue.Priority == domain.IssuePriorityHigh {
		return nil, apperrors.NewConflict("issue already boosted", map[string]any{"id": issueID})
	}
	amount := issue.BoostPrice
	if amount <= 0 {
		amount = s.cfg.BoostAmount
	}
	return s.createIntent(ctx, amount, map[string]string{
		payment.MetaType:    string(domain.PaymentTypeBoost),
		payment.MetaIssueID: issueID,
		payment.MetaEmail:   actor.Email,
	})
}

// CreateSubscriptionIntent starts a premium subscription payment.
func (s *PaymentService) CreateSubscriptionIntent(ctx context.Context, actor Actor) (*IntentResult, error) {
	user, err := s.users.GetByEmail(ctx, actor.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"email": actor.Email})
		}
		return nil, err
	}
	if user.IsSubscribed {
		return nil, apperrors.NewConflict("user already subscribed", nil)
	}
	return s.createIntent(ctx, s.cfg.SubscriptionAmount, map[string]string{
		payment.MetaType:  string(domain.PaymentTypeSubscription),
		payment.MetaEmail: actor.Email,
	})
}

func (s *PaymentService) createIntent(ctx context.Context, amount int64, metadata map[string]string) (*IntentResult, error) {
	intent, err := s.processor.CreateIntent(ctx, payment.IntentRequest{
		Amount:   amount,
		Currency: s.cfg.Currency,
		Metadata: metadata,
	})
	if err != nil {
		s.logger.Error("payment intent creation failed",
			zap.String("type", metadata[payment.MetaType]), zap.Error(err))
		return nil, apperrors.NewIntentCreationFailed(err)
	}
	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		Amount:       amount,
		Currency:     s.cfg.Currency,
	}, nil
}

// ConfirmBoost settles a boost the client reports as paid.
func (s *PaymentService) ConfirmBoost(ctx context.Context, actor Actor, issueID, transactionID string) (*SettlementResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if issueID == "" || transactionID == "" {
		return nil, apperrors.NewValidationError("issue id and transaction id are required", nil)
	}
	req := settlementRequest{
		TransactionID: transactionID,
		Email:         actor.Email,
		IssueID:       issueID,
		Type:          domain.PaymentTypeBoost,
		Amount:        s.cfg.BoostAmount,
		Currency:      s.cfg.Currency,
		Source:        domain.PaymentSourceConfirm,
	}
	if err := s.verifyConfirmation(ctx, &req); err != nil {
		return nil, err
	}
	return s.settle(ctx, req)
}

// ConfirmSubscription settles a subscription the client reports as paid.
func (s *PaymentService) ConfirmSubscription(ctx context.Context, actor Actor, transactionID string) (*SettlementResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, apperrors.NewValidationError("transaction id is required", nil)
	}
	req := settlementRequest{
		TransactionID: transactionID,
		Email:         actor.Email,
		Type:          domain.PaymentTypeSubscription,
		Amount:        s.cfg.SubscriptionAmount,
		Currency:      s.cfg.Currency,
		Source:        domain.PaymentSourceConfirm,
	}
	if err := s.verifyConfirmation(ctx, &req); err != nil {
		return nil, err
	}
	return s.settle(ctx, req)
}

// verifyConfirmation checks the client's claim against the processor and takes
// the captured amount from it.
func (s *PaymentService) verifyConfirmation(ctx context.Context, req *settlementRequest) error {
	if !s.cfg.VerifyConfirmations {
		return nil
	}
	intent, err := s.processor.GetIntent(ctx, req.TransactionID)
	if err != nil {
		s.logger.Warn("payment confirmation lookup failed",
			zap.String("transaction_id", req.TransactionID), zap.Error(err))
		return apperrors.NewPaymentNotConfirmed("payment could not be verified")
	}
	if !intent.Succeeded() {
		return apperrors.NewPaymentNotConfirmed("payment has not succeeded")
	}
	meta := intent.Metadata
	if meta[payment.MetaType] != string(req.Type) || normalizeEmail(meta[payment.MetaEmail]) != req.Email {
		return apperrors.NewPaymentNotConfirmed("payment does not match this request")
	}
	if req.Type == domain.PaymentTypeBoost && meta[payment.MetaIssueID] != req.IssueID {
		return apperrors.NewPaymentNotConfirmed("payment does not match this issue")
	}
	if intent.Amount > 0 {
		req.Amount = intent.Amount
	}
	if intent.Currency != "" {
		req.Currency = intent.Currency
	}
	return nil
}

// HandleWebhook verifies and applies a processor notification.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.processor.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrMalformedEvent) {
			return nil, apperrors.NewValidationError("malformed webhook event", nil)
		}
		return nil, apperrors.NewInvalidSignature(err)
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}
	if event.Type != payment.EventIntentSucceeded || event.Intent == nil {
		return result, nil
	}

	intent := event.Intent
	req := settlementRequest{
		TransactionID: intent.ID,
		Email:         normalizeEmail(intent.Metadata[payment.MetaEmail]),
		IssueID:       intent.Metadata[payment.MetaIssueID],
		Type:          domain.PaymentType(intent.Metadata[payment.MetaType]),
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		Source:        domain.PaymentSourceWebhook,
	}
	if !settleable(req) {
		s.logger.Warn("ignoring payment event without usable metadata",
			zap.String("event_id", event.ID), zap.String("transaction_id", intent.ID))
		return result, nil
	}

	settlement, err := s.settle(ctx, req)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			s.logger.Warn("payment event references missing record",
				zap.String("event_id", event.ID), zap.Error(err))
			return result, nil
		}
		return nil, err
	}
	result.Handled = true
	result.Settlement = settlement
	return result, nil
}

func settleable(req settlementRequest) bool {
	if req.TransactionID == "" || req.Email == "" {
		return false
	}
	switch req.Type {
	case domain.PaymentTypeBoost:
		return req.IssueID != ""
	case domain.PaymentTypeSubscription:
		return true
	}
	return false
}

// settle applies a confirmed payment at most once per transaction id.
func (s *PaymentService) settle(ctx context.Context, req settlementRequest) (*SettlementResult, error) {
	release, settled, err := s.acquireSettlement(ctx, req)
	switch {
	case errors.Is(err, errSettlementBusy):
		s.record(req, outcomeBusy)
		return nil, apperrors.NewSettlementInProgress(req.TransactionID)
	case err != nil:
		s.logger.Warn("settlement lock unavailable, relying on ledger uniqueness",
			zap.String("transaction_id", req.TransactionID), zap.Error(err))
	case settled != nil:
		s.record(req, outcomeDuplicate)
		return &SettlementResult{Payment: settled, Duplicate: true}, nil
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("settlement lock release failed",
					zap.String("transaction_id", req.TransactionID), zap.Error(err))
			}
		}()
	}

	existing, err := s.payments.GetByTransactionID(ctx, req.TransactionID)
	if err == nil {
		s.record(req, outcomeDuplicate)
		return &SettlementResult{Payment: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.record(req, outcomeFailed)
		return nil, err
	}

	result, err := s.applyEffects(ctx, req)
	if err != nil {
		s.record(req, outcomeFailed)
		return nil, err
	}

	record := &domain.Payment{
		ID:            uuid.NewString(),
		Email:         req.Email,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Type:          req.Type,
		TransactionID: req.TransactionID,
		Source:        req.Source,
		CreatedAt:     s.now(),
	}
	if req.IssueID != "" {
		issueID := req.IssueID
		record.IssueID = &issueID
	}
	if err := s.payments.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.record(req, outcomeDuplicate)
			existing, getErr := s.payments.GetByTransactionID(ctx, req.TransactionID)
			if getErr != nil {
				existing = nil
			}
			return &SettlementResult{Payment: existing, Duplicate: true}, nil
		}
		s.logger.Error("payment effects applied but ledger insert failed",
			zap.String("transaction_id", req.TransactionID), zap.Error(err))
		s.record(req, outcomeFailed)
		return nil, err
	}
	result.Payment = record
	s.record(req, outcomeSettled)

	actor := s.payerActor(ctx, req.Email)
	if req.Type == domain.PaymentTypeBoost && result.Issue != nil {
		if _, err := s.timeline.Record(ctx, req.IssueID, result.Issue.Status, MessageIssueBoosted, actor); err != nil {
			s.logger.Warn("timeline append failed after boost",
				zap.String("issue_id", req.IssueID), zap.Error(err))
		}
	}
	s.publishSettled(ctx, req, actor)
	return result, nil
}

var errSettlementBusy = errors.New("settlement lock held")

// acquireSettlement takes the per-transaction lock. While another caller holds
// it, the ledger is polled for up to LockWait; a payment recorded by that
// caller is returned instead of a lock.
func (s *PaymentService) acquireSettlement(ctx context.Context, req settlementRequest) (persistence.ReleaseFunc, *domain.Payment, error) {
	key := "settlement:" + req.TransactionID
	var (
		release persistence.ReleaseFunc
		settled *domain.Payment
	)
	attempt := func() error {
		rel, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL())
		if err != nil {
			return backoff.Permanent(err)
		}
		if ok {
			release = rel
			return nil
		}
		existing, err := s.payments.GetByTransactionID(ctx, req.TransactionID)
		if err == nil {
			settled = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return errSettlementBusy
	}

	retries := uint64(s.cfg.LockWait() / settlementPollInterval)
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(settlementPollInterval), retries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if ctx.Err() != nil {
			return nil, nil, errSettlementBusy
		}
		return nil, nil, err
	}
	return release, settled, nil
}

func (s *PaymentService) applyEffects(ctx context.Context, req settlementRequest) (*SettlementResult, error) {
	switch req.Type {
	case domain.PaymentTypeBoost:
		issue, err := s.issues.Boost(ctx, req.IssueID, s.now())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewNotFound("issue", map[string]any{"id": req.IssueID})
			}
			return nil, err
		}
		return &SettlementResult{Issue: issue}, nil
	case domain.PaymentTypeSubscription:
		if err := s.users.Subscribe(ctx, req.Email, s.now()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewNotFound("user", map[string]any{"email": req.Email})
			}
			return nil, err
		}
		user, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{User: user}, nil
	}
	return nil, apperrors.NewValidationError("unknown payment type", map[string]any{"type": string(req.Type)})
}

func (s *PaymentService) payerActor(ctx context.Context, email string) Actor {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return Actor{Email: email, Role: domain.RoleCitizen}
	}
	return ActorFromUser(user)
}

func (s *PaymentService) publishSettled(ctx context.Context, req settlementRequest, actor Actor) {
	eventType := events.EventUserSubscribed
	if req.Type == domain.PaymentTypeBoost {
		eventType = events.EventIssueBoosted
	}
	s.events.publishEvent(ctx, events.Event{
		Type:    eventType,
		IssueID: req.IssueID,
		Actor:   actor.eventActor(),
		Payload: events.PaymentSettledPayload{
			TransactionID: req.TransactionID,
			Amount:        req.Amount,
			Source:        req.Source,
		},
	})
}

func (s *PaymentService) record(req settlementRequest, outcome string) {
	s.metrics.RecordSettlement(string(req.Type), string(req.Source), outcome)
}

// ListPaymentsForUser returns the actor's payments, newest first.
func (s *PaymentService) ListPaymentsForUser(ctx context.Context, actor Actor) ([]domain.Payment, error) {
	items, err := s.payments.ListByEmail(ctx, actor.Email)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Payment{}
	}
	return items, nil
}

// ListAllPayments returns every payment, newest first.
func (s *PaymentService) ListAllPayments(ctx context.Context, actor Actor) ([]domain.Payment, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	items, err := s.payments.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Payment{}
	}
	return items, nil
}
