package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
)

// signatureHeader carries the processor's webhook signature.
const signatureHeader = "Stripe-Signature"

// PaymentsHandler exposes boost, subscription and webhook endpoints.
type PaymentsHandler struct {
	payments *service.PaymentService
}

// NewPaymentsHandler constructs handler.
func NewPaymentsHandler(payments *service.PaymentService) *PaymentsHandler {
	return &PaymentsHandler{payments: payments}
}

// BoostIntent POST /payments/boost-intent.
func (h *PaymentsHandler) BoostIntent(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.BoostIntentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	intent, err := h.payments.CreateBoostIntent(c.UserContext(), actor, req.IssueID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIntentResponse(intent)})
}

// BoostConfirm POST /payments/boost-confirm.
func (h *PaymentsHandler) BoostConfirm(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.BoostConfirmRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.payments.ConfirmBoost(c.UserContext(), actor, req.IssueID, req.TransactionID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSettlementResponse(result)})
}

// SubscribeIntent POST /payments/subscribe-intent.
func (h *PaymentsHandler) SubscribeIntent(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	intent, err := h.payments.CreateSubscriptionIntent(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIntentResponse(intent)})
}

// SubscribeConfirm POST /payments/subscribe-confirm.
func (h *PaymentsHandler) SubscribeConfirm(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SubscriptionConfirmRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.payments.ConfirmSubscription(c.UserContext(), actor, req.TransactionID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSettlementResponse(result)})
}

// Mine GET /payments/my.
func (h *PaymentsHandler) Mine(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	items, err := h.payments.ListPaymentsForUser(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPaymentsResponse(items)})
}

// All GET /payments/all.
func (h *PaymentsHandler) All(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	items, err := h.payments.ListAllPayments(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPaymentsResponse(items)})
}

// Webhook POST /webhooks/payment. The raw body is verified as received.
func (h *PaymentsHandler) Webhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	result, err := h.payments.HandleWebhook(c.UserContext(), payload, c.Get(signatureHeader))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"received": true,
		"eventId":  result.EventID,
		"handled":  result.Handled,
	})
}
