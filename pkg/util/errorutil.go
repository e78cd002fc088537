package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to API callers.
const (
	CodeValidation           = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeQuotaExceeded        = "QUOTA_EXCEEDED"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeSelfUpvote           = "SELF_UPVOTE_FORBIDDEN"
	CodeAlreadyUpvoted       = "ALREADY_UPVOTED"
	CodeIntentCreationFailed = "INTENT_CREATION_FAILED"
	CodePaymentNotConfirmed  = "PAYMENT_NOT_CONFIRMED"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeSettlementInProgress = "SETTLEMENT_IN_PROGRESS"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewQuotaExceeded(limit int) error {
	return NewDomainError(CodeQuotaExceeded, "free issue limit exceeded", http.StatusForbidden,
		map[string]any{"limit": limit})
}

func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition, "invalid status change", http.StatusBadRequest,
		map[string]any{"from": from, "to": to})
}

func NewSelfUpvoteForbidden() error {
	return NewDomainError(CodeSelfUpvote, "cannot upvote own issue", http.StatusForbidden, nil)
}

func NewAlreadyUpvoted() error {
	return NewDomainError(CodeAlreadyUpvoted, "already upvoted", http.StatusBadRequest, nil)
}

func NewPaymentNotConfirmed(message string) error {
	return NewDomainError(CodePaymentNotConfirmed, message, http.StatusBadRequest, nil)
}

func NewInvalidSignature(err error) error {
	return &DomainError{
		Code:       CodeInvalidSignature,
		Message:    "webhook signature verification failed",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

func NewSettlementInProgress(transactionID string) error {
	return NewDomainError(CodeSettlementInProgress, "payment settlement already in progress", http.StatusConflict,
		map[string]any{"transaction_id": transactionID})
}

// NewIntentCreationFailed wraps a processor failure; the cause is logged, never rendered.
func NewIntentCreationFailed(err error) error {
	return &DomainError{
		Code:       CodeIntentCreationFailed,
		Message:    "payment intent could not be created, retry later",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err is a DomainError carrying code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberError(fiberErr)
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func fiberError(err *fiber.Error) *DomainError {
	code := CodeInternal
	switch err.Code {
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusForbidden:
		code = CodeForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = CodeValidation
	case http.StatusMethodNotAllowed:
		code = "METHOD_NOT_ALLOWED"
	}
	return &DomainError{Code: code, Message: err.Message, HTTPStatus: err.Code}
}

// MapError is ToDomainError for call sites that return plain errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
