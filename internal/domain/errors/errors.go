package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// Transaction errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Gateway errors
	ErrCredentials        = errors.New("failed to get OAuth token")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment rejected by gateway")
	ErrGatewayTimeout     = errors.New("gateway request timeout")
	ErrMissingCheckoutID  = errors.New("gateway response has no CheckoutRequestID")

	// Callback errors
	ErrMalformedCallback = errors.New("malformed callback")

	// Idempotency errors
	ErrDuplicateRequest = errors.New("duplicate request in progress")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
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

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// GatewayRejectionError carries the gateway's error body so it can be relayed
// to the caller unchanged.
type GatewayRejectionError struct {
	StatusCode int
	Payload    json.RawMessage
}

func (e *GatewayRejectionError) Error() string {
	return fmt.Sprintf("gateway rejected request (status %d): %s", e.StatusCode, string(e.Payload))
}

func (e *GatewayRejectionError) Unwrap() error {
	return ErrGatewayRejected
}

// NewGatewayRejectionError creates a rejection error. Bodies that are not
// valid JSON are kept as a JSON string.
func NewGatewayRejectionError(statusCode int, body []byte) *GatewayRejectionError {
	payload := json.RawMessage(body)
	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		payload = quoted
	}
	return &GatewayRejectionError{StatusCode: statusCode, Payload: payload}
}
