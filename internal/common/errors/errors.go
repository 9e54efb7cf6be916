// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Classifier (external language-model service)
	ErrCodeClassifierUnavailable ErrorCode = "CLASSIFIER_UNAVAILABLE"
	ErrCodeClassifierTimeout     ErrorCode = "CLASSIFIER_TIMEOUT"
	ErrCodeExtractionParseFailed ErrorCode = "EXTRACTION_PARSE_FAILED"

	// Catalog / orders
	ErrCodeProductNotFound    ErrorCode = "PRODUCT_NOT_FOUND"
	ErrCodeInsufficientStock  ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodeOrderPersistFailed ErrorCode = "ORDER_PERSIST_FAILED"
	ErrCodeDuplicateOrder     ErrorCode = "DUPLICATE_ORDER"

	// Infrastructure
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeNotificationSendFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"

	// Programming / contract violations, fatal for the job
	ErrCodeContractViolation     ErrorCode = "CONTRACT_VIOLATION"
	ErrCodeMessagePayloadInvalid ErrorCode = "MESSAGE_PAYLOAD_INVALID"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ConvertToBPMNError maps a StandardError onto the engine-facing form.
func ConvertToBPMNError(err *StandardError) *BPMNError {
	return &BPMNError{
		Code:      string(err.Code),
		Message:   err.Message,
		Details:   err.Details,
		Retryable: err.Retryable,
		Retries:   GetRetryCount(err.Code),
	}
}

// GetRetryCount returns how many engine-level retries a code deserves.
// Contract violations and validation failures are never retried; transient
// infrastructure failures are.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeClassifierUnavailable, ErrCodeClassifierTimeout:
		return 0 // recovered locally via the fallback extraction, never retried
	case ErrCodeDatabaseConnectionFailed, ErrCodeOrderPersistFailed:
		return 3
	case ErrCodeNotificationSendFailed:
		return 0 // fire-and-forget, failures only logged
	default:
		return 0
	}
}

// GetErrorCategory buckets codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeClassifierUnavailable, ErrCodeClassifierTimeout, ErrCodeExtractionParseFailed:
		return "classifier"
	case ErrCodeProductNotFound, ErrCodeInsufficientStock, ErrCodeOrderPersistFailed, ErrCodeDuplicateOrder:
		return "order"
	case ErrCodeDatabaseConnectionFailed, ErrCodeNotificationSendFailed:
		return "infrastructure"
	case ErrCodeContractViolation, ErrCodeMessagePayloadInvalid:
		return "contract"
	default:
		return "unknown"
	}
}

// ==========================
// 3. Error Constructors
// ==========================

// NewClassifierUnavailableError creates a classifier transport error. It is
// not retryable at the job level: the pipeline degrades to the fallback
// extraction instead.
func NewClassifierUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeClassifierUnavailable,
		Message:   "Classifier service unavailable",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewClassifierTimeoutError creates a bounded-timeout error for the classifier call.
func NewClassifierTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeClassifierTimeout,
		Message:   "Classifier call exceeded timeout threshold",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionParseFailedError records that the classifier output could
// not be parsed. Recovered locally, never surfaced to the customer.
func NewExtractionParseFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionParseFailed,
		Message:   "Classifier output could not be parsed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProductNotFoundError marks a validated entity whose product vanished
// before commit. Post-validation this is a catalog inconsistency, not a crash.
func NewProductNotFoundError(productID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProductNotFound,
		Message:   "Product no longer exists in catalog",
		Details:   fmt.Sprintf("productId: %s", productID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInsufficientStockError creates the expected, recoverable stock-race error.
func NewInsufficientStockError(productName string, requested, available int) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientStock,
		Message:   "Insufficient stock at commit time",
		Details:   fmt.Sprintf("product: %s, requested: %d, available: %d", productName, requested, available),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewOrderPersistFailedError creates a retryable order persistence error.
func NewOrderPersistFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeOrderPersistFailed,
		Message:   "Order persistence failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateOrderError marks a redelivered message whose order already exists.
func NewDuplicateOrderError(messageID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateOrder,
		Message:   "Order already created for this message",
		Details:   fmt.Sprintf("messageId: %s", messageID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a non-retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Escalation notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewContractViolationError marks a programming error, e.g. the assembler
// invoked with unresolved entities. Fatal for the job.
func NewContractViolationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeContractViolation,
		Message:   "Pipeline contract violation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessagePayloadInvalidError marks a job payload that failed schema validation.
func NewMessagePayloadInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMessagePayloadInvalid,
		Message:   "Inbound message payload invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
