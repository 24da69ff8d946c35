package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Detection errors
	ErrInsufficientData = errors.New("insufficient data for detection")
	ErrNoVariation      = errors.New("window has no variation")
	ErrUnknownDetector  = errors.New("detector not found")
	ErrMalformedReading = errors.New("malformed sensor reading")

	// Alerting errors
	ErrInvalidRuleCondition = errors.New("invalid rule condition")
	ErrInvalidThreshold     = errors.New("invalid rule threshold")
	ErrRuleNotFound         = errors.New("alert rule not found")
	ErrAlertNotFound        = errors.New("alert not found or not active")
	ErrDuplicateAlertID     = errors.New("duplicate alert id")
	ErrUnknownChannel       = errors.New("notification channel not registered")
	ErrQueueFull            = errors.New("notification queue is full")

	// Transport/storage errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrPublishFailed    = errors.New("publish failed")
	ErrStorageWrite     = errors.New("storage write failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing configuration")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeDetection     ErrorType = "detection"
	ErrorTypeAlerting      ErrorType = "alerting"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Retryable:  false,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		Retryable:  isRetryable(err),
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewDetectionError creates a detection error
func NewDetectionError(code, message string) *AppError {
	return NewAppError(ErrorTypeDetection, code, message)
}

// NewAlertingError creates an alerting error
func NewAlertingError(code, message string) *AppError {
	return NewAppError(ErrorTypeAlerting, code, message)
}

// NewNetworkError creates a network error
func NewNetworkError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Code:       code,
		Message:    message,
		Retryable:  true,
		HTTPStatus: 503,
	}
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  false,
		HTTPStatus: 500,
	}
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation:
		return 400
	case ErrorTypeAlerting, ErrorTypeDetection:
		return 404
	case ErrorTypeInternal:
		return 500
	case ErrorTypeNetwork, ErrorTypeStorage, ErrorTypeConfiguration:
		return 503
	default:
		return 500
	}
}

// isRetryable determines if an error is retryable
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrConnectionFailed):
		return true
	case errors.Is(err, ErrPublishFailed):
		return true
	case errors.Is(err, ErrStorageWrite):
		return true
	case errors.Is(err, ErrQueueFull):
		return true
	default:
		return false
	}
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput     = "INVALID_INPUT"
	CodeMissingField     = "MISSING_FIELD"
	CodeInvalidCondition = "INVALID_CONDITION"
	CodeInvalidThreshold = "INVALID_THRESHOLD"
	CodeInvalidSeverity  = "INVALID_SEVERITY"
	CodeInvalidAlertType = "INVALID_ALERT_TYPE"

	// Detection error codes
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeDetectorNotFound = "DETECTOR_NOT_FOUND"
	CodeMalformedReading = "MALFORMED_READING"

	// Alerting error codes
	CodeRuleNotFound     = "RULE_NOT_FOUND"
	CodeAlertNotFound    = "ALERT_NOT_FOUND"
	CodeDuplicateAlertID = "DUPLICATE_ALERT_ID"
	CodeUnknownChannel   = "UNKNOWN_CHANNEL"
	CodeQueueFull        = "QUEUE_FULL"

	// Network/storage error codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodePublishFailed    = "PUBLISH_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
