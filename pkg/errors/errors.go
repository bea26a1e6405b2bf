package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common application errors
var (
	// Content errors
	ErrInvalidContent   = errors.New("invalid content")
	ErrContentNotFound  = errors.New("content not found")
	ErrUnpublished      = errors.New("content is not published")
	ErrInvalidInputData = errors.New("invalid input data")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrConfigurationLoad    = errors.New("failed to load configuration")
	ErrWeightSum            = errors.New("weights do not sum to 100")
	ErrUnregisteredCriteria = errors.New("criterion has no registered evaluator")

	// Analysis errors
	ErrInsufficientData   = errors.New("insufficient data points")
	ErrInvalidSeries      = errors.New("invalid metric series")
	ErrInvalidHorizon     = errors.New("invalid forecast horizon")
	ErrForecasterNotFound = errors.New("forecaster not found")
	ErrInvalidSensitivity = errors.New("invalid sensitivity")
	ErrAnalysisFailed     = errors.New("analysis failed")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrStorageReadFailed       = errors.New("storage read failed")
	ErrStorageTimeout          = errors.New("storage operation timeout")
	ErrDataNotFound            = errors.New("data not found")
	ErrCacheMiss               = errors.New("cache miss")

	// Job errors
	ErrJobFailed  = errors.New("job failed")
	ErrJobTimeout = errors.New("job timeout")
	ErrQueueFull  = errors.New("job queue is full")
	ErrNotRunning = errors.New("processor is not running")

	// Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrNetworkTimeout   = errors.New("network timeout")
	ErrUnavailable      = errors.New("service unavailable")

	ErrInternal = errors.New("internal error")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeAnalysis      ErrorType = "analysis"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeCache         ErrorType = "cache"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeJob           ErrorType = "job"
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

// Is matches another AppError with the same type and code
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

// WithCause attaches the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	e.Retryable = isRetryable(err)
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
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

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewAnalysisError creates an analysis error
func NewAnalysisError(code, message string) *AppError {
	return NewAppError(ErrorTypeAnalysis, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
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

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternalError,
		Message:    message,
		HTTPStatus: 500,
	}
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// HTTPStatusOf returns the HTTP status carried by err, 500 if none
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return 400
	}
	return 500
}

func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation, ErrorTypeConfiguration:
		return 400
	case ErrorTypeAnalysis:
		return 422
	case ErrorTypeStorage, ErrorTypeJob:
		return 404
	case ErrorTypeNetwork, ErrorTypeCache:
		return 503
	default:
		return 500
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrNetworkTimeout):
		return true
	case errors.Is(err, ErrConnectionFailed):
		return true
	case errors.Is(err, ErrStorageTimeout):
		return true
	case errors.Is(err, ErrUnavailable):
		return true
	case errors.Is(err, ErrQueueFull):
		return true
	default:
		return false
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// ValidationErrorDetail represents detailed validation error information
type ValidationErrorDetail struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Message string                  `json:"message"`
	Errors  []ValidationErrorDetail `json:"errors"`
}

// Error lists every collected problem after the summary message
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return ve.Message
	}
	parts := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Sprintf("%s: %s", ve.Message, strings.Join(parts, "; "))
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, code, message string, value interface{}) {
	ve.Errors = append(ve.Errors, ValidationErrorDetail{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// HasErrors checks if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Message: "Validation failed",
		Errors:  make([]ValidationErrorDetail, 0),
	}
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput  = "INVALID_INPUT"
	CodeMissingField  = "MISSING_FIELD"
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeOutOfRange    = "OUT_OF_RANGE"
	CodeNotMonotonic  = "NOT_MONOTONIC"

	// Configuration error codes
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeWeightSum            = "WEIGHT_SUM"
	CodeDuplicateName        = "DUPLICATE_NAME"
	CodeUnregisteredCriteria = "UNREGISTERED_CRITERION"
	CodeConfigLoadFailed     = "CONFIG_LOAD_FAILED"

	// Analysis error codes
	CodeInsufficientData   = "INSUFFICIENT_DATA"
	CodeInvalidHorizon     = "INVALID_HORIZON"
	CodeForecasterNotFound = "FORECASTER_NOT_FOUND"
	CodeAnalysisFailed     = "ANALYSIS_FAILED"

	// Storage error codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeNotConnected     = "NOT_CONNECTED"
	CodeDataNotFound     = "DATA_NOT_FOUND"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeQueryFailed      = "QUERY_FAILED"

	// Auth error codes
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Job error codes
	CodeJobFailed  = "JOB_FAILED"
	CodeJobTimeout = "JOB_TIMEOUT"
	CodeQueueFull  = "QUEUE_FULL"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
