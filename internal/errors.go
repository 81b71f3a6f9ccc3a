package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal   ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnsupportedContentType ErrorCode = "UNSUPPORTED_CONTENT_TYPE"
	ErrCodeMalformedPayload       ErrorCode = "MALFORMED_PAYLOAD"
	ErrCodeDuplicateField         ErrorCode = "DUPLICATE_FIELD"
	ErrCodeMissingIdentifier      ErrorCode = "MISSING_IDENTIFIER"
	ErrCodeInvalidField           ErrorCode = "INVALID_FIELD"
	ErrCodeInvalidAmount          ErrorCode = "INVALID_AMOUNT"
	ErrCodeBodyTooLarge           ErrorCode = "BODY_TOO_LARGE"

	ErrCodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"

	ErrCodePersistenceConflict ErrorCode = "PERSISTENCE_CONFLICT"
	ErrCodeAccountExists       ErrorCode = "ACCOUNT_EXISTS"
	ErrCodeIngestionFailed     ErrorCode = "INGESTION_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy so package-level sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewTooLargeError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeBodyTooLarge,
		Message:    message,
		StatusCode: http.StatusRequestEntityTooLarge,
	}
}

// NewConflictError reports a storage conflict. The gateway must redeliver, so
// conflicts surface as 500 rather than 409.
func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

var (
	ErrUnsupportedContentType = NewValidationError("content type must be application/x-www-form-urlencoded", ErrCodeUnsupportedContentType)
	ErrMalformedPayload       = NewValidationError("malformed notification body", ErrCodeMalformedPayload)
	ErrMissingIdentifier      = NewValidationError("notification carries neither m_payment_id nor pf_payment_id", ErrCodeMissingIdentifier)
	ErrBodyTooLarge           = NewTooLargeError("notification body too large")

	ErrTransactionNotFound = NewNotFoundError("transaction not found", ErrCodeTransactionNotFound)
	ErrAccountNotFound     = NewNotFoundError("account not found", ErrCodeAccountNotFound)

	ErrPersistenceConflict = NewConflictError("could not record notification after retry", ErrCodePersistenceConflict)
	ErrAccountExists       = NewConflictError("account already exists", ErrCodeAccountExists)

	ErrIngestionFailed = &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeIngestionFailed,
		Message:    "failed to record notification",
		StatusCode: http.StatusInternalServerError,
	}
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
