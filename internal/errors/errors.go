// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies engine errors.
type ErrorType string

const (
	// ErrorTypeValidation covers rejected operations: wrong phase, bad
	// parameters, missing referenced entity. No state mutation occurs.
	ErrorTypeValidation ErrorType = "validation_error"
	// ErrorTypeNotFound covers lookups of saves, zones, clocks or NPCs
	// that do not exist.
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeNarrator covers malformed or type-mismatched narrator
	// responses. Retried once, then flagged for manual resolution.
	ErrorTypeNarrator ErrorType = "narrator_error"
	// ErrorTypeData covers a declared state change referencing a
	// nonexistent entity. The single change is skipped; siblings apply.
	ErrorTypeData ErrorType = "data_error"
	// ErrorTypeTransport covers connectivity failures reaching the
	// narrator or the audit store.
	ErrorTypeTransport ErrorType = "transport_error"

	ErrorTypeProcessing   ErrorType = "processing_error"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeConflict     ErrorType = "conflict"
)

// AppError is the structured error every engine operation returns on
// failure. Nothing in the engine panics on input.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError of the given type.
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     cause,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError rejects an operation without mutating state.
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeValidation, message, cause)
}

// NewNotFoundError reports a missing entity or save.
func NewNotFoundError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, cause)
}

// NewNarratorError reports a narrator contract violation.
func NewNarratorError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeNarrator, message, cause)
}

// NewDataError reports an invalid declared state change.
func NewDataError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeData, message, cause)
}

// NewTransportError reports a connectivity failure.
func NewTransportError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeTransport, message, cause)
}

// NewProcessingError reports an internal processing failure.
func NewProcessingError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeProcessing, message, cause)
}

// NewConflictError reports a conflicting operation.
func NewConflictError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConflict, message, cause)
}

// NewUnauthorizedError reports a failed authentication.
func NewUnauthorizedError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, cause)
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsValidationError checks for a validation error anywhere in the chain.
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError checks for a not-found error anywhere in the chain.
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsNarratorError checks for a narrator contract error.
func IsNarratorError(err error) bool { return isType(err, ErrorTypeNarrator) }

// IsDataError checks for a data error.
func IsDataError(err error) bool { return isType(err, ErrorTypeData) }

// IsTransportError checks for a transport error.
func IsTransportError(err error) bool { return isType(err, ErrorTypeTransport) }

// IsConflictError checks for a conflict error.
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// IsUnauthorizedError checks for an authentication error.
func IsUnauthorizedError(err error) bool { return isType(err, ErrorTypeUnauthorized) }

func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeNarrator:
		return "NARRATOR_ERROR"
	case ErrorTypeData:
		return "DATA_ERROR"
	case ErrorTypeTransport:
		return "TRANSPORT_ERROR"
	case ErrorTypeProcessing:
		return "PROCESSING_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError wraps an existing error, preserving an AppError's type and
// code when one is already present in the chain.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
