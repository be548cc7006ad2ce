package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a dispatch failure for reporting and metrics.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates the requested category has no
	// registered handler. No audit record exists for these failures.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassValidation indicates the handler rejected its input before
	// running domain logic.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassHandler indicates the handler faulted during execution,
	// including recovered panics and failures in its own I/O.
	ErrorClassHandler ErrorClass = "handler"

	// ErrorClassCancelled indicates the caller's context was cancelled or
	// timed out while the handler was running.
	ErrorClassCancelled ErrorClass = "cancelled"

	// ErrorClassStorage indicates the audit store rejected a write.
	ErrorClassStorage ErrorClass = "storage"
)

// DispatchError is a classified dispatch failure with context.
type DispatchError struct {
	// Class is the failure classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Category is the requested task category, if known.
	Category Category `json:"category,omitempty"`

	// Handler is the handler name, if one was resolved.
	Handler string `json:"handler,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Category != "" {
		return fmt.Sprintf("[%s] %s (category=%s)", e.Class, msg, e.Category)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is.
func (e *DispatchError) Is(target error) bool {
	t, ok := target.(*DispatchError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithCategory adds category context to the error.
func (e *DispatchError) WithCategory(c Category) *DispatchError {
	e.Category = c
	return e
}

// WithHandler adds handler context to the error.
func (e *DispatchError) WithHandler(name string) *DispatchError {
	e.Handler = name
	return e
}

// NewConfigurationError creates a configuration-class error.
func NewConfigurationError(message string, err error) *DispatchError {
	return &DispatchError{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewValidationError creates a validation-class error.
func NewValidationError(message string, err error) *DispatchError {
	return &DispatchError{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewHandlerError creates a handler-class error.
func NewHandlerError(message string, err error) *DispatchError {
	return &DispatchError{Class: ErrorClassHandler, Message: message, Err: err}
}

// NewCancelledError creates a cancelled-class error.
func NewCancelledError(message string, err error) *DispatchError {
	return &DispatchError{Class: ErrorClassCancelled, Message: message, Err: err}
}

// NewStorageError creates a storage-class error.
func NewStorageError(message string, err error) *DispatchError {
	return &DispatchError{Class: ErrorClassStorage, Message: message, Err: err}
}

// ClassOf returns the classification of an error. Unclassified errors are
// reported as handler faults, matching the dispatcher's catch-all boundary.
func ClassOf(err error) ErrorClass {
	var e *DispatchError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassHandler
}

// IsValidation reports whether the error is a validation failure.
func IsValidation(err error) bool {
	return hasClass(err, ErrorClassValidation)
}

// IsConfiguration reports whether the error is a configuration failure.
func IsConfiguration(err error) bool {
	return hasClass(err, ErrorClassConfiguration)
}

// IsCancelled reports whether the error is a cancellation.
func IsCancelled(err error) bool {
	return hasClass(err, ErrorClassCancelled)
}

func hasClass(err error, class ErrorClass) bool {
	var e *DispatchError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
