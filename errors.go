package mailmerge

import (
	"errors"
	"fmt"
)

// Predefined sentinel errors for common cases.
var (
	// ErrRetriesExhausted indicates every delivery attempt failed transiently.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrMissingSender indicates no sender address was configured.
	ErrMissingSender = errors.New("sender address is required")

	// ErrInvalidConfiguration indicates invalid configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnknownTransport indicates the configured transport type is not supported.
	ErrUnknownTransport = errors.New("unknown transport")

	// ErrRecordPanic indicates processing a record panicked.
	ErrRecordPanic = errors.New("record processing panicked")
)

// TemplateError represents an error in template processing.
type TemplateError struct {
	// Template is the path of the template that caused the error.
	Template string

	// Operation is the operation that failed (e.g., "read", "parse").
	Operation string

	// Message is the error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error in %s during %s: %s: %v", e.Template, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("template error in %s during %s: %s", e.Template, e.Operation, e.Message)
}

// Unwrap returns the underlying error.
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// DeliveryError wraps the final failure of a delivery with the attempt count.
type DeliveryError struct {
	// Attempts is the number of transport calls made.
	Attempts int

	// Cause is the last error returned by the transport, or ErrRetriesExhausted.
	Cause error

	// Last is the last transport error when retries were exhausted.
	Last error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("delivery failed after %d attempt(s): %v: %v", e.Attempts, e.Cause, e.Last)
	}
	return fmt.Sprintf("delivery failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

// Unwrap returns the underlying errors.
func (e *DeliveryError) Unwrap() []error {
	if e.Last != nil {
		return []error{e.Cause, e.Last}
	}
	return []error{e.Cause}
}

// NewTemplateError creates a new template error.
func NewTemplateError(template, operation, message string, cause error) *TemplateError {
	return &TemplateError{
		Template:  template,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
