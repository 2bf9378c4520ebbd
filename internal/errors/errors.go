package errors

import (
	"errors"
	"fmt"
)

// IndexError is the structured error type for contentindex.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_202_INDEX_WRITE").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs
	// (entity id, category, index name) so a failure can be replayed by hand.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is matches another *IndexError by code, so errors.Is works against the sentinels below.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates an IndexError from an existing error.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons.
var (
	ErrScopeCompleted = &IndexError{Code: ErrCodeScopeCompleted}
	ErrScopeMisuse    = &IndexError{Code: ErrCodeScopeMisuse}
	ErrEntityNotFound = &IndexError{Code: ErrCodeEntityNotFound}
	ErrQueueFull      = &IndexError{Code: ErrCodeQueueFull}
	ErrUnknownIndex   = &IndexError{Code: ErrCodeUnknownIndex}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ScopeError creates a scope misuse error. These are programming errors and
// must reach the caller unchanged.
func ScopeError(code, message string) *IndexError {
	return New(code, message, nil).
		WithSuggestion("enlist side effects before the scope is completed or closed")
}

// IndexWriteError creates an error for a failed index write or delete.
func IndexWriteError(index string, cause error) *IndexError {
	return New(ErrCodeIndexWrite, "index write failed", cause).WithDetail("index", index)
}

// RepositoryError creates a content repository error.
func RepositoryError(message string, cause error) *IndexError {
	return New(ErrCodeRepository, message, cause)
}

// InvalidInput creates a usage error for bad caller input.
func InvalidInput(message string) *IndexError {
	return New(ErrCodeInvalidInput, message, nil)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an IndexError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}
