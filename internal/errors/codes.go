// Package errors provides structured error handling for contentindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (repository, index)
//   - 4XX: Usage errors (bad input, scope misuse)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates repository and index I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryUsage indicates a caller used an API incorrectly.
	CategoryUsage Category = "USAGE"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownIndex   = "ERR_103_UNKNOWN_INDEX"

	// Storage errors (200-299)
	ErrCodeEntityNotFound = "ERR_201_ENTITY_NOT_FOUND"
	ErrCodeIndexWrite     = "ERR_202_INDEX_WRITE"
	ErrCodeIndexOpen      = "ERR_203_INDEX_OPEN"
	ErrCodeRepository     = "ERR_204_REPOSITORY"

	// Usage errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeScopeCompleted = "ERR_402_SCOPE_COMPLETED"
	ErrCodeScopeMisuse    = "ERR_403_SCOPE_MISUSE"
	ErrCodeQueueFull      = "ERR_404_QUEUE_FULL"

	// Internal errors (500-599)
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodeBuildFailed = "ERR_502_BUILD_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_101_..." -> '1'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '4':
		return CategoryUsage
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexOpen, ErrCodeConfigInvalid:
		return SeverityFatal
	case ErrCodeQueueFull:
		return SeverityWarning
	default:
		return SeverityError
	}
}
