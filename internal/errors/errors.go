// Package errors provides structured error types for the query and catalog
// layers. All errors include a category, code, message, and retryable flag
// for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidSchema       = "INVALID_SCHEMA"
	CodeUnsupportedType     = "UNSUPPORTED_TYPE"
	CodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	CodeInvalidOption       = "INVALID_OPTION"

	// Storage codes
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Catalog codes
	CodeDatabaseNotFound   = "DATABASE_NOT_FOUND"
	CodeTableNotFound      = "TABLE_NOT_FOUND"
	CodeDatabaseExists     = "DATABASE_EXISTS"
	CodeTableExists        = "TABLE_EXISTS"
	CodeCorruptionDetected = "CORRUPTION_DETECTED"

	// Query codes, one per pipeline stage
	CodeBuildQueryDispatcher = "BUILD_QUERY_DISPATCHER"
	CodeParseError           = "PARSE_ERROR"
	CodeLogicalPlanner       = "LOGICAL_PLANNER"
	CodeLogicalOptimize      = "LOGICAL_OPTIMIZE"
	CodePhysicalPlanner      = "PHYSICAL_PLANNER"
	CodeAnalyzer             = "ANALYZER"
	CodeOptimizer            = "OPTIMIZER"
	CodeSchedule             = "SCHEDULE"
	CodeExecution            = "EXECUTION"
	CodeRequestLimit         = "REQUEST_LIMIT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// CnosError is the structured error type used throughout the system.
type CnosError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *CnosError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CnosError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CnosError) Is(target error) bool {
	var t *CnosError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CnosError.
func New(category ErrorCategory, code, message string) *CnosError {
	return &CnosError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new CnosError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CnosError {
	return &CnosError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *CnosError) WithDetails(details map[string]interface{}) *CnosError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *CnosError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the outermost error category from an error chain.
// Returns empty string if the error is not a CnosError.
func GetCategory(err error) ErrorCategory {
	var ce *CnosError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the outermost error code from an error chain.
// Returns empty string if the error is not a CnosError.
func GetCode(err error) string {
	var ce *CnosError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// HasCode reports whether any error in the chain carries category and code.
func HasCode(err error, category ErrorCategory, code string) bool {
	return errors.Is(err, &CnosError{Category: category, Code: code})
}

// isRetryable reports whether a failure may succeed when retried unchanged.
// Only admission rejections and transient downloads qualify.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryQuery && code == CodeRequestLimit:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *CnosError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *CnosError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string) *CnosError {
	return New(ErrCategoryCatalog, code, message)
}

func NewQueryError(code, message string, cause error) *CnosError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewInternalError(message string, cause error) *CnosError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Query stage constructors.

func BuildDispatcherError(message string) *CnosError {
	return New(ErrCategoryQuery, CodeBuildQueryDispatcher, message)
}

func ParseError(cause error) *CnosError {
	return Wrap(ErrCategoryQuery, CodeParseError, "failed to parse sql", cause)
}

func LogicalPlannerError(cause error) *CnosError {
	return Wrap(ErrCategoryQuery, CodeLogicalPlanner, "failed to create logical plan", cause)
}

func OptimizerError(cause error) *CnosError {
	return Wrap(ErrCategoryQuery, CodeOptimizer, "failed to optimize plan", cause)
}

func ScheduleError(cause error) *CnosError {
	return Wrap(ErrCategoryQuery, CodeSchedule, "failed to schedule plan", cause)
}

func ExecutionError(cause error) *CnosError {
	return Wrap(ErrCategoryQuery, CodeExecution, "failed to execute", cause)
}

func AnalyzerError(message string, cause error) *CnosError {
	return Wrap(ErrCategoryQuery, CodeAnalyzer, message, cause)
}

// RequestLimitError reports an admission rejection. It is the only
// retryable query error.
func RequestLimitError(limit int64) *CnosError {
	return New(ErrCategoryQuery, CodeRequestLimit,
		fmt.Sprintf("the number of concurrent queries exceeds the limit of %d", limit))
}

func DatabaseNotFound(name string) *CnosError {
	return NewCatalogError(CodeDatabaseNotFound, fmt.Sprintf("database %q not found", name))
}

func TableNotFound(name string) *CnosError {
	return NewCatalogError(CodeTableNotFound, fmt.Sprintf("table %q not found", name))
}

func DatabaseExists(name string) *CnosError {
	return NewCatalogError(CodeDatabaseExists, fmt.Sprintf("database %q already exists", name))
}

func TableExists(name string) *CnosError {
	return NewCatalogError(CodeTableExists, fmt.Sprintf("table %q already exists", name))
}
