// Package errors classifies failures of the price alert job so the runner can
// tell fatal conditions from per-alert ones.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryConfiguration represents missing or malformed settings (fatal)
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryDatabase represents store query or commit failures (fatal)
	CategoryDatabase ErrorCategory = "database"
	// CategoryData represents a broken reference on a single alert
	CategoryData ErrorCategory = "data"
	// CategoryNotification represents template or mail transport failures
	CategoryNotification ErrorCategory = "notification"
	// CategoryProbe represents image availability probe failures
	CategoryProbe ErrorCategory = "probe"
	// CategoryLock represents run lock failures
	CategoryLock ErrorCategory = "lock"
	// CategorySystem represents anything else
	CategorySystem ErrorCategory = "system"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// CategorizedError represents an error with a category and a stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a configuration error for the given setting
func NewConfigError(setting string, reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConfiguration,
		Code:     "INVALID_CONFIG",
		Message:  fmt.Sprintf("invalid configuration '%s': %s", setting, reason),
		Details: map[string]interface{}{
			"setting": setting,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDatabase,
		Code:     "DATABASE_ERROR",
		Message:  fmt.Sprintf("database error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewMissingReferenceError creates an error for an alert whose user or product is gone
func NewMissingReferenceError(resource string, id int64) *CategorizedError {
	return &CategorizedError{
		Category: CategoryData,
		Code:     "MISSING_REFERENCE",
		Message:  fmt.Sprintf("%s not found: %d", resource, id),
		Cause:    ErrNotFound,
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewNotificationError creates a notification error
func NewNotificationError(stage string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryNotification,
		Code:     "NOTIFICATION_FAILED",
		Message:  fmt.Sprintf("notification failed during %s", stage),
		Cause:    cause,
		Details: map[string]interface{}{
			"stage": stage,
		},
	}
}

// NewProbeError creates an image probe error
func NewProbeError(url string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryProbe,
		Code:     "IMAGE_UNAVAILABLE",
		Message:  fmt.Sprintf("image not available: %s", url),
		Cause:    cause,
		Details: map[string]interface{}{
			"url": url,
		},
	}
}

// NewLockError creates a run lock error
func NewLockError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryLock,
		Code:     "LOCK_ERROR",
		Message:  fmt.Sprintf("run lock error during %s", operation),
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return &CategorizedError{
		Category: CategorySystem,
		Code:     "INTERNAL_ERROR",
		Message:  "unexpected error",
		Cause:    err,
	}
}

// IsFatal reports whether err should abort the whole run.
func IsFatal(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryData, CategoryNotification, CategoryProbe:
		return false
	default:
		return true
	}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
