package workflows

import (
	"errors"
	"fmt"

	"github.com/crosve/Csphere/internal/folders"
	"go.temporal.io/sdk/temporal"
)

// Non-retryable application error types.
const (
	ErrTypeUserNotFound = "UserNotFound"
	ErrTypeInvalidInput = "InvalidInput"
)

// WrapActivityError wraps an activity error with operation context.
// Errors a retry cannot fix are returned as non-retryable application
// errors so Temporal gives up immediately.
func WrapActivityError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, folders.ErrUserNotFound):
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s: %v", operation, err), ErrTypeUserNotFound, err)
	case errors.Is(err, folders.ErrInvalidInput):
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s: %v", operation, err), ErrTypeInvalidInput, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// FormatErrorForResult formats an error for a workflow result's Errors slice.
func FormatErrorForResult(operation string, err error) string {
	return fmt.Sprintf("%s: %v", operation, err)
}
