package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// retryableError marks failures worth another attempt: transport errors,
// 429 and 5xx responses.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// withRetries runs op up to maxRetries+1 times with exponential backoff
// starting at base, stopping at the first non-retryable error.
func withRetries(ctx context.Context, maxRetries int, base time.Duration, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := base * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
