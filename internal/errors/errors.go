package errors

import (
	"errors"
	"fmt"
	"time"
)

// Common error types
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabaseError = errors.New("database error")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternal      = errors.New("internal error")

	// Moderation
	ErrNoPrivileges = errors.New("no privileges")
	ErrHierarchy    = errors.New("target is not below in role hierarchy")
	ErrRateLimited  = errors.New("rate limited")
)

// RateLimitError is returned by platform calls that were rejected with a retry-after.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter extracts the retry-after hint, zero if err carries none.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
