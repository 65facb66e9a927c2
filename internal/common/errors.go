// Package common holds the logging, error and retry helpers shared by the
// ledger, its stores and the command line.
package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores for rows that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError pairs an error with the sentence a clan member should see.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.UserMessage
	}
	return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a member-facing message.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}

// IsRetryable reports whether err is a deadline or was marked retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var retryable *RetryableError
	return errors.As(err, &retryable) && retryable.Retryable
}
