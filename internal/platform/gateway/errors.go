package gateway

import (
	"errors"
	"fmt"
)

// Failure classes. Every error returned by Client wraps exactly one of them.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNetwork      = errors.New("network failure")
	ErrInvalid      = errors.New("invalid request")
)

// Error is a classified gateway failure carrying a human-readable message.
type Error struct {
	Kind    error
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// KindOf returns the failure class of err, or nil when err did not come
// from the gateway.
func KindOf(err error) error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return nil
}

// MessageOf returns the human-readable part of a gateway error, falling
// back to err.Error().
func MessageOf(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
