package engine

import "fmt"

// ValidationError rejects a request before any state changes.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// SignatureError means an inbound webhook failed signature verification. The
// event is dropped without touching any transaction.
type SignatureError struct{}

func (e *SignatureError) Error() string { return "invalid webhook signature" }
