package gateway

import "fmt"

type ErrorKind string

const (
	// KindNetwork covers transport failures and timeouts. The outcome at the
	// provider is unknown, so the caller may retry with the same idempotency key.
	KindNetwork ErrorKind = "network"
	KindAuth    ErrorKind = "auth"
	// KindRejected means the provider received and refused the request.
	KindRejected ErrorKind = "rejected"
)

// Error is the only error type the client returns, so the reconciliation
// engine can tell retryable-unknown outcomes from definite refusals.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack %s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("paystack %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether re-submitting the same call with the same
// idempotency key is safe and potentially useful.
func (e *Error) Retryable() bool { return e.Kind == KindNetwork }
