// Package apperr defines the typed business errors returned by the booking
// and payout core. Every rejection carries a stable machine-readable kind
// plus a human-readable message; callers decide retry behavior from the kind.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error classification.
type Kind string

const (
	// KindNotFound means the booking/trip/ledger does not exist. Terminal.
	KindNotFound Kind = "not_found"

	// KindForbidden means the caller is not a participant of the booking. Terminal.
	KindForbidden Kind = "forbidden"

	// KindInvalidState means the transition was attempted from the wrong
	// status. Terminal; the caller must re-fetch and reconsider.
	KindInvalidState Kind = "invalid_state"

	// KindCapacityExceeded means a seat reservation failed. Terminal for this
	// attempt; callers may retry with fewer seats or another trip.
	KindCapacityExceeded Kind = "capacity_exceeded"

	// KindGatewayFailure means a payment/payout call failed. Retryable.
	KindGatewayFailure Kind = "gateway_failure"

	// KindDataIntegrityRisk means money moved at the gateway but the local
	// finalization failed. Requires operator reconciliation, never swallowed.
	KindDataIntegrityRisk Kind = "data_integrity_risk"

	// KindValidation means the request itself was malformed.
	KindValidation Kind = "validation"
)

// Error is a classified business error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, or empty if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may safely re-issue the operation.
func Retryable(err error) bool {
	return KindOf(err) == KindGatewayFailure
}
