// Package errs defines the closed set of error kinds the credit and payment
// core can produce, replacing free-text error strings at call sites. Callers
// classify failures with KindOf or errors.As and react per kind.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags an Error with its failure class.
type Kind int

const (
	// KindUnknown is the zero value for errors that did not originate here.
	KindUnknown Kind = iota

	// KindInsufficientFunds: a debit exceeded the account balance. User
	// recoverable; prompts a purchase.
	KindInsufficientFunds

	// KindStorage: the backing store failed. Surfaced as a 5xx-class
	// failure; never retried without idempotency protection.
	KindStorage

	// KindRateLimited: quota denied the attempt. The anonymous variant
	// carries RequiresLogin, the authenticated variant a retry-after hint.
	KindRateLimited

	// KindGatewayUnavailable: the payment gateway could not be reached.
	// The session stays pending and the call is safe to retry later.
	KindGatewayUnavailable

	// KindCaptureFailed: the gateway rejected capture. The session is
	// marked failed and no credit is issued.
	KindCaptureFailed

	// KindCapturedUncredited: capture succeeded but the ledger credit
	// failed. The session carries the distinguishable uncredited status and
	// needs operator reconciliation; it is never auto-resolved.
	KindCapturedUncredited

	// KindInvalidSignature: an inbound notification failed verification.
	// Rejected with no state change and no detail about why.
	KindInvalidSignature
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindStorage:
		return "storage_error"
	case KindRateLimited:
		return "rate_limit_exceeded"
	case KindGatewayUnavailable:
		return "gateway_unavailable"
	case KindCaptureFailed:
		return "capture_failed"
	case KindCapturedUncredited:
		return "captured_but_uncredited"
	case KindInvalidSignature:
		return "invalid_signature"
	default:
		return "unknown"
	}
}

// Error carries a kind plus the structured context that used to live in
// ad hoc message strings.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "ledger.debit"
	Ref  string // account id, payment reference or identity, when relevant
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Ref != "" {
		msg += " (" + e.Ref + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. Op and Kind are required; ref and cause are optional.
func E(kind Kind, op, ref string, err error) *Error {
	return &Error{Kind: kind, Op: op, Ref: ref, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
