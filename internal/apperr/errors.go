// Package apperr defines the error taxonomy shared across the paper-trading
// engine. Every component returns one of these kinds (wrapped with context
// via fmt.Errorf's %w) rather than inventing ad-hoc error types, so callers
// at the control-surface boundary can map errors to HTTP status codes with a
// single errors.Is/As switch.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindDeterminism     Kind = "DETERMINISTIC_SAFETY"
	KindRiskRejected    Kind = "RISK_REJECTED"
	KindInvalidState    Kind = "INVALID_STATE_TRANSITION"
	KindIdempotency     Kind = "IDEMPOTENCY_CONFLICT"
	KindStoreDown       Kind = "STORE_UNAVAILABLE"
	KindVendorDown      Kind = "VENDOR_UNAVAILABLE"
)

// Error is a classified error. Reason carries stable, user-facing text (used
// verbatim on REJECTED orders per the risk engine's contract).
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, apperr.Validation) style checks against the kind
// sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Sentinels for errors.Is comparisons against a specific kind.
var (
	Validation   = &Error{Kind: KindValidation}
	NotFound     = &Error{Kind: KindNotFound}
	Determinism  = &Error{Kind: KindDeterminism}
	RiskRejected = &Error{Kind: KindRiskRejected}
	InvalidState = &Error{Kind: KindInvalidState}
	Idempotency  = &Error{Kind: KindIdempotency}
	StoreDown    = &Error{Kind: KindStoreDown}
	VendorDown   = &Error{Kind: KindVendorDown}
)

// KindOf extracts the Kind of err, if any, walking the wrap chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
