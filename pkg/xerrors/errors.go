// Package xerrors implements the error taxonomy of spec.md §7: Validation,
// Authorization, StateTransition, Resource, External and Integrity errors,
// each carrying a stable code a caller can match on without string-sniffing.
//
// Grounded on the ChainError/ErrorClassification pattern in
// Jason-chen-taiwan-arcSignv2's chainadapter/error.go, generalized from that
// package's three-way retry classification to the six-way taxonomy spec.md
// requires.
package xerrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies an Error for propagation/retry decisions (spec.md §7).
type Kind string

const (
	Validation      Kind = "validation"
	Authorization   Kind = "authorization"
	StateTransition Kind = "state_transition"
	Resource        Kind = "resource"
	External        Kind = "external"
	Integrity       Kind = "integrity"
)

// Error is the single error type every package in this module returns.
type Error struct {
	Kind  Kind
	Code  string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Wrap constructs an Error of the given kind, wrapping cause.
func Wrap(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Common stable codes referenced across packages.
const (
	CodeBadSignature           = "BAD_SIGNATURE"
	CodeReplayedNonce          = "REPLAYED_NONCE"
	CodeExpired                = "EXPIRED"
	CodeMalformedFields        = "MALFORMED_FIELDS"
	CodeInDrainMode            = "IN_DRAIN_MODE"
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyMatched         = "ALREADY_MATCHED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeInsufficientBond       = "INSUFFICIENT_BOND"
	CodeNoRoute                = "NO_ROUTE"
	CodeOracleUnavailable      = "ORACLE_UNAVAILABLE"
	CodeUnknownPair            = "UNKNOWN_PAIR"
	CodeDuplicateID            = "DUPLICATE_ID"
	CodeChainRPCFailure        = "CHAIN_RPC_FAILURE"
	CodeRelayerFailure         = "RELAYER_FAILURE"
	CodeTimedOut               = "TIMED_OUT"
)

// Fatal reports an Integrity violation and halts the calling goroutine.
// spec.md §7: "Integrity ... Fatal: halt the worker, alert operator, do not
// auto-recover." This is the one place in the module that intentionally
// panics; every call site names the specific invariant that broke.
func Fatal(code, msg string, cause error) {
	err := Wrap(Integrity, code, msg, cause)
	panic(errors.WithStack(err))
}
