// Package apierrors defines the error taxonomy surfaced by the indexer core.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories the core can surface.
type Kind string

const (
	// InvalidAddress means a configuration or query-time input failed address canonicalization.
	InvalidAddress Kind = "InvalidAddress"
	// InvalidInput means a query-time argument (a pagination cursor, a filter field) was malformed.
	InvalidInput Kind = "InvalidInput"
	// RpcUnavailable means an RPC call exhausted its retries.
	RpcUnavailable Kind = "RpcUnavailable" //nolint:revive // follows the on-chain RPC acronym casing.
	// FatalRpc means the node returned a non-retryable 4xx status (other than 429).
	FatalRpc Kind = "FatalRpc"
	// AbiUnavailable means the node did not return a class/ABI for a contract.
	AbiUnavailable Kind = "AbiUnavailable"
	// PersistenceFailure means the underlying store rejected a write.
	PersistenceFailure Kind = "PersistenceFailure"
	// SubscriptionLagged means a subscriber's outbound queue overflowed.
	SubscriptionLagged Kind = "SubscriptionLagged"
	// NotFound means an unknown deployment id or unknown contract was referenced in a scoped operation.
	NotFound Kind = "NotFound"
)

// Error is a typed error carrying a Kind and, for wrapped causes, the underlying error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to traverse into the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or any error it wraps) is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
