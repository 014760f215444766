// Package bundlerrors defines the typed error taxonomy the bundle
// submission pipeline emits, and the HTTP status each maps to.
package bundlerrors

import (
	"errors"
	"fmt"
)

// Kind identifies a category of error in the bundle-submission pipeline.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfigInvalid
	KindKillswitchActive
	KindNoEnabledBuilders
	KindSignerKeyMissing
	KindInvalidSignerKey
	KindInvalidPaymentAddress
	KindInvalidTx1Hex
	KindChainRPCUnavailable
	KindPaymentCalculationOverflow
	KindInsufficientSignerBalance
	KindPolicyDenied
	KindRelayConnectionTimeout
	KindRelayHTTPError
	KindRelayInvalidResponse
	KindRelayBundleRejected
	KindInternal
)

// Error is the error type carried through the orchestrator. It never
// embeds secret material (signer keys) in Message or Fields.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries structured diagnostic data surfaced to the HTTP
	// layer (e.g. balanceWei/requiredWei, policy reason).
	Fields map[string]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) WithField(key, value string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

// As extracts a *Error from err, if present.
func As(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the HTTP status code it should surface as.
// Relay-scoped kinds (RelayConnectionTimeout, RelayHTTPError,
// RelayInvalidResponse, RelayBundleRejected) never reach here directly;
// they are aggregated into the submissions array by the orchestrator.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindKillswitchActive:
		return 503
	case KindNoEnabledBuilders, KindSignerKeyMissing, KindInvalidSignerKey,
		KindInvalidPaymentAddress, KindInvalidTx1Hex,
		KindInsufficientSignerBalance, KindPolicyDenied:
		return 400
	case KindChainRPCUnavailable, KindPaymentCalculationOverflow, KindInternal:
		return 500
	default:
		return 500
	}
}
