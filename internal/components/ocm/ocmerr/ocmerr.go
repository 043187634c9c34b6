// Package ocmerr defines the error taxonomy shared by share negotiation,
// delivery, notification dispatch and invitation acceptance.
//
// Every failure the core surfaces carries exactly one Kind. Kinds are
// assigned once, where the failure is detected, and are never reclassified
// by the layers above.
package ocmerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is an unexpected collaborator fault.
	KindInternal Kind = iota
	KindMissingArguments
	KindUnsupportedShareType
	KindProviderNotFound
	KindProviderRejected
	KindInvalidToken
	KindUntrustedServer
	KindAlreadyAccepted
	KindDeliveryFailed
)

var kindCodes = map[Kind]string{
	KindInternal:             "INTERNAL_ERROR",
	KindMissingArguments:     "MISSING_ARGUMENTS",
	KindUnsupportedShareType: "SHARE_TYPE_NOT_SUPPORTED",
	KindProviderNotFound:     "PROVIDER_NOT_FOUND",
	KindProviderRejected:     "PROVIDER_REJECTED",
	KindInvalidToken:         "TOKEN_INVALID",
	KindUntrustedServer:      "UNTRUSTED_SERVER",
	KindAlreadyAccepted:      "INVITE_ALREADY_ACCEPTED",
	KindDeliveryFailed:       "DELIVERY_FAILED",
}

// String returns the stable wire code for k.
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindInternal]
}

// Retryable reports whether a failure of this kind may succeed on a later
// attempt. Provider absence and client-input defects are permanent.
func (k Kind) Retryable() bool {
	switch k {
	case KindDeliveryFailed, KindInternal:
		return true
	}
	return false
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	// Fields names the offending request fields (MissingArguments only).
	Fields []string
	Cause  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		sb.WriteString(fmt.Sprintf(" [%s]", strings.Join(e.Fields, ", ")))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidToken)
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInternal             = &Error{Kind: KindInternal}
	ErrMissingArguments     = &Error{Kind: KindMissingArguments}
	ErrUnsupportedShareType = &Error{Kind: KindUnsupportedShareType}
	ErrProviderNotFound     = &Error{Kind: KindProviderNotFound}
	ErrProviderRejected     = &Error{Kind: KindProviderRejected}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken}
	ErrUntrustedServer      = &Error{Kind: KindUntrustedServer}
	ErrAlreadyAccepted      = &Error{Kind: KindAlreadyAccepted}
	ErrDeliveryFailed       = &Error{Kind: KindDeliveryFailed}
)

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// MissingArguments creates a KindMissingArguments error naming the fields.
func MissingArguments(fields ...string) *Error {
	return &Error{Kind: KindMissingArguments, Message: "required fields missing or invalid", Fields: fields}
}

// Rejected is the error providers return when they decline a share or
// notification for domain reasons.
func Rejected(message string) *Error {
	return &Error{Kind: KindProviderRejected, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain.
// Unclassified non-nil errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsClassified reports whether err carries a Kind.
func IsClassified(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
