package actions

import (
	"errors"
	"fmt"
)

// Kind classifies resolver failures for the HTTP layer.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindNotFound
	KindNotAvailableForSale
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindNotAvailableForSale:
		return "not_available_for_sale"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// UpstreamMessage is the only text clients see for upstream failures.
const UpstreamMessage = "Failed to build transaction, please try again later"

// Error is returned by every Resolver operation. Message is safe to show
// to the caller; Err carries the cause for logs.
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

func invalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notFound(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Err: err}
}

func notAvailable(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotAvailableForSale, Message: fmt.Sprintf(format, args...)}
}

func upstreamFailure(err error) *Error {
	return &Error{Kind: KindUpstream, Message: UpstreamMessage, Err: err}
}

// AsError extracts an *Error from err, treating anything else as an upstream failure.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return upstreamFailure(err)
}
