// Package apierr classifies failures of the remote job API so callers can
// decide between retrying, surfacing, or rejecting a request.
package apierr

import (
	"errors"
	"fmt"
)

// Kind categorizes errors for handling strategy
type Kind int

const (
	KindUnknown    Kind = iota
	KindValidation      // Malformed request, never sent
	KindTransport       // Network, timeout or HTTP-level failure
	KindAPI             // Vendor rejected the request (non-zero ret)
	KindProtocol        // Response missing an expected field
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error wraps a failure with the operation it happened in.
type Error struct {
	Kind       Kind
	Op         string // operation name, e.g. "image-generate"
	Code       string // vendor ret code for KindAPI
	StatusCode int    // HTTP status for KindTransport, 0 if none
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	prefix := e.Kind.String()
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	switch {
	case e.Kind == KindAPI && e.Code != "":
		return fmt.Sprintf("%s error %s: %s", prefix, e.Code, e.Message)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s error: %s: %v", prefix, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", prefix, e.Message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation reports a request that violates its own invariants.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Transport wraps a network-level failure of op. statusCode is 0 when no
// HTTP response was received.
func Transport(op string, statusCode int, err error) error {
	return &Error{Kind: KindTransport, Op: op, StatusCode: statusCode, Err: err}
}

// API reports that the vendor answered with a failing ret code.
func API(op, code, message string) error {
	return &Error{Kind: KindAPI, Op: op, Code: code, Message: message}
}

// Protocol reports a response that does not carry a field the client needs.
// err may be a sentinel so callers can match with errors.Is.
func Protocol(op, message string, err error) error {
	return &Error{Kind: KindProtocol, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind helps callers compare kinds without type assertions.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether repeating the same call might succeed.
func Retryable(err error) bool {
	return IsKind(err, KindTransport)
}
