package adapter

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind tags an Error with its failure class. Consumers branch on the
// kind rather than on error strings.
type ErrorKind int

const (
	// InvalidArgument: bad endpoint string, unknown status, page out of range.
	InvalidArgument ErrorKind = iota + 1
	// NotConnected: operation invoked before Connect or after Disconnect.
	NotConnected
	// NotFound: the job could not be located, or its record vanished after a
	// positive index probe.
	NotFound
	// Decode: a structural field of a broker record failed to parse.
	Decode
	// AlreadySubscribed: Subscribe on an adapter whose broker permits a
	// single exclusive subscriber, while one is active.
	AlreadySubscribed
	// Cancelled: the caller-supplied context fired before completion.
	Cancelled
	// Transport: broker I/O failure (connection, auth, protocol).
	Transport
	// Internal: unexpected failure; the cause is retained.
	Internal
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case NotConnected:
		return "not-connected"
	case NotFound:
		return "not-found"
	case Decode:
		return "decode"
	case AlreadySubscribed:
		return "already-subscribed"
	case Cancelled:
		return "cancelled"
	case Transport:
		return "transport"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("error-kind(%d)", int(k))
	}
}

// Error is the tagged outcome of a failed adapter operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error returns the message chain without the kind. The kind is metadata
// for callers to branch on; surfaces that present errors (HTTP envelopes,
// logs) render it alongside the message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Errorf builds a tagged Error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr tags |cause| with a kind and message. A |cause| which is itself a
// tagged *Error keeps its original kind; context cancellation becomes
// Cancelled. This keeps classification stable as errors cross layers.
func WrapErr(kind ErrorKind, cause error, format string, args ...any) *Error {
	var tagged *Error
	if errors.As(cause, &tagged) {
		kind = tagged.Kind
	} else if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		kind = Cancelled
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf classifies an error chain: the kind of the outermost tagged
// *Error, Cancelled for context errors, Internal for anything else,
// and zero only for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	return Internal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }
