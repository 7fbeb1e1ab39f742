package bridge

import (
	"errors"
	"fmt"
)

// Kind classifies errors delivered to script.
type Kind int

const (
	KindNone Kind = iota
	KindMemory
	KindInvalidArguments
	KindFileNotFound
	KindFileIO
	KindNetwork
	KindTimeout
	KindPermission
	KindSyntax
	// KindInvalidState marks operations against released or otherwise
	// unusable handles and objects.
	KindInvalidState
)

// Messages shared between the native modules.
const (
	MsgMemory              = `Memory allocation failed`
	MsgCallbackNotFunction = `Callback must be a function`
	MsgTooManyTimers       = `Too many active timers`
	MsgInvalidStreamState  = `Invalid stream state`
	MsgInvalidServerState  = `Invalid server state`
	MsgInvalidClientState  = `Invalid client state`
)

// String returns the name exposed to script as the error's code.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return `None`
	case KindMemory:
		return `MemoryError`
	case KindInvalidArguments:
		return `InvalidArguments`
	case KindFileNotFound:
		return `FileNotFound`
	case KindFileIO:
		return `FileIOError`
	case KindNetwork:
		return `NetworkError`
	case KindTimeout:
		return `TimeoutError`
	case KindPermission:
		return `PermissionError`
	case KindSyntax:
		return `SyntaxError`
	case KindInvalidState:
		return `InvalidState`
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is an error in the shape delivered to script:
// {code, message, details?}.
type Error struct {
	Cause   error
	Message string
	Details string
	Kind    Kind
}

// Errorf constructs an Error without a cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error with the given message, carrying cause as the
// details. The kind is derived from cause where recognizable, see
// [Classify], otherwise fallback is used.
func Wrap(fallback Kind, message string, cause error) *Error {
	if cause == nil {
		return &Error{Kind: fallback, Message: message}
	}
	return &Error{
		Kind:    Classify(cause, fallback),
		Message: message,
		Details: cause.Error(),
		Cause:   cause,
	}
}

// AsError converts err to an *Error. Errors that are (or wrap) an *Error are
// returned as-is, otherwise the message is err's text, and the kind is
// classified with fallback.
func AsError(err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:    Classify(err, fallback),
		Message: err.Error(),
		Cause:   err,
	}
}

// Error formats e as "<code>: <message>[: <details>]".
func (e *Error) Error() string {
	if e.Details != `` {
		return e.Kind.String() + `: ` + e.Message + `: ` + e.Details
	}
	return e.Kind.String() + `: ` + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same kind, allowing
// errors.Is(err, &Error{Kind: KindFileNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == `` && t.Kind == e.Kind
}
