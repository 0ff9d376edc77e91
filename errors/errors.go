package errors

import (
	"fmt"
	"strings"
	"time"
)

// Code is a stable integer error code. Values are part of the boundary
// contract and must never be renumbered.
type Code uint32

const (
	// CodeInvalidHandle: the opaque handle is unknown, stale, or forged.
	CodeInvalidHandle Code = 1
	// CodeInvalidState: the operation is not allowed in the current
	// lifecycle state.
	CodeInvalidState Code = 2
	// CodeConfigInvalid: the configuration blob failed validation. Fatal.
	CodeConfigInvalid Code = 3
	// CodeStartupFailure: the startup hook failed. Fatal; discard the handle.
	CodeStartupFailure Code = 4
	// CodeUnknownIdentifier: no handler is registered for the identifier.
	CodeUnknownIdentifier Code = 5
	// CodeSerialization: an envelope or binary layout could not be
	// encoded or decoded.
	CodeSerialization Code = 6
	// CodeHandler: the handler returned an error; the message is the
	// handler's own, passed through verbatim.
	CodeHandler Code = 7
	// CodeQueueFull: the bounded queue is at capacity. Retryable after
	// backoff.
	CodeQueueFull Code = 8
	// CodeCancelled: the request was queued but never started before
	// shutdown drained it.
	CodeCancelled Code = 9
	// CodeShutdownTimeout: the drain did not finish within the shutdown
	// timeout. Retryable.
	CodeShutdownTimeout Code = 10
	// CodeNotSupported: the plugin does not expose the requested
	// transport for this identifier.
	CodeNotSupported Code = 11
	// CodeInternal: a fault the runtime caught at the boundary, including
	// recovered panics.
	CodeInternal Code = 12
)

func (c Code) String() string {
	switch c {
	case CodeInvalidHandle:
		return "invalid_handle"
	case CodeInvalidState:
		return "invalid_state"
	case CodeConfigInvalid:
		return "config_invalid"
	case CodeStartupFailure:
		return "startup_failure"
	case CodeUnknownIdentifier:
		return "unknown_identifier"
	case CodeSerialization:
		return "serialization_error"
	case CodeHandler:
		return "handler_error"
	case CodeQueueFull:
		return "queue_full"
	case CodeCancelled:
		return "cancelled"
	case CodeShutdownTimeout:
		return "shutdown_timeout"
	case CodeNotSupported:
		return "not_supported"
	case CodeInternal:
		return "internal"
	default:
		return fmt.Sprintf("code_%d", uint32(c))
	}
}

// Retryable reports whether the caller may retry the operation after
// backoff. Everything else is either fatal or a per-call failure.
func (c Code) Retryable() bool {
	return c == CodeQueueFull || c == CodeShutdownTimeout
}

// Error is the descriptor type used throughout the runtime.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Descriptor returns the {code, message} pair as it crosses the boundary.
func (e *Error) Descriptor() (uint32, string) {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return uint32(e.Code), msg
}

// New creates an error with an explicit code and message.
func New(code Code, format string, args ...any) *Error {
	if len(args) > 0 {
		return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
	}
	return &Error{Code: code, Message: format}
}

// FromCode reconstructs a descriptor received from the other side of the
// boundary.
func FromCode(code uint32, message string) *Error {
	return &Error{Code: Code(code), Message: message}
}

// From normalizes an arbitrary error into a descriptor. A *Error passes
// through untouched; anything else becomes a HandlerError wrapping the
// original message verbatim.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: CodeHandler, Message: err.Error(), Cause: err}
}

// Convenience constructors, one per taxonomy entry.

func InvalidHandle(handle uint64) *Error {
	return New(CodeInvalidHandle, "unknown handle %d", handle)
}

func InvalidState(op, state string) *Error {
	return New(CodeInvalidState, "cannot %s while %s", op, state)
}

func ConfigInvalid(cause error) *Error {
	return &Error{Code: CodeConfigInvalid, Message: "configuration rejected", Cause: cause}
}

func StartupFailure(cause error) *Error {
	return &Error{Code: CodeStartupFailure, Message: "startup hook failed", Cause: cause}
}

func UnknownTag(tag string) *Error {
	return New(CodeUnknownIdentifier, "no handler for tag %q", tag)
}

func UnknownMessageID(id uint32) *Error {
	return New(CodeUnknownIdentifier, "no handler for message id %d", id)
}

func Serialization(detail string, cause error) *Error {
	return &Error{Code: CodeSerialization, Message: detail, Cause: cause}
}

func Handler(err error) *Error {
	return &Error{Code: CodeHandler, Message: err.Error(), Cause: err}
}

func QueueFull() *Error {
	return New(CodeQueueFull, "queue at capacity")
}

func Cancelled() *Error {
	return New(CodeCancelled, "request cancelled before execution")
}

func ShutdownTimeout(timeout time.Duration) *Error {
	return New(CodeShutdownTimeout, "drain exceeded %s; queued work cancelled", timeout)
}

func NotSupported(what string) *Error {
	return New(CodeNotSupported, "%s not supported by this plugin", what)
}

func Internal(detail string) *Error {
	return New(CodeInternal, "%s", detail)
}
