package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestCode_Stable(t *testing.T) {
	// These values are wire contract; a renumber breaks every host shim.
	want := map[Code]uint32{
		CodeInvalidHandle:     1,
		CodeInvalidState:      2,
		CodeConfigInvalid:     3,
		CodeStartupFailure:    4,
		CodeUnknownIdentifier: 5,
		CodeSerialization:     6,
		CodeHandler:           7,
		CodeQueueFull:         8,
		CodeCancelled:         9,
		CodeShutdownTimeout:   10,
		CodeNotSupported:      11,
		CodeInternal:          12,
	}
	for code, value := range want {
		if uint32(code) != value {
			t.Errorf("%s = %d, want %d", code, uint32(code), value)
		}
	}
}

func TestCode_Retryable(t *testing.T) {
	if !CodeQueueFull.Retryable() {
		t.Error("QueueFull must be retryable")
	}
	if !CodeShutdownTimeout.Retryable() {
		t.Error("ShutdownTimeout must be retryable")
	}
	for _, c := range []Code{CodeConfigInvalid, CodeStartupFailure, CodeHandler, CodeInvalidHandle} {
		if c.Retryable() {
			t.Errorf("%s must not be retryable", c)
		}
	}
}

func TestError_Is(t *testing.T) {
	err := QueueFull()
	if !stderrors.Is(err, &Error{Code: CodeQueueFull}) {
		t.Error("Is should match on code")
	}
	if stderrors.Is(err, &Error{Code: CodeCancelled}) {
		t.Error("Is should not match a different code")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := StartupFailure(cause)
	if !stderrors.Is(err, cause) {
		t.Error("Unwrap chain should reach the cause")
	}
}

func TestFrom_PassesDescriptorThrough(t *testing.T) {
	orig := ShutdownTimeout(time.Second)
	if From(orig) != orig {
		t.Error("From must not re-wrap an existing descriptor")
	}
}

func TestFrom_WrapsHandlerErrorVerbatim(t *testing.T) {
	err := From(fmt.Errorf("user not found: 42"))
	if err.Code != CodeHandler {
		t.Fatalf("code = %s, want handler_error", err.Code)
	}
	code, msg := err.Descriptor()
	if code != 7 || msg != "user not found: 42" {
		t.Errorf("descriptor = (%d, %q), want verbatim handler message", code, msg)
	}
}

func TestFromCode_RoundTrip(t *testing.T) {
	orig := UnknownTag("user.create")
	code, msg := orig.Descriptor()
	back := FromCode(code, msg)
	if back.Code != orig.Code || back.Message != orig.Message {
		t.Errorf("round trip changed descriptor: %v -> %v", orig, back)
	}
}

func TestFrom_Nil(t *testing.T) {
	if From(nil) != nil {
		t.Error("From(nil) must be nil")
	}
}
