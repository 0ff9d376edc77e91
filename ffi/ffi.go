package ffi

import (
	"context"
	"fmt"
	"time"

	hostbridge "github.com/hostbridge/plugin-runtime"
	"github.com/hostbridge/plugin-runtime/errors"
	"github.com/hostbridge/plugin-runtime/logging"
	"github.com/hostbridge/plugin-runtime/runtime"
	"github.com/hostbridge/plugin-runtime/transport"
)

// Buffer is a binary response crossing the boundary. Code zero means Data
// holds the handler's response bytes; any other code means Data holds the
// UTF-8 error message. The caller owns Data.
type Buffer struct {
	Data []byte
	Code uint32
}

var defaultTable = newTable()

// guard converts a panic on the boundary path into an internal error
// descriptor. Nothing may unwind past an export.
func guard(derr **errors.Error) {
	if r := recover(); r != nil {
		*derr = errors.Internal(fmt.Sprintf("boundary panic: %v", r))
	}
}

// Init creates, configures, and starts a plugin instance, returning its
// handle. On any failure the handle is zero and the instance is discarded;
// a failed init must not be retried with the same configuration.
func Init(p hostbridge.Plugin, configBlob []byte, cb logging.Callback) (h Handle, derr *errors.Error) {
	defer guard(&derr)

	inst, derr := runtime.New(p, configBlob, cb)
	if derr != nil {
		return 0, derr
	}
	if derr = inst.Start(context.Background()); derr != nil {
		return 0, derr
	}
	return defaultTable.put(inst), nil
}

// Call dispatches one tagged-text request envelope. The return is always
// an encoded response envelope plus its error code, zero on success. The
// request buffer is copied before dispatch and may be reused by the
// caller immediately.
func Call(h Handle, request []byte) (data []byte, code uint32) {
	defer func() {
		if r := recover(); r != nil {
			data, code = encodeFailure(errors.Internal(fmt.Sprintf("boundary panic: %v", r)))
		}
	}()

	inst, ok := defaultTable.get(h)
	if !ok {
		return encodeFailure(errors.InvalidHandle(uint64(h)))
	}

	req := append([]byte(nil), request...)
	resp := inst.Call(context.Background(), req)
	data, eerr := resp.Encode()
	if eerr != nil {
		return encodeFailure(eerr)
	}
	return data, resp.ErrorCode
}

// CallBinary dispatches one fixed-layout binary request. The request
// buffer is copied before dispatch; the returned Buffer belongs to the
// caller.
func CallBinary(h Handle, msgID uint32, request []byte) (buf Buffer) {
	defer func() {
		if r := recover(); r != nil {
			buf = errBuffer(errors.Internal(fmt.Sprintf("boundary panic: %v", r)))
		}
	}()

	inst, ok := defaultTable.get(h)
	if !ok {
		return errBuffer(errors.InvalidHandle(uint64(h)))
	}

	req := append([]byte(nil), request...)
	out, cerr := inst.CallBinary(context.Background(), msgID, req)
	if cerr != nil {
		return errBuffer(cerr)
	}
	return Buffer{Data: out}
}

// GetState reports the instance's lifecycle state byte. Unknown handles
// return the invalid-state sentinel rather than an error; the call is
// always safe.
func GetState(h Handle) uint8 {
	inst, ok := defaultTable.get(h)
	if !ok {
		return hostbridge.StateInvalid
	}
	return uint8(inst.State())
}

// SetLogLevel changes the instance's log level from a wire level byte.
// False for unknown handles or bytes outside 0..5.
func SetLogLevel(h Handle, level uint8) bool {
	inst, ok := defaultTable.get(h)
	if !ok {
		return false
	}
	return inst.SetLogLevel(level)
}

// Shutdown drains and stops the instance and invalidates its handle.
// The handle is removed from the table first, so no new call can race the
// teardown. Returns false only for an unknown handle; a drain that timed
// out still counts as a completed shutdown.
func Shutdown(h Handle, timeout time.Duration) bool {
	inst, ok := defaultTable.remove(h)
	if !ok {
		return false
	}
	inst.Shutdown(timeout)
	return true
}

// RejectedCount reports the instance's monotonic rejected-request
// counter. Zero for unknown handles.
func RejectedCount(h Handle) uint64 {
	inst, ok := defaultTable.get(h)
	if !ok {
		return 0
	}
	return inst.RejectedCount()
}

func encodeFailure(derr *errors.Error) ([]byte, uint32) {
	env := transport.Failure(derr)
	data, eerr := env.Encode()
	if eerr != nil {
		// Descriptor fields are plain strings; encoding them cannot fail
		// short of memory corruption. Keep the code either way.
		return nil, uint32(derr.Code)
	}
	return data, env.ErrorCode
}

func errBuffer(derr *errors.Error) Buffer {
	code, msg := derr.Descriptor()
	return Buffer{Data: []byte(msg), Code: code}
}
