// Package ffi is the flat boundary surface a host adapter targets: a
// factory taking a configuration blob, call-by-tag, call-by-binary-id,
// get-state, set-log-level, and shutdown.
//
// Instances live behind opaque integer handles in a lookup table. The
// host only ever sees the integer; a stale or forged handle fails the
// table lookup and is rejected before any dispatch. Handle ids are
// monotonic and never reused, so a handle that outlives its instance
// stays detectably invalid.
//
// No panic escapes this package. Every failure becomes a {code, message}
// descriptor; request buffers are copied on entry and response buffers
// belong to the caller, so neither side retains references across a call.
package ffi
