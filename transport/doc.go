// Package transport implements the two wire encodings requests and
// responses use to cross the foreign-function boundary.
//
// # Tagged-text encoding
//
// A request is a UTF-8 tag plus an opaque payload; a response is a status
// plus either a payload or an error descriptor. Both are framed as JSON
// envelopes. The runtime never interprets the payload - it is an agreed
// structured encoding between plugin and host.
//
// # Binary-struct encoding
//
// Latency-sensitive identifiers map a small integer message id to a fixed
// Layout registered at startup: a 1-byte version field at offset zero,
// alignment padding, fixed-order fixed-size fields, and fixed-capacity byte
// buffers each paired with an explicit u32 length field. All multi-byte
// values are little-endian. The version byte lets a handler reject a
// mismatched caller instead of misinterpreting memory.
package transport
