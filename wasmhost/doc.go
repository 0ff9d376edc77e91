// Package wasmhost runs a plugin compiled to WebAssembly behind the
// regular Plugin interface, using wazero as the execution engine.
//
// The guest module exports a small fixed surface:
//
//	plugin_alloc(size) -> ptr
//	plugin_free(ptr, size)
//	plugin_start(cfg_ptr, cfg_len) -> status
//	plugin_stop() -> status
//	plugin_call(tag_ptr, tag_len, req_ptr, req_len) -> packed ptr/len
//	plugin_call_binary(msg_id, req_ptr, req_len) -> packed ptr/len
//
// and may import hostbridge.log(level, ptr, len) for log lines. Call
// results come back as a guest-allocated buffer whose first four bytes
// are a little-endian error code, followed by the response body; the
// host copies the buffer out and frees it before the call returns.
package wasmhost
