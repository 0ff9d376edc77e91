// Package hostbridge defines the contract between a host runtime and a
// natively compiled plugin loaded as an in-process library.
//
// A plugin implements the Plugin interface and is driven through a strict
// lifecycle: Created -> Starting -> Running -> Stopping -> Stopped, with
// Failed reachable from any non-terminal state. Requests are only dispatched
// while Running.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	hostbridge/    Root package with the Plugin contract, lifecycle and config
//	├── runtime/   Per-instance controller: create, start, call, shutdown
//	├── dispatch/  Bounded work queue and fixed worker pool
//	├── registry/  Immutable-after-startup identifier -> handler table
//	├── transport/ Wire encodings: tagged-text envelopes and binary layouts
//	├── ffi/       Foreign-function boundary: handle table, flat call surface
//	├── logging/   zap logger wiring and the host log callback sink
//	├── errors/    Stable error descriptors crossing the boundary
//	└── wasmhost/  Adapter that runs a compiled wasm library as a Plugin
//
// # Quick Start
//
// Initialize a plugin and call it by tag:
//
//	h, derr := ffi.Init(myPlugin, configJSON, nil)
//	if derr != nil {
//	    log.Fatal(derr)
//	}
//	req, _ := transport.NewRequest("echo", payload).Encode()
//	resp, code := ffi.Call(h, req)
//	_ = resp // encoded response envelope; code is zero on success
//	ffi.Shutdown(h, 5*time.Second)
//
// # Concurrency Model
//
// Each instance owns one bounded queue and a fixed pool of workers. Submit
// never blocks: a full queue rejects immediately with QueueFull, which is the
// system's entire backpressure contract. Dequeue order equals submission
// order; completion order across workers is unordered.
//
// # Boundary Safety
//
// Handles are opaque integers into a native-side table, never raw pointers.
// Every buffer crossing the boundary is copied during the call; neither side
// retains references past the call's return. No panic or native fault ever
// crosses the boundary - every failure becomes exactly one {code, message}
// descriptor.
package hostbridge
