// Package registry maps request identifiers to handler implementations.
//
// A Builder collects registrations while the plugin is starting; Build
// freezes them into a Registry that is never mutated again, so concurrent
// lookups from worker threads need no synchronization.
//
// Two identifier spaces exist side by side: UTF-8 tags for the tagged-text
// encoding, and small integer message ids for the binary-struct encoding.
// Binary registrations carry the fixed Layout the handler expects.
package registry
