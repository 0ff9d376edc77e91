// Package runtime ties the pieces together: one Instance per loaded
// plugin, owning its configuration, registry snapshot, dispatcher, logger,
// and lifecycle state.
//
// The state machine is Created -> Starting -> Running -> Stopping ->
// Stopped, with Failed reachable from any non-terminal state. Dispatch is
// accepted only while Running. Shutdown is idempotent and safe to call
// concurrently; the plugin's stop hook runs exactly once per instance.
package runtime
