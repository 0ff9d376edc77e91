package hostbridge

import (
	"context"

	"github.com/hostbridge/plugin-runtime/registry"
)

// Plugin is the contract a loadable extension implements.
//
// The runtime drives the three hooks from the lifecycle state machine:
// Register and Start run while the instance is Starting, Stop runs exactly
// once while it is Stopping. Handlers registered in Register are invoked
// concurrently by up to WorkerThreads workers; any state a handler shares
// across calls is the handler's own synchronization responsibility.
type Plugin interface {
	// Register declares every identifier the plugin answers to. The
	// resulting table is frozen before the instance reaches Running and
	// is never mutated afterwards.
	Register(reg *registry.Builder) error

	// Start initializes plugin resources. A non-nil error is fatal: the
	// instance transitions to Failed and must be discarded.
	Start(ctx context.Context) error

	// Stop releases plugin resources. Invoked exactly once per instance,
	// after in-flight work has drained.
	Stop(ctx context.Context) error
}
