package hostbridge

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"
)

// Config carries the instance-level settings supplied by the host at
// creation time. The Data blob is plugin-specific and opaque to the runtime.
type Config struct {
	// LogLevel is one of trace, debug, info, warn, error, off.
	LogLevel string

	// WorkerThreads is the fixed size of the dispatch worker pool.
	WorkerThreads int

	// MaxQueueDepth bounds the number of queued-but-unstarted requests.
	// A full queue rejects new submissions immediately.
	MaxQueueDepth int

	// ShutdownTimeout bounds the drain during Shutdown. Queued items still
	// waiting when it elapses are completed with Cancelled.
	ShutdownTimeout time.Duration

	// Data is the plugin-specific configuration payload, passed through
	// uninterpreted.
	Data json.RawMessage
}

const (
	defaultLogLevel        = "info"
	defaultMaxQueueDepth   = 1000
	defaultShutdownTimeout = 5 * time.Second
)

var validLogLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {}, "off": {},
}

// configWire is the JSON shape of the configuration blob.
type configWire struct {
	LogLevel          *string         `json:"log_level"`
	WorkerThreads     *int            `json:"worker_threads"`
	MaxQueueDepth     *int            `json:"max_queue_depth"`
	ShutdownTimeoutMS *uint64         `json:"shutdown_timeout_ms"`
	Data              json.RawMessage `json:"data"`
}

// DefaultConfig returns the configuration used when the host passes an
// empty blob.
func DefaultConfig() Config {
	return Config{
		LogLevel:        defaultLogLevel,
		WorkerThreads:   runtime.NumCPU(),
		MaxQueueDepth:   defaultMaxQueueDepth,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// ParseConfig decodes and validates a configuration blob. An empty blob
// yields DefaultConfig. Validation happens exactly once, here; a non-nil
// error is fatal and non-retryable.
func ParseConfig(blob []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(blob) == 0 {
		return cfg, nil
	}

	var wire configWire
	if err := json.Unmarshal(blob, &wire); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if wire.LogLevel != nil {
		cfg.LogLevel = *wire.LogLevel
	}
	if wire.WorkerThreads != nil {
		cfg.WorkerThreads = *wire.WorkerThreads
	}
	if wire.MaxQueueDepth != nil {
		cfg.MaxQueueDepth = *wire.MaxQueueDepth
	}
	if wire.ShutdownTimeoutMS != nil {
		cfg.ShutdownTimeout = time.Duration(*wire.ShutdownTimeoutMS) * time.Millisecond
	}
	cfg.Data = wire.Data

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if _, ok := validLogLevels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.WorkerThreads < 1 {
		return fmt.Errorf("worker_threads must be >= 1, got %d", c.WorkerThreads)
	}
	if c.MaxQueueDepth < 1 {
		return fmt.Errorf("max_queue_depth must be >= 1, got %d", c.MaxQueueDepth)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout_ms must be >= 0")
	}
	return nil
}
