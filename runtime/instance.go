package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	hostbridge "github.com/hostbridge/plugin-runtime"
	"github.com/hostbridge/plugin-runtime/dispatch"
	"github.com/hostbridge/plugin-runtime/errors"
	"github.com/hostbridge/plugin-runtime/logging"
	"github.com/hostbridge/plugin-runtime/registry"
	"github.com/hostbridge/plugin-runtime/transport"
)

// Instance is one loaded plugin: its configuration, registry snapshot,
// dispatcher, and lifecycle state. Instances are created by New, started
// once, and shut down exactly once.
type Instance struct {
	plugin hostbridge.Plugin
	cfg    hostbridge.Config
	log    *zap.Logger
	level  zap.AtomicLevel

	state atomic.Uint32

	reg  *registry.Registry
	disp *dispatch.Dispatcher

	shutdownOnce sync.Once
	shutdownDone chan struct{}
	shutdownErr  *errors.Error
}

// New validates the configuration blob and builds an unstarted Instance.
// A configuration error is fatal; the caller must not retry with the same
// blob.
func New(p hostbridge.Plugin, configBlob []byte, cb logging.Callback) (*Instance, *errors.Error) {
	if p == nil {
		return nil, errors.ConfigInvalid(fmt.Errorf("nil plugin"))
	}
	cfg, err := hostbridge.ParseConfig(configBlob)
	if err != nil {
		return nil, errors.ConfigInvalid(err)
	}
	log, level, err := logging.New(cfg.LogLevel, cb)
	if err != nil {
		return nil, errors.ConfigInvalid(err)
	}

	i := &Instance{
		plugin:       p,
		cfg:          cfg,
		log:          log,
		level:        level,
		shutdownDone: make(chan struct{}),
	}
	i.state.Store(uint32(hostbridge.StateCreated))
	return i, nil
}

// State returns the current lifecycle state. Side-effect free, safe to
// call concurrently with dispatch and shutdown.
func (i *Instance) State() hostbridge.LifecycleState {
	return hostbridge.LifecycleState(i.state.Load())
}

// Config returns the validated instance configuration.
func (i *Instance) Config() hostbridge.Config {
	return i.cfg
}

func (i *Instance) transition(from, to hostbridge.LifecycleState) bool {
	if !from.CanTransitionTo(to) {
		return false
	}
	return i.state.CompareAndSwap(uint32(from), uint32(to))
}

func (i *Instance) fail() {
	for {
		s := i.State()
		if s.IsTerminal() {
			return
		}
		if i.state.CompareAndSwap(uint32(s), uint32(hostbridge.StateFailed)) {
			return
		}
	}
}

// Start runs the plugin's registration and startup hooks and opens
// dispatch. A failed start leaves the instance Failed; the instance must
// be discarded, not retried.
func (i *Instance) Start(ctx context.Context) *errors.Error {
	if !i.transition(hostbridge.StateCreated, hostbridge.StateStarting) {
		return errors.InvalidState("start", i.State().String())
	}

	builder := registry.NewBuilder()
	if err := i.plugin.Register(builder); err != nil {
		i.fail()
		i.log.Error("handler registration failed", zap.Error(err))
		return errors.StartupFailure(err)
	}
	if err := i.plugin.Start(ctx); err != nil {
		i.fail()
		i.log.Error("startup hook failed", zap.Error(err))
		return errors.StartupFailure(err)
	}

	i.reg = builder.Build()
	i.disp = dispatch.New(i.cfg.WorkerThreads, i.cfg.MaxQueueDepth, i.execute, i.log.Named("dispatch"))
	i.disp.Start()

	if !i.transition(hostbridge.StateStarting, hostbridge.StateRunning) {
		i.fail()
		return errors.StartupFailure(fmt.Errorf("state changed during startup"))
	}
	i.log.Info("plugin running",
		zap.Strings("tags", i.reg.Tags()),
		zap.Uint32s("message_ids", i.reg.MessageIDs()),
		zap.Int("workers", i.cfg.WorkerThreads),
		zap.Int("queue_depth", i.cfg.MaxQueueDepth))
	return nil
}

// execute resolves and runs one handler invocation on a dispatch worker.
// A panicking handler is converted to a handler error; it never takes the
// worker down.
func (i *Instance) execute(ctx context.Context, id dispatch.Identifier, payload []byte) (out []byte, derr *errors.Error) {
	defer func() {
		if r := recover(); r != nil {
			i.log.Error("handler panic", zap.Stringer("id", id), zap.Any("panic", r))
			out = nil
			derr = errors.Handler(fmt.Errorf("handler panic: %v", r))
		}
	}()

	if id.Binary {
		h, layout, ok := i.reg.LookupBinary(id.MsgID)
		if !ok {
			return nil, errors.UnknownMessageID(id.MsgID)
		}
		if cerr := layout.Check(payload); cerr != nil {
			return nil, cerr
		}
		res, err := h(ctx, payload)
		if err != nil {
			return nil, errors.From(err)
		}
		return res, nil
	}

	h, ok := i.reg.Lookup(id.Tag)
	if !ok {
		return nil, errors.UnknownTag(id.Tag)
	}
	res, err := h(ctx, payload)
	if err != nil {
		return nil, errors.From(err)
	}
	return res, nil
}

// admit performs the state gate shared by both call paths.
func (i *Instance) admit(op string) *errors.Error {
	switch s := i.State(); {
	case s == hostbridge.StateStopping:
		return errors.InvalidState(op, "shutting down")
	case !s.CanDispatch():
		return errors.InvalidState(op, s.String())
	}
	return nil
}

// Call dispatches one tagged-text request. The request bytes are a JSON
// request envelope; the return is always a response envelope, carrying
// either the handler's payload or an error descriptor. The response
// echoes the request's id and correlation id.
func (i *Instance) Call(ctx context.Context, request []byte) transport.ResponseEnvelope {
	if derr := i.admit("call"); derr != nil {
		return transport.Failure(derr)
	}
	req, derr := transport.DecodeRequest(request)
	if derr != nil {
		return transport.Failure(derr)
	}

	resp := i.dispatchEnvelope(ctx, dispatch.Identifier{Tag: req.Tag}, req.Payload)
	resp.RequestID = req.RequestID
	resp.CorrelationID = req.CorrelationID
	return resp
}

func (i *Instance) dispatchEnvelope(ctx context.Context, id dispatch.Identifier, payload []byte) transport.ResponseEnvelope {
	done, derr := i.disp.Submit(ctx, id, payload)
	if derr != nil {
		return transport.Failure(derr)
	}
	res := <-done
	if res.Err != nil {
		return transport.Failure(res.Err)
	}
	return transport.Success(res.Data)
}

// CallBinary dispatches one fixed-layout binary request. Fails fast with
// NotSupported when the plugin registered no binary handlers at all.
func (i *Instance) CallBinary(ctx context.Context, msgID uint32, request []byte) ([]byte, *errors.Error) {
	if derr := i.admit("call_binary"); derr != nil {
		return nil, derr
	}
	if !i.reg.HasBinary() {
		return nil, errors.NotSupported("binary transport")
	}

	done, derr := i.disp.Submit(ctx, dispatch.Identifier{MsgID: msgID, Binary: true}, request)
	if derr != nil {
		return nil, derr
	}
	res := <-done
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Data, nil
}

// Shutdown drains the dispatcher and runs the plugin's stop hook exactly
// once, regardless of how many goroutines call it. Every caller observes
// the same result. Uses the configured timeout when timeout < 0.
//
// An instance that never started has nothing to drain and no stop hook
// owed; Shutdown rejects it so a later post-Start shutdown still runs.
func (i *Instance) Shutdown(timeout time.Duration) *errors.Error {
	if s := i.State(); s == hostbridge.StateCreated || s == hostbridge.StateStarting {
		return errors.InvalidState("shutdown", s.String())
	}
	i.shutdownOnce.Do(func() {
		defer close(i.shutdownDone)
		if timeout < 0 {
			timeout = i.cfg.ShutdownTimeout
		}
		i.shutdownErr = i.doShutdown(timeout)
	})
	<-i.shutdownDone
	return i.shutdownErr
}

func (i *Instance) doShutdown(timeout time.Duration) *errors.Error {
	switch s := i.State(); s {
	case hostbridge.StateRunning:
		if !i.transition(hostbridge.StateRunning, hostbridge.StateStopping) {
			return errors.InvalidState("shutdown", i.State().String())
		}
	case hostbridge.StateFailed:
		// Startup already tore itself down; nothing to drain or stop.
		return nil
	default:
		return errors.InvalidState("shutdown", s.String())
	}

	i.log.Info("shutting down", zap.Duration("timeout", timeout))
	drainErr := i.disp.Shutdown(timeout)

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()
	if err := i.plugin.Stop(stopCtx); err != nil {
		i.log.Error("stop hook failed", zap.Error(err))
	}

	i.transition(hostbridge.StateStopping, hostbridge.StateStopped)
	i.log.Info("plugin stopped")
	return drainErr
}

// RejectedCount reports how many submissions the dispatcher has turned
// away since start. Zero before Start.
func (i *Instance) RejectedCount() uint64 {
	if i.disp == nil {
		return 0
	}
	return i.disp.RejectedCount()
}

// SetLogLevel changes the runtime log level from a wire level byte.
// Returns false for bytes outside 0..5; the level is left unchanged.
func (i *Instance) SetLogLevel(b uint8) bool {
	lvl, ok := logging.LevelFromByte(b)
	if !ok {
		return false
	}
	i.level.SetLevel(lvl)
	return true
}
