package wasmhost

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/hostbridge/plugin-runtime/errors"
	"github.com/hostbridge/plugin-runtime/registry"
	"github.com/hostbridge/plugin-runtime/transport"
)

// hostModule is the import namespace the guest sees.
const hostModule = "hostbridge"

// Config describes the guest module and the identifiers it serves.
type Config struct {
	// ModuleName is the wazero instance name. Defaults to "plugin".
	ModuleName string

	// Tags lists the tagged-text identifiers routed to plugin_call.
	Tags []string

	// BinaryMessages maps binary message ids to their layouts, routed to
	// plugin_call_binary.
	BinaryMessages map[uint32]*transport.Layout

	// InitPayload is handed to plugin_start verbatim.
	InitPayload []byte

	// MaxResponseSize bounds a single guest response. Defaults to 16 MiB.
	MaxResponseSize uint32

	// MemoryLimitPages caps guest memory in 64 KiB pages. 0 means the
	// wazero default.
	MemoryLimitPages uint32

	// Logger receives guest log lines. Defaults to a no-op logger.
	Logger *zap.Logger
}

const defaultMaxResponseSize = 16 << 20

func (c *Config) validate() error {
	if len(c.Tags) == 0 && len(c.BinaryMessages) == 0 {
		return fmt.Errorf("guest serves no identifiers")
	}
	for id, layout := range c.BinaryMessages {
		if layout == nil {
			return fmt.Errorf("nil layout for message id %d", id)
		}
	}
	if c.ModuleName == "" {
		c.ModuleName = "plugin"
	}
	if c.MaxResponseSize == 0 {
		c.MaxResponseSize = defaultMaxResponseSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}

// Guest is a wazero-backed Plugin. One Guest owns one module instance;
// calls into the instance are serialized because a wazero module is not
// safe for concurrent invocation.
type Guest struct {
	cfg Config
	log *zap.Logger

	rt  wazero.Runtime
	mod api.Module

	mu         sync.Mutex
	alloc      api.Function
	free       api.Function
	start      api.Function
	stop       api.Function
	call       api.Function
	callBinary api.Function
}

// Load compiles and instantiates a guest module from its wasm bytes.
func Load(ctx context.Context, wasmBytes []byte, cfg Config) (*Guest, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rtCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	g := &Guest{cfg: cfg, log: cfg.Logger, rt: rt}

	_, err := rt.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(g.hostLog),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
			nil).
		Export("log").
		Instantiate(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	mod, err := rt.InstantiateWithConfig(ctx, wasmBytes,
		wazero.NewModuleConfig().WithName(cfg.ModuleName))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate guest: %w", err)
	}
	g.mod = mod

	for _, e := range []struct {
		name string
		dst  *api.Function
	}{
		{"plugin_alloc", &g.alloc},
		{"plugin_free", &g.free},
		{"plugin_start", &g.start},
		{"plugin_stop", &g.stop},
		{"plugin_call", &g.call},
		{"plugin_call_binary", &g.callBinary},
	} {
		fn := mod.ExportedFunction(e.name)
		if fn == nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("guest does not export %s", e.name)
		}
		*e.dst = fn
	}
	return g, nil
}

// LoadFile reads a wasm file and loads it as a guest.
func LoadFile(ctx context.Context, path string, cfg Config) (*Guest, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	return Load(ctx, wasmBytes, cfg)
}

// hostLog forwards a guest log line to the configured logger.
func (g *Guest) hostLog(_ context.Context, mod api.Module, stack []uint64) {
	level, ptr, length := uint8(stack[0]), uint32(stack[1]), uint32(stack[2])
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		g.log.Warn("guest log line out of bounds",
			zap.Uint32("ptr", ptr), zap.Uint32("len", length))
		return
	}
	msg := string(data)
	switch {
	case level <= 1:
		g.log.Debug(msg)
	case level == 2:
		g.log.Info(msg)
	case level == 3:
		g.log.Warn(msg)
	default:
		g.log.Error(msg)
	}
}

// Register wires every configured identifier to a guest invocation.
func (g *Guest) Register(b *registry.Builder) error {
	for _, tag := range g.cfg.Tags {
		tag := tag
		err := b.Handle(tag, func(ctx context.Context, payload []byte) ([]byte, error) {
			return g.invokeTag(ctx, tag, payload)
		})
		if err != nil {
			return err
		}
	}
	for id, layout := range g.cfg.BinaryMessages {
		id := id
		err := b.HandleBinary(id, layout, func(ctx context.Context, request []byte) ([]byte, error) {
			return g.invokeBinary(ctx, id, request)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Start runs plugin_start with the init payload.
func (g *Guest) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ptr, length, err := g.writeGuest(ctx, g.cfg.InitPayload)
	if err != nil {
		return err
	}
	defer g.freeGuest(ctx, ptr, length)

	res, err := g.start.Call(ctx, uint64(ptr), uint64(length))
	if err != nil {
		return fmt.Errorf("plugin_start trapped: %w", err)
	}
	if status := int32(res[0]); status != 0 {
		return fmt.Errorf("plugin_start returned status %d", status)
	}
	return nil
}

// Stop runs plugin_stop and tears the wazero runtime down.
func (g *Guest) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, err := g.stop.Call(ctx)
	if cerr := g.rt.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (g *Guest) invokeTag(ctx context.Context, tag string, payload []byte) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tagPtr, tagLen, err := g.writeGuest(ctx, []byte(tag))
	if err != nil {
		return nil, err
	}
	defer g.freeGuest(ctx, tagPtr, tagLen)

	reqPtr, reqLen, err := g.writeGuest(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer g.freeGuest(ctx, reqPtr, reqLen)

	res, err := g.call.Call(ctx,
		uint64(tagPtr), uint64(tagLen), uint64(reqPtr), uint64(reqLen))
	if err != nil {
		return nil, fmt.Errorf("plugin_call trapped: %w", err)
	}
	return g.readResponse(ctx, res[0])
}

func (g *Guest) invokeBinary(ctx context.Context, msgID uint32, request []byte) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reqPtr, reqLen, err := g.writeGuest(ctx, request)
	if err != nil {
		return nil, err
	}
	defer g.freeGuest(ctx, reqPtr, reqLen)

	res, err := g.callBinary.Call(ctx, uint64(msgID), uint64(reqPtr), uint64(reqLen))
	if err != nil {
		return nil, fmt.Errorf("plugin_call_binary trapped: %w", err)
	}
	return g.readResponse(ctx, res[0])
}

// writeGuest copies data into guest-allocated memory. A zero-length
// buffer allocates nothing.
func (g *Guest) writeGuest(ctx context.Context, data []byte) (uint32, uint32, error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	res, err := g.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("plugin_alloc trapped: %w", err)
	}
	ptr := uint32(res[0])
	if ptr == 0 {
		return 0, 0, fmt.Errorf("guest allocation of %d bytes failed", len(data))
	}
	if !g.mod.Memory().Write(ptr, data) {
		return 0, 0, fmt.Errorf("guest write at %d out of bounds", ptr)
	}
	return ptr, uint32(len(data)), nil
}

func (g *Guest) freeGuest(ctx context.Context, ptr, length uint32) {
	if ptr == 0 {
		return
	}
	if _, err := g.free.Call(ctx, uint64(ptr), uint64(length)); err != nil {
		g.log.Warn("plugin_free trapped", zap.Error(err))
	}
}

// readResponse copies a packed guest response out and frees it. The
// buffer starts with a 4-byte little-endian code; nonzero means the rest
// is an error message.
func (g *Guest) readResponse(ctx context.Context, packed uint64) ([]byte, error) {
	ptr, length := unpackPtrLen(packed)
	if ptr == 0 {
		return nil, errors.Internal("guest returned a null response")
	}
	defer g.freeGuest(ctx, ptr, length)

	if length < respHeaderSize {
		return nil, errors.Serialization(
			fmt.Sprintf("guest response of %d bytes is shorter than its header", length), nil)
	}
	if length > g.cfg.MaxResponseSize {
		return nil, errors.Serialization(
			fmt.Sprintf("guest response of %d bytes exceeds the %d byte limit", length, g.cfg.MaxResponseSize), nil)
	}
	raw, ok := g.mod.Memory().Read(ptr, length)
	if !ok {
		return nil, errors.Internal("guest response out of bounds")
	}
	// Copy before free; raw aliases guest memory.
	buf := append([]byte(nil), raw...)

	code, body := splitResponse(buf)
	if code != 0 {
		return nil, errors.FromCode(code, string(body))
	}
	return body, nil
}

// respHeaderSize is the 4-byte little-endian code prefix.
const respHeaderSize = 4

func splitResponse(buf []byte) (uint32, []byte) {
	return binary.LittleEndian.Uint32(buf[:respHeaderSize]), buf[respHeaderSize:]
}

// packPtrLen packs a guest pointer and length into the single i64 a wasm
// export can return.
func packPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpackPtrLen(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}
