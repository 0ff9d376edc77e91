package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Callback receives one rendered log line. Target is the logger name,
// level is the wire byte for the entry's severity.
type Callback func(level uint8, target, message string)

// offLevel sits above every real zap level so nothing is enabled.
const offLevel = zapcore.FatalLevel + 1

// ParseLevel maps a config string to a zap level. "trace" maps to debug,
// "off" disables output entirely.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "off":
		return offLevel, nil
	}
	return zapcore.InvalidLevel, fmt.Errorf("unknown log level %q", s)
}

// LevelFromByte maps a wire level byte to a zap level. Returns false for
// bytes outside the 0..5 range.
func LevelFromByte(b uint8) (zapcore.Level, bool) {
	switch b {
	case 0, 1:
		return zapcore.DebugLevel, true
	case 2:
		return zapcore.InfoLevel, true
	case 3:
		return zapcore.WarnLevel, true
	case 4:
		return zapcore.ErrorLevel, true
	case 5:
		return offLevel, true
	}
	return zapcore.InvalidLevel, false
}

func levelByte(l zapcore.Level) uint8 {
	switch {
	case l <= zapcore.DebugLevel:
		return 1
	case l == zapcore.InfoLevel:
		return 2
	case l == zapcore.WarnLevel:
		return 3
	default:
		return 4
	}
}

// New builds the runtime logger at the given level string. With a nil
// callback the logger is a no-op; the atomic level still works so the
// level can be raised before a callback ever exists.
func New(level string, cb Callback) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	atomic := zap.NewAtomicLevelAt(lvl)
	if cb == nil {
		return zap.NewNop(), atomic, nil
	}
	return zap.New(newCallbackCore(atomic, cb)), atomic, nil
}

// callbackCore renders entries with a console encoder and forwards the
// line to the host callback instead of a WriteSyncer.
type callbackCore struct {
	lvl zap.AtomicLevel
	cb  Callback
	enc zapcore.Encoder
}

func newCallbackCore(lvl zap.AtomicLevel, cb Callback) *callbackCore {
	cfg := zap.NewProductionEncoderConfig()
	// The host adds its own timestamp and level when it sinks the line.
	cfg.TimeKey = ""
	cfg.LevelKey = ""
	cfg.NameKey = ""
	return &callbackCore{
		lvl: lvl,
		cb:  cb,
		enc: zapcore.NewConsoleEncoder(cfg),
	}
}

func (c *callbackCore) Enabled(l zapcore.Level) bool {
	return c.lvl.Enabled(l)
}

func (c *callbackCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &callbackCore{lvl: c.lvl, cb: c.cb, enc: c.enc.Clone()}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return clone
}

func (c *callbackCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *callbackCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()
	c.cb(levelByte(ent.Level), ent.LoggerName, line)
	return nil
}

func (c *callbackCore) Sync() error { return nil }
