package transport

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hostbridge/plugin-runtime/errors"
)

// Kind identifies a binary layout field type.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
	KindU64
	KindI8
	KindI16
	KindI32
	KindI64
	KindF32
	KindF64
	// KindBytes is a fixed-capacity buffer paired with an explicit u32
	// length field. Never sentinel-terminated.
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// size returns the encoded size of scalar kinds. KindBytes is sized by its
// declared capacity.
func (k Kind) size() uint32 {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindU64, KindI64, KindF64:
		return 8
	default:
		return 0
	}
}

// align returns the required alignment. Buffers align to 4 so their paired
// length field lands naturally after the data.
func (k Kind) align() uint32 {
	if k == KindBytes {
		return 4
	}
	return k.size()
}

// Field declares one layout member. Capacity applies to KindBytes only.
type Field struct {
	Name     string
	Kind     Kind
	Capacity uint32
}

type boundField struct {
	Field
	offset uint32
	// lenOffset is the offset of the u32 length field, KindBytes only.
	lenOffset uint32
}

// Layout is a registration-time descriptor for one binary message: field
// offsets, padding, and total size are computed once and never change. All
// multi-byte values are little-endian.
type Layout struct {
	version uint8
	fields  []boundField
	index   map[string]int
	size    uint32
}

// Byte order for every multi-byte field.
var byteOrder = binary.LittleEndian

func alignTo(offset, align uint32) uint32 {
	return (offset + align - 1) &^ (align - 1)
}

// NewLayout computes a layout from an ordered field list. The version byte
// always occupies offset zero; padding is inserted to keep every field
// naturally aligned.
func NewLayout(version uint8, fields ...Field) (*Layout, error) {
	l := &Layout{
		version: version,
		fields:  make([]boundField, 0, len(fields)),
		index:   make(map[string]int, len(fields)),
	}

	offset := uint32(1) // version byte
	maxAlign := uint32(1)

	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("layout field with empty name")
		}
		if _, dup := l.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate layout field %q", f.Name)
		}

		bf := boundField{Field: f}
		switch {
		case f.Kind == KindBytes:
			if f.Capacity == 0 {
				return nil, fmt.Errorf("bytes field %q needs a capacity", f.Name)
			}
			offset = alignTo(offset, f.Kind.align())
			bf.offset = offset
			offset += f.Capacity
			offset = alignTo(offset, 4)
			bf.lenOffset = offset
			offset += 4
		case f.Kind.size() > 0:
			if f.Capacity != 0 {
				return nil, fmt.Errorf("scalar field %q must not set a capacity", f.Name)
			}
			offset = alignTo(offset, f.Kind.align())
			bf.offset = offset
			offset += f.Kind.size()
		default:
			return nil, fmt.Errorf("field %q has invalid kind", f.Name)
		}

		if a := f.Kind.align(); a > maxAlign {
			maxAlign = a
		}
		l.index[f.Name] = len(l.fields)
		l.fields = append(l.fields, bf)
	}

	l.size = alignTo(offset, maxAlign)
	return l, nil
}

// MustLayout is NewLayout for layouts declared as package variables.
func MustLayout(version uint8, fields ...Field) *Layout {
	l, err := NewLayout(version, fields...)
	if err != nil {
		panic(err)
	}
	return l
}

// Size returns the total encoded size including trailing padding.
func (l *Layout) Size() uint32 {
	return l.size
}

// Version returns the layout's version byte.
func (l *Layout) Version() uint8 {
	return l.version
}

// Offset returns a field's byte offset, for hosts generating struct
// definitions from the descriptor.
func (l *Layout) Offset(name string) (uint32, bool) {
	i, ok := l.index[name]
	if !ok {
		return 0, false
	}
	return l.fields[i].offset, true
}

// New allocates a zeroed message buffer with the version byte set.
func (l *Layout) New() []byte {
	buf := make([]byte, l.size)
	buf[0] = l.version
	return buf
}

// Check validates size and version before any field is touched. A version
// mismatch is rejected rather than risking misinterpreted memory.
func (l *Layout) Check(data []byte) *errors.Error {
	if uint32(len(data)) < l.size {
		return errors.Serialization(
			fmt.Sprintf("message is %d bytes, layout needs %d", len(data), l.size), nil)
	}
	if data[0] != l.version {
		return errors.Serialization(
			fmt.Sprintf("message version %d, layout version %d", data[0], l.version), nil)
	}
	return nil
}

func (l *Layout) field(name string, want Kind) (*boundField, *errors.Error) {
	i, ok := l.index[name]
	if !ok {
		return nil, errors.Serialization(fmt.Sprintf("layout has no field %q", name), nil)
	}
	f := &l.fields[i]
	if want == KindBytes && f.Kind != KindBytes {
		return nil, errors.Serialization(fmt.Sprintf("field %q is %s, not bytes", name, f.Kind), nil)
	}
	return f, nil
}

// PutUint writes an unsigned scalar field, rejecting values that overflow
// the field's width.
func (l *Layout) PutUint(data []byte, name string, v uint64) *errors.Error {
	f, err := l.field(name, 0)
	if err != nil {
		return err
	}
	switch f.Kind {
	case KindU8:
		if v > math.MaxUint8 {
			return overflow(name, v, f.Kind)
		}
		data[f.offset] = uint8(v)
	case KindU16:
		if v > math.MaxUint16 {
			return overflow(name, v, f.Kind)
		}
		byteOrder.PutUint16(data[f.offset:], uint16(v))
	case KindU32:
		if v > math.MaxUint32 {
			return overflow(name, v, f.Kind)
		}
		byteOrder.PutUint32(data[f.offset:], uint32(v))
	case KindU64:
		byteOrder.PutUint64(data[f.offset:], v)
	default:
		return kindMismatch(name, f.Kind, "unsigned")
	}
	return nil
}

// Uint reads an unsigned scalar field.
func (l *Layout) Uint(data []byte, name string) (uint64, *errors.Error) {
	f, err := l.field(name, 0)
	if err != nil {
		return 0, err
	}
	switch f.Kind {
	case KindU8:
		return uint64(data[f.offset]), nil
	case KindU16:
		return uint64(byteOrder.Uint16(data[f.offset:])), nil
	case KindU32:
		return uint64(byteOrder.Uint32(data[f.offset:])), nil
	case KindU64:
		return byteOrder.Uint64(data[f.offset:]), nil
	default:
		return 0, kindMismatch(name, f.Kind, "unsigned")
	}
}

// PutInt writes a signed scalar field.
func (l *Layout) PutInt(data []byte, name string, v int64) *errors.Error {
	f, err := l.field(name, 0)
	if err != nil {
		return err
	}
	switch f.Kind {
	case KindI8:
		if v < math.MinInt8 || v > math.MaxInt8 {
			return overflow(name, v, f.Kind)
		}
		data[f.offset] = uint8(int8(v))
	case KindI16:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return overflow(name, v, f.Kind)
		}
		byteOrder.PutUint16(data[f.offset:], uint16(int16(v)))
	case KindI32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return overflow(name, v, f.Kind)
		}
		byteOrder.PutUint32(data[f.offset:], uint32(int32(v)))
	case KindI64:
		byteOrder.PutUint64(data[f.offset:], uint64(v))
	default:
		return kindMismatch(name, f.Kind, "signed")
	}
	return nil
}

// Int reads a signed scalar field.
func (l *Layout) Int(data []byte, name string) (int64, *errors.Error) {
	f, err := l.field(name, 0)
	if err != nil {
		return 0, err
	}
	switch f.Kind {
	case KindI8:
		return int64(int8(data[f.offset])), nil
	case KindI16:
		return int64(int16(byteOrder.Uint16(data[f.offset:]))), nil
	case KindI32:
		return int64(int32(byteOrder.Uint32(data[f.offset:]))), nil
	case KindI64:
		return int64(byteOrder.Uint64(data[f.offset:])), nil
	default:
		return 0, kindMismatch(name, f.Kind, "signed")
	}
}

// PutFloat writes a floating-point field.
func (l *Layout) PutFloat(data []byte, name string, v float64) *errors.Error {
	f, err := l.field(name, 0)
	if err != nil {
		return err
	}
	switch f.Kind {
	case KindF32:
		byteOrder.PutUint32(data[f.offset:], math.Float32bits(float32(v)))
	case KindF64:
		byteOrder.PutUint64(data[f.offset:], math.Float64bits(v))
	default:
		return kindMismatch(name, f.Kind, "float")
	}
	return nil
}

// Float reads a floating-point field.
func (l *Layout) Float(data []byte, name string) (float64, *errors.Error) {
	f, err := l.field(name, 0)
	if err != nil {
		return 0, err
	}
	switch f.Kind {
	case KindF32:
		return float64(math.Float32frombits(byteOrder.Uint32(data[f.offset:]))), nil
	case KindF64:
		return math.Float64frombits(byteOrder.Uint64(data[f.offset:])), nil
	default:
		return 0, kindMismatch(name, f.Kind, "float")
	}
}

// PutBytes writes a buffer field: data up to capacity, explicit length in
// the paired length field, remainder zeroed for deterministic encoding.
func (l *Layout) PutBytes(data []byte, name string, b []byte) *errors.Error {
	f, err := l.field(name, KindBytes)
	if err != nil {
		return err
	}
	if uint32(len(b)) > f.Capacity {
		return errors.Serialization(
			fmt.Sprintf("field %q: %d bytes exceed capacity %d", name, len(b), f.Capacity), nil)
	}
	n := copy(data[f.offset:f.offset+f.Capacity], b)
	for i := f.offset + uint32(n); i < f.offset+f.Capacity; i++ {
		data[i] = 0
	}
	byteOrder.PutUint32(data[f.lenOffset:], uint32(n))
	return nil
}

// Bytes reads a buffer field, returning a copy of exactly the bytes the
// length field declares.
func (l *Layout) Bytes(data []byte, name string) ([]byte, *errors.Error) {
	f, err := l.field(name, KindBytes)
	if err != nil {
		return nil, err
	}
	n := byteOrder.Uint32(data[f.lenOffset:])
	if n > f.Capacity {
		return nil, errors.Serialization(
			fmt.Sprintf("field %q: declared length %d exceeds capacity %d", name, n, f.Capacity), nil)
	}
	out := make([]byte, n)
	copy(out, data[f.offset:f.offset+n])
	return out, nil
}

// PutString writes a UTF-8 string into a buffer field.
func (l *Layout) PutString(data []byte, name, s string) *errors.Error {
	return l.PutBytes(data, name, []byte(s))
}

// String reads a buffer field as a UTF-8 string.
func (l *Layout) String(data []byte, name string) (string, *errors.Error) {
	b, err := l.Bytes(data, name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func overflow(name string, v any, k Kind) *errors.Error {
	return errors.Serialization(fmt.Sprintf("field %q: value %d overflows %s", name, v, k), nil)
}

func kindMismatch(name string, got Kind, want string) *errors.Error {
	return errors.Serialization(fmt.Sprintf("field %q is %s, not %s", name, got, want), nil)
}
