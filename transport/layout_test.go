package transport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hostbridge/plugin-runtime/errors"
)

// The reference shape used across these tests mirrors a small lookup
// message: a 64-byte key buffer with its length field, then a flags word.
func lookupLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := NewLayout(1,
		Field{Name: "key", Kind: KindBytes, Capacity: 64},
		Field{Name: "flags", Kind: KindU32},
	)
	require.NoError(t, err)
	return l
}

func TestNewLayout_OffsetsAndPadding(t *testing.T) {
	l := lookupLayout(t)

	// version byte at 0, three bytes of padding, then the buffer.
	off, ok := l.Offset("key")
	require.True(t, ok)
	require.Equal(t, uint32(4), off)

	off, ok = l.Offset("flags")
	require.True(t, ok)
	require.Equal(t, uint32(72), off) // key data 4..68, key length 68..72

	require.Equal(t, uint32(76), l.Size())
}

func TestNewLayout_MixedScalarAlignment(t *testing.T) {
	l, err := NewLayout(3,
		Field{Name: "a", Kind: KindU8},
		Field{Name: "b", Kind: KindU64},
		Field{Name: "c", Kind: KindU16},
	)
	require.NoError(t, err)

	offA, _ := l.Offset("a")
	offB, _ := l.Offset("b")
	offC, _ := l.Offset("c")
	require.Equal(t, uint32(1), offA)
	require.Equal(t, uint32(8), offB)  // padded to 8-byte alignment
	require.Equal(t, uint32(16), offC)
	require.Equal(t, uint32(24), l.Size()) // tail-padded to max alignment
}

func TestNewLayout_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		fields []Field
		want   string
	}{
		{"duplicate", []Field{{Name: "x", Kind: KindU8}, {Name: "x", Kind: KindU8}}, "duplicate"},
		{"empty name", []Field{{Name: "", Kind: KindU8}}, "empty name"},
		{"zero capacity", []Field{{Name: "b", Kind: KindBytes}}, "capacity"},
		{"scalar capacity", []Field{{Name: "s", Kind: KindU32, Capacity: 8}}, "capacity"},
		{"invalid kind", []Field{{Name: "k", Kind: Kind(99)}}, "invalid kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLayout(1, tc.fields...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLayout_RoundTrip(t *testing.T) {
	l := lookupLayout(t)

	buf := l.New()
	require.NoError(t, errAsErr(l.PutString(buf, "key", "session.token")))
	require.NoError(t, errAsErr(l.PutUint(buf, "flags", 0xDEADBEEF)))

	require.Nil(t, l.Check(buf))

	key, derr := l.String(buf, "key")
	require.Nil(t, derr)
	require.Equal(t, "session.token", key)

	flags, derr := l.Uint(buf, "flags")
	require.Nil(t, derr)
	require.Equal(t, uint64(0xDEADBEEF), flags)
}

func TestLayout_BufferBoundaries(t *testing.T) {
	l := lookupLayout(t)
	buf := l.New()

	// Exactly at capacity round-trips intact.
	full := bytes.Repeat([]byte{0xAB}, 64)
	require.Nil(t, l.PutBytes(buf, "key", full))
	got, derr := l.Bytes(buf, "key")
	require.Nil(t, derr)
	require.Equal(t, full, got)

	// One past capacity is rejected.
	derr = l.PutBytes(buf, "key", bytes.Repeat([]byte{1}, 65))
	require.NotNil(t, derr)
	require.Equal(t, errors.CodeSerialization, derr.Code)

	// Empty buffer round-trips as empty, not as a sentinel.
	require.Nil(t, l.PutBytes(buf, "key", nil))
	got, derr = l.Bytes(buf, "key")
	require.Nil(t, derr)
	require.Len(t, got, 0)
}

func TestLayout_PutBytesZeroesStaleData(t *testing.T) {
	l := lookupLayout(t)
	buf := l.New()

	require.Nil(t, l.PutString(buf, "key", strings.Repeat("x", 64)))
	require.Nil(t, l.PutString(buf, "key", "ab"))

	other := l.New()
	require.Nil(t, l.PutString(other, "key", "ab"))
	require.Equal(t, other, buf, "encoding must be deterministic regardless of prior contents")
}

func TestLayout_CheckRejectsVersionMismatch(t *testing.T) {
	l := lookupLayout(t)
	buf := l.New()
	buf[0] = 2

	derr := l.Check(buf)
	require.NotNil(t, derr)
	require.Equal(t, errors.CodeSerialization, derr.Code)
}

func TestLayout_CheckRejectsShortMessage(t *testing.T) {
	l := lookupLayout(t)
	derr := l.Check(make([]byte, 8))
	require.NotNil(t, derr)
	require.Equal(t, errors.CodeSerialization, derr.Code)
}

func TestLayout_CorruptLengthFieldRejected(t *testing.T) {
	l := lookupLayout(t)
	buf := l.New()
	require.Nil(t, l.PutString(buf, "key", "k"))

	// Corrupt the explicit length field past capacity.
	byteOrder.PutUint32(buf[68:], 1000)
	_, derr := l.Bytes(buf, "key")
	require.NotNil(t, derr)
	require.Equal(t, errors.CodeSerialization, derr.Code)
}

func TestLayout_SignedAndFloat(t *testing.T) {
	l, err := NewLayout(1,
		Field{Name: "delta", Kind: KindI32},
		Field{Name: "ratio", Kind: KindF64},
	)
	require.NoError(t, err)

	buf := l.New()
	require.Nil(t, l.PutInt(buf, "delta", -123456))
	require.Nil(t, l.PutFloat(buf, "ratio", 0.25))

	d, derr := l.Int(buf, "delta")
	require.Nil(t, derr)
	require.Equal(t, int64(-123456), d)

	r, derr := l.Float(buf, "ratio")
	require.Nil(t, derr)
	require.Equal(t, 0.25, r)
}

func TestLayout_ScalarOverflow(t *testing.T) {
	l, err := NewLayout(1, Field{Name: "n", Kind: KindU16})
	require.NoError(t, err)

	buf := l.New()
	derr := l.PutUint(buf, "n", 1<<16)
	require.NotNil(t, derr)
	require.Equal(t, errors.CodeSerialization, derr.Code)
}

func TestLayout_UnknownField(t *testing.T) {
	l := lookupLayout(t)
	_, derr := l.Uint(l.New(), "nope")
	require.NotNil(t, derr)
	require.Equal(t, errors.CodeSerialization, derr.Code)
}

// errAsErr converts the descriptor type to a plain error for require.NoError.
func errAsErr(e *errors.Error) error {
	if e == nil {
		return nil
	}
	return e
}
