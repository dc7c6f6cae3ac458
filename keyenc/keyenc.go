// Package keyenc implements order-preserving byte encodings for the values
// the B-tree and the FTS layer use as keys. Every encoding reduces scalar
// comparison to a plain lexicographic byte comparison, so the B-tree never
// needs to know what a key "means" — it only calls bytes.Compare.
package keyenc

import (
	"bytes"
	"encoding/binary"
	"math"
)

// ───────────────────────────────────────────────────────────────────────────
// Fixed-width signed integers
// ───────────────────────────────────────────────────────────────────────────
//
// Two's-complement big-endian with the sign bit flipped: negative values
// occupy the lower half of the unsigned range and positive values the
// upper half, so memcmp on the encoded bytes agrees with numeric order.

// EncodeInt8 encodes an int8 into 1 order-preserving byte.
func EncodeInt8(v int8) []byte {
	return []byte{byte(v) ^ 0x80}
}

// DecodeInt8 reverses EncodeInt8.
func DecodeInt8(b []byte) int8 {
	return int8(b[0] ^ 0x80)
}

// EncodeInt16 encodes an int16 into 2 order-preserving bytes.
func EncodeInt16(v int16) []byte {
	u := uint16(v) ^ (1 << 15)
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, u)
	return buf
}

// DecodeInt16 reverses EncodeInt16.
func DecodeInt16(b []byte) int16 {
	u := binary.BigEndian.Uint16(b) ^ (1 << 15)
	return int16(u)
}

// EncodeInt32 encodes an int32 into 4 order-preserving bytes.
func EncodeInt32(v int32) []byte {
	u := uint32(v) ^ (1 << 31)
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, u)
	return buf
}

// DecodeInt32 reverses EncodeInt32.
func DecodeInt32(b []byte) int32 {
	u := binary.BigEndian.Uint32(b) ^ (1 << 31)
	return int32(u)
}

// EncodeInt64 encodes an int64 into 8 order-preserving bytes.
func EncodeInt64(v int64) []byte {
	u := uint64(v) ^ (1 << 63)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}

// DecodeInt64 reverses EncodeInt64.
func DecodeInt64(b []byte) int64 {
	u := binary.BigEndian.Uint64(b) ^ (1 << 63)
	return int64(u)
}

// ───────────────────────────────────────────────────────────────────────────
// Floating point
// ───────────────────────────────────────────────────────────────────────────
//
// -0.0 canonicalizes to +0.0 first. Then: if the sign bit is set (negative),
// invert every bit, so larger-magnitude negatives sort before
// smaller-magnitude ones; if unset (non-negative), flip only the sign bit,
// so positives sort above all negatives. NaN is explicitly out of scope
// (spec §8: "excluded").

// EncodeFloat32 encodes a float32 into 4 order-preserving bytes.
func EncodeFloat32(v float32) []byte {
	if v == 0 {
		v = 0 // canonicalize -0.0 to +0.0
	}
	bits := math.Float32bits(v)
	var ordered uint32
	if bits&(1<<31) != 0 {
		ordered = ^bits
	} else {
		ordered = bits ^ (1 << 31)
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, ordered)
	return buf
}

// DecodeFloat32 reverses EncodeFloat32.
func DecodeFloat32(b []byte) float32 {
	ordered := binary.BigEndian.Uint32(b)
	var bits uint32
	if ordered&(1<<31) != 0 {
		bits = ordered ^ (1 << 31)
	} else {
		bits = ^ordered
	}
	return math.Float32frombits(bits)
}

// EncodeFloat64 encodes a float64 into 8 order-preserving bytes.
func EncodeFloat64(v float64) []byte {
	if v == 0 {
		v = 0 // canonicalize -0.0 to +0.0
	}
	bits := math.Float64bits(v)
	var ordered uint64
	if bits&(1<<63) != 0 {
		ordered = ^bits
	} else {
		ordered = bits ^ (1 << 63)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ordered)
	return buf
}

// DecodeFloat64 reverses EncodeFloat64.
func DecodeFloat64(b []byte) float64 {
	ordered := binary.BigEndian.Uint64(b)
	var bits uint64
	if ordered&(1<<63) != 0 {
		bits = ordered ^ (1 << 63)
	} else {
		bits = ^ordered
	}
	return math.Float64frombits(bits)
}

// ───────────────────────────────────────────────────────────────────────────
// Variable-length bytes/strings
// ───────────────────────────────────────────────────────────────────────────
//
// Byte-stuffed: every 0x00 in the input becomes 0x00 0x01, and the whole
// thing is terminated with 0x00 0x00. This keeps lexicographic order and
// makes the boundary between this field and whatever follows unambiguous
// when fields are concatenated into a composite key.

// EncodeBytes byte-stuffs and terminates data.
func EncodeBytes(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	for _, b := range data {
		if b == 0x00 {
			out = append(out, 0x00, 0x01)
		} else {
			out = append(out, b)
		}
	}
	out = append(out, 0x00, 0x00)
	return out
}

// DecodeBytes reverses the byte-stuffing in EncodeBytes, returning the
// original data and the number of encoded bytes consumed.
func DecodeBytes(encoded []byte) (data []byte, consumed int) {
	i := 0
	for i < len(encoded) {
		if encoded[i] == 0x00 {
			if i+1 >= len(encoded) {
				break
			}
			if encoded[i+1] == 0x00 {
				return data, i + 2
			}
			// encoded[i+1] == 0x01: an escaped literal 0x00
			data = append(data, 0x00)
			i += 2
			continue
		}
		data = append(data, encoded[i])
		i++
	}
	return data, i
}

// EncodeString byte-stuffs the UTF-8 bytes of s.
func EncodeString(s string) []byte {
	return EncodeBytes([]byte(s))
}

// ───────────────────────────────────────────────────────────────────────────
// Composite keys
// ───────────────────────────────────────────────────────────────────────────
//
// Per field: 0x00 for NULL (sorts smallest), else 0x01 followed by the
// field's type-specific encoding. A Composite accumulates fields in the
// order they should be compared, matching how a caller builds a key for a
// multi-column index.

// FieldKind identifies which scalar encoding a composite field uses.
type FieldKind uint8

const (
	KindNull FieldKind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBytes
)

// Composite incrementally builds a composite key. It also records the kind
// of each appended field, so a caller that built the key (an index planner,
// say) can later ask what shape it has without re-parsing the byte stream.
type Composite struct {
	buf   bytes.Buffer
	kinds []FieldKind
}

// NewComposite returns an empty composite key builder.
func NewComposite() *Composite { return &Composite{} }

// Kinds returns the field kinds appended so far, in order.
func (c *Composite) Kinds() []FieldKind {
	return append([]FieldKind(nil), c.kinds...)
}

// AppendNull appends a NULL field, which sorts before any non-null field.
func (c *Composite) AppendNull() *Composite {
	c.buf.WriteByte(0x00)
	c.kinds = append(c.kinds, KindNull)
	return c
}

// AppendInt8 appends a non-null int8 field.
func (c *Composite) AppendInt8(v int8) *Composite {
	c.buf.WriteByte(0x01)
	c.buf.Write(EncodeInt8(v))
	c.kinds = append(c.kinds, KindInt8)
	return c
}

// AppendInt16 appends a non-null int16 field.
func (c *Composite) AppendInt16(v int16) *Composite {
	c.buf.WriteByte(0x01)
	c.buf.Write(EncodeInt16(v))
	c.kinds = append(c.kinds, KindInt16)
	return c
}

// AppendInt32 appends a non-null int32 field.
func (c *Composite) AppendInt32(v int32) *Composite {
	c.buf.WriteByte(0x01)
	c.buf.Write(EncodeInt32(v))
	c.kinds = append(c.kinds, KindInt32)
	return c
}

// AppendInt64 appends a non-null int64 field.
func (c *Composite) AppendInt64(v int64) *Composite {
	c.buf.WriteByte(0x01)
	c.buf.Write(EncodeInt64(v))
	c.kinds = append(c.kinds, KindInt64)
	return c
}

// AppendFloat32 appends a non-null float32 field.
func (c *Composite) AppendFloat32(v float32) *Composite {
	c.buf.WriteByte(0x01)
	c.buf.Write(EncodeFloat32(v))
	c.kinds = append(c.kinds, KindFloat32)
	return c
}

// AppendFloat64 appends a non-null float64 field.
func (c *Composite) AppendFloat64(v float64) *Composite {
	c.buf.WriteByte(0x01)
	c.buf.Write(EncodeFloat64(v))
	c.kinds = append(c.kinds, KindFloat64)
	return c
}

// AppendBytes appends a non-null variable-length field.
func (c *Composite) AppendBytes(data []byte) *Composite {
	c.buf.WriteByte(0x01)
	c.buf.Write(EncodeBytes(data))
	c.kinds = append(c.kinds, KindBytes)
	return c
}

// AppendString appends a non-null string field.
func (c *Composite) AppendString(s string) *Composite {
	return c.AppendBytes([]byte(s))
}

// Bytes returns the accumulated composite key.
func (c *Composite) Bytes() []byte {
	return append([]byte(nil), c.buf.Bytes()...)
}

// AppendComposite appends an already-encoded field (NULL-tagged or
// 0x01-tagged) to dst, for callers building a composite key field-by-field
// without going through the Composite builder.
func AppendComposite(dst []byte, fieldEncoded []byte) []byte {
	return append(dst, fieldEncoded...)
}

// ───────────────────────────────────────────────────────────────────────────
// Comparison
// ───────────────────────────────────────────────────────────────────────────

// CompareKeys is the canonical comparator for encoded keys: plain
// lexicographic byte comparison, matching the B-tree's own ordering.
func CompareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}
