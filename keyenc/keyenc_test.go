package keyenc

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"testing"
)

func TestEncodeInt64Ordering(t *testing.T) {
	values := []int64{math.MinInt64, -1, 0, 1, math.MaxInt64}
	var encoded [][]byte
	for _, v := range values {
		encoded = append(encoded, EncodeInt64(v))
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("encode(%d) did not sort before encode(%d): %x >= %x",
				values[i-1], values[i], encoded[i-1], encoded[i])
		}
	}
}

func TestEncodeInt64Roundtrip(t *testing.T) {
	values := []int64{math.MinInt64, math.MinInt64 + 1, -1000, -1, 0, 1, 1000, math.MaxInt64}
	for _, v := range values {
		got := DecodeInt64(EncodeInt64(v))
		if got != v {
			t.Errorf("roundtrip(%d) = %d", v, got)
		}
	}
}

func TestEncodeIntWidthsRandomOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	n := 500
	i8s := make([]int8, n)
	i16s := make([]int16, n)
	i32s := make([]int32, n)
	for i := range i8s {
		i8s[i] = int8(r.Intn(256) - 128)
		i16s[i] = int16(r.Intn(65536) - 32768)
		i32s[i] = int32(r.Uint32())
	}

	sorted8 := append([]int8(nil), i8s...)
	sort.Slice(sorted8, func(i, j int) bool { return sorted8[i] < sorted8[j] })
	enc8 := make([][]byte, len(sorted8))
	for i, v := range sorted8 {
		enc8[i] = EncodeInt8(v)
	}
	for i := 1; i < len(enc8); i++ {
		if bytes.Compare(enc8[i-1], enc8[i]) > 0 {
			t.Fatalf("int8 encoding not order-preserving at %d", i)
		}
	}

	sorted16 := append([]int16(nil), i16s...)
	sort.Slice(sorted16, func(i, j int) bool { return sorted16[i] < sorted16[j] })
	enc16 := make([][]byte, len(sorted16))
	for i, v := range sorted16 {
		enc16[i] = EncodeInt16(v)
	}
	for i := 1; i < len(enc16); i++ {
		if bytes.Compare(enc16[i-1], enc16[i]) > 0 {
			t.Fatalf("int16 encoding not order-preserving at %d", i)
		}
	}

	sorted32 := append([]int32(nil), i32s...)
	sort.Slice(sorted32, func(i, j int) bool { return sorted32[i] < sorted32[j] })
	enc32 := make([][]byte, len(sorted32))
	for i, v := range sorted32 {
		enc32[i] = EncodeInt32(v)
	}
	for i := 1; i < len(enc32); i++ {
		if bytes.Compare(enc32[i-1], enc32[i]) > 0 {
			t.Fatalf("int32 encoding not order-preserving at %d", i)
		}
	}
}

func TestEncodeFloat64Ordering(t *testing.T) {
	values := []float64{
		math.Inf(-1), -1e300, -1.5, -1.0, -0.0001, 0.0, math.SmallestNonzeroFloat64,
		0.0001, 1.0, 1.5, 1e300, math.Inf(1),
	}
	var encoded [][]byte
	for _, v := range values {
		encoded = append(encoded, EncodeFloat64(v))
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("encode(%v) did not sort strictly before encode(%v): %x >= %x",
				values[i-1], values[i], encoded[i-1], encoded[i])
		}
	}
}

func TestEncodeFloat64ZeroCanonicalization(t *testing.T) {
	posZero := EncodeFloat64(0.0)
	negZero := EncodeFloat64(math.Copysign(0, -1))
	if !bytes.Equal(posZero, negZero) {
		t.Fatalf("+0.0 and -0.0 did not canonicalize to the same key: %x vs %x", posZero, negZero)
	}
}

func TestEncodeFloat64Roundtrip(t *testing.T) {
	values := []float64{math.Inf(-1), -123.456, -0.0, 0.0, 1.0, 123.456, math.Inf(1)}
	for _, v := range values {
		got := DecodeFloat64(EncodeFloat64(v))
		if got != v && !(v == 0 && got == 0) {
			t.Errorf("roundtrip(%v) = %v", v, got)
		}
	}
}

func TestEncodeFloat32Roundtrip(t *testing.T) {
	values := []float32{-999.5, -1, 0, 1, 999.5}
	for _, v := range values {
		got := DecodeFloat32(EncodeFloat32(v))
		if got != v {
			t.Errorf("roundtrip(%v) = %v", v, got)
		}
	}
}

func TestEncodeBytesRoundtrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{0x00},
		{0x00, 0x00},
		{0x01, 0x00, 0x02},
		[]byte("hello world"),
		[]byte("東京タワー"),
	}
	for _, c := range cases {
		enc := EncodeBytes(c)
		got, n := DecodeBytes(enc)
		if n != len(enc) {
			t.Errorf("DecodeBytes(%x) consumed %d, want %d", enc, n, len(enc))
		}
		if !bytes.Equal(got, c) && !(len(got) == 0 && len(c) == 0) {
			t.Errorf("roundtrip(%x) = %x, want %x", c, got, c)
		}
	}
}

func TestEncodeBytesOrderingMatchesRawOrdering(t *testing.T) {
	// For inputs with no embedded 0x00, byte-stuffed encoding preserves
	// plain lexicographic order of the originals (mod the terminator).
	values := [][]byte{
		[]byte("apple"),
		[]byte("banana"),
		[]byte("banana2"),
		[]byte("cherry"),
	}
	for i := 1; i < len(values); i++ {
		rawCmp := bytes.Compare(values[i-1], values[i])
		encCmp := bytes.Compare(EncodeBytes(values[i-1]), EncodeBytes(values[i]))
		if (rawCmp < 0) != (encCmp < 0) {
			t.Fatalf("ordering mismatch between %q and %q", values[i-1], values[i])
		}
	}
}

func TestCompositeNullSortsBeforeNonNull(t *testing.T) {
	withNull := NewComposite().AppendNull().AppendInt32(5).Bytes()
	withValue := NewComposite().AppendInt32(0).AppendInt32(5).Bytes()
	if CompareKeys(withNull, withValue) >= 0 {
		t.Fatalf("NULL-prefixed key did not sort before non-null key: %x >= %x", withNull, withValue)
	}
}

func TestCompositeIntThenStringOrdering(t *testing.T) {
	a := NewComposite().AppendInt32(1).AppendString("apple").Bytes()
	b := NewComposite().AppendInt32(1).AppendString("banana").Bytes()
	c := NewComposite().AppendInt32(2).AppendString("aardvark").Bytes()

	if CompareKeys(a, b) >= 0 {
		t.Fatalf("(1,apple) should sort before (1,banana)")
	}
	if CompareKeys(b, c) >= 0 {
		t.Fatalf("(1,banana) should sort before (2,aardvark) since the leading int dominates")
	}
}

func TestCompositeRoundtripFirstField(t *testing.T) {
	key := NewComposite().AppendInt64(-42).AppendString("x").Bytes()
	if key[0] != 0x01 {
		t.Fatalf("expected non-null tag byte 0x01, got %#x", key[0])
	}
	v := DecodeInt64(key[1:9])
	if v != -42 {
		t.Fatalf("decoded leading int64 = %d, want -42", v)
	}
}

func TestCompositeKindsTracksAppendedFields(t *testing.T) {
	c := NewComposite().AppendNull().AppendInt64(7).AppendString("s")
	kinds := c.Kinds()
	want := []FieldKind{KindNull, KindInt64, KindBytes}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}
