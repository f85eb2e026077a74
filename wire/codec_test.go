package wire

import (
	"encoding/binary"
	"testing"
)

func TestInt32ArrayRoundTrip(t *testing.T) {
	for n := 0; n <= 1000; n += 137 {
		src := make([]int32, n)
		for i := range src {
			src[i] = int32(i)*7 - 3
		}
		buf := make([]byte, EncodedSizeOfInt32Array(n))
		if _, err := EncodeInt32Array(buf, 0, len(buf), src, n); err != nil {
			t.Fatalf("encode n=%d: %v", n, err)
		}
		got := make([]int32, n)
		if _, err := DecodeInt32Array(buf, 0, len(buf), got, n); err != nil {
			t.Fatalf("decode n=%d: %v", n, err)
		}
		for i := range src {
			if src[i] != got[i] {
				t.Fatalf("mismatch at %d: want %d got %d", i, src[i], got[i])
			}
		}
	}
}

func TestUint32ArrayBigEndianWitness(t *testing.T) {
	buf := make([]byte, 4)
	if _, err := EncodeUint32Array(buf, 0, len(buf), []uint32{0x01020304}, 1); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: want 0x%02x got 0x%02x", i, want[i], buf[i])
		}
	}
	if binary.BigEndian.Uint32(buf) != 0x01020304 {
		t.Fatalf("binary.BigEndian disagrees with manual encode")
	}
}

func TestFloat64ArrayRoundTrip(t *testing.T) {
	src := []float64{0, 1.5, -1.5, 3.14159265358979, 1e300, -1e-300}
	buf := make([]byte, EncodedSizeOfFloat64Array(len(src)))
	if _, err := EncodeFloat64Array(buf, 0, len(buf), src, len(src)); err != nil {
		t.Fatal(err)
	}
	got := make([]float64, len(src))
	if _, err := DecodeFloat64Array(buf, 0, len(buf), got, len(src)); err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if src[i] != got[i] {
			t.Fatalf("mismatch at %d: want %v got %v", i, src[i], got[i])
		}
	}
}

func TestBoolArrayNonzeroIsTrue(t *testing.T) {
	buf := []byte{0x00, 0x01, 0xff, 0x7f}
	dest := make([]bool, 4)
	if _, err := DecodeBoolArray(buf, 0, len(buf), dest, 4); err != nil {
		t.Fatal(err)
	}
	want := []bool{false, true, true, true}
	for i := range want {
		if dest[i] != want[i] {
			t.Fatalf("index %d: want %v got %v", i, want[i], dest[i])
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "hello world", "utf8-✓"}
	for _, s := range cases {
		buf := make([]byte, EncodedSizeOfString(s))
		n, err := EncodeString(buf, 0, len(buf), s)
		if err != nil {
			t.Fatalf("encode %q: %v", s, err)
		}
		if n != len(buf) {
			t.Fatalf("encode %q: wrote %d, expected %d", s, n, len(buf))
		}
		if buf[len(buf)-1] != 0 {
			t.Fatalf("encode %q: missing NUL terminator", s)
		}
		got, consumed, err := DecodeString(buf, 0, len(buf))
		if err != nil {
			t.Fatalf("decode %q: %v", s, err)
		}
		if got != s || consumed != len(buf) {
			t.Fatalf("decode %q: got %q consumed %d", s, got, consumed)
		}
	}
}

func TestDecodeBufferTooSmall(t *testing.T) {
	buf := make([]byte, 2)
	dest := make([]int32, 1)
	if _, err := DecodeInt32Array(buf, 0, len(buf), dest, 1); err == nil {
		t.Fatalf("expected error decoding truncated buffer")
	}
}

func TestFoldRotatesLeft(t *testing.T) {
	h := uint64(0x1)
	if got := Fold(h, 1); got != 0x2 {
		t.Fatalf("Fold(1,1) = 0x%x, want 0x2", got)
	}
	// bits is masked to the low 6 bits: 64 == 0 (mod 64) is a no-op rotate.
	if got := Fold(h, 64); got != h {
		t.Fatalf("Fold(h,64) = 0x%x, want 0x%x", got, h)
	}
	// rotating the top bit all the way around returns the original value.
	top := uint64(1) << 63
	if got := Fold(top, 1); got != 1 {
		t.Fatalf("Fold(top,1) = 0x%x, want 0x1", got)
	}
}
