// Package wire implements the LCM wire protocol layer: big-endian primitive
// encoding, the short and fragmented packet formats, and the hash-fold
// primitive used by generated message stubs to build type fingerprints.
//
// All multi-byte integers are big-endian. Floats are bit-cast through the
// unsigned integer of equal width, so there is never an endianness-of-float
// question. Strings are framed as an int32 length-including-terminator
// followed by that many bytes, the last of which is a zero byte.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"lcm-go/lcmerr"
)

// EncodedSizeOfInt8Array returns the encoded size, in bytes, of an array of n int8s.
func EncodedSizeOfInt8Array(n int) int { return n }

// EncodedSizeOfByteArray returns the encoded size, in bytes, of an array of n bytes.
func EncodedSizeOfByteArray(n int) int { return n }

// EncodedSizeOfBoolArray returns the encoded size, in bytes, of an array of n bools.
func EncodedSizeOfBoolArray(n int) int { return n }

// EncodedSizeOfInt16Array returns the encoded size, in bytes, of an array of n int16s.
func EncodedSizeOfInt16Array(n int) int { return n * 2 }

// EncodedSizeOfInt32Array returns the encoded size, in bytes, of an array of n int32s.
func EncodedSizeOfInt32Array(n int) int { return n * 4 }

// EncodedSizeOfUint32Array returns the encoded size, in bytes, of an array of n uint32s.
func EncodedSizeOfUint32Array(n int) int { return n * 4 }

// EncodedSizeOfFloat32Array returns the encoded size, in bytes, of an array of n float32s.
func EncodedSizeOfFloat32Array(n int) int { return n * 4 }

// EncodedSizeOfInt64Array returns the encoded size, in bytes, of an array of n int64s.
func EncodedSizeOfInt64Array(n int) int { return n * 8 }

// EncodedSizeOfFloat64Array returns the encoded size, in bytes, of an array of n float64s.
func EncodedSizeOfFloat64Array(n int) int { return n * 8 }

func checkRoom(max, offset, need int) error {
	if offset < 0 || need < 0 || offset+need > max {
		return lcmerr.ErrBufferTooSmall
	}
	return nil
}

// EncodeInt8Array writes n int8s from src to dest[offset:] and returns the
// number of bytes written.
func EncodeInt8Array(dest []byte, offset, max int, src []int8, n int) (int, error) {
	size := EncodedSizeOfInt8Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[offset+i] = byte(src[i])
	}
	return size, nil
}

// DecodeInt8Array reads n int8s from src[offset:] into dest and returns the
// number of bytes consumed.
func DecodeInt8Array(src []byte, offset, max int, dest []int8, n int) (int, error) {
	size := EncodedSizeOfInt8Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = int8(src[offset+i])
	}
	return size, nil
}

// EncodeByteArray writes n bytes from src to dest[offset:].
func EncodeByteArray(dest []byte, offset, max int, src []byte, n int) (int, error) {
	size := EncodedSizeOfByteArray(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	copy(dest[offset:offset+size], src[:n])
	return size, nil
}

// DecodeByteArray reads n bytes from src[offset:] into dest.
func DecodeByteArray(src []byte, offset, max int, dest []byte, n int) (int, error) {
	size := EncodedSizeOfByteArray(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	copy(dest[:n], src[offset:offset+size])
	return size, nil
}

// EncodeBoolArray writes n bools as single bytes (0 or 1).
func EncodeBoolArray(dest []byte, offset, max int, src []bool, n int) (int, error) {
	size := EncodedSizeOfBoolArray(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		if src[i] {
			dest[offset+i] = 1
		} else {
			dest[offset+i] = 0
		}
	}
	return size, nil
}

// DecodeBoolArray reads n bools; any nonzero byte decodes to true.
func DecodeBoolArray(src []byte, offset, max int, dest []bool, n int) (int, error) {
	size := EncodedSizeOfBoolArray(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = src[offset+i] != 0
	}
	return size, nil
}

// EncodeInt16Array writes n big-endian int16s.
func EncodeInt16Array(dest []byte, offset, max int, src []int16, n int) (int, error) {
	size := EncodedSizeOfInt16Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint16(dest[offset+i*2:], uint16(src[i]))
	}
	return size, nil
}

// DecodeInt16Array reads n big-endian int16s.
func DecodeInt16Array(src []byte, offset, max int, dest []int16, n int) (int, error) {
	size := EncodedSizeOfInt16Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = int16(binary.BigEndian.Uint16(src[offset+i*2:]))
	}
	return size, nil
}

// EncodeInt32Array writes n big-endian int32s.
func EncodeInt32Array(dest []byte, offset, max int, src []int32, n int) (int, error) {
	size := EncodedSizeOfInt32Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(dest[offset+i*4:], uint32(src[i]))
	}
	return size, nil
}

// DecodeInt32Array reads n big-endian int32s.
func DecodeInt32Array(src []byte, offset, max int, dest []int32, n int) (int, error) {
	size := EncodedSizeOfInt32Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = int32(binary.BigEndian.Uint32(src[offset+i*4:]))
	}
	return size, nil
}

// EncodeUint32Array writes n big-endian uint32s.
func EncodeUint32Array(dest []byte, offset, max int, src []uint32, n int) (int, error) {
	size := EncodedSizeOfUint32Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(dest[offset+i*4:], src[i])
	}
	return size, nil
}

// DecodeUint32Array reads n big-endian uint32s.
func DecodeUint32Array(src []byte, offset, max int, dest []uint32, n int) (int, error) {
	size := EncodedSizeOfUint32Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = binary.BigEndian.Uint32(src[offset+i*4:])
	}
	return size, nil
}

// EncodeInt64Array writes n big-endian int64s.
func EncodeInt64Array(dest []byte, offset, max int, src []int64, n int) (int, error) {
	size := EncodedSizeOfInt64Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint64(dest[offset+i*8:], uint64(src[i]))
	}
	return size, nil
}

// DecodeInt64Array reads n big-endian int64s.
func DecodeInt64Array(src []byte, offset, max int, dest []int64, n int) (int, error) {
	size := EncodedSizeOfInt64Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = int64(binary.BigEndian.Uint64(src[offset+i*8:]))
	}
	return size, nil
}

// EncodeFloat32Array writes n float32s, bit-cast through uint32 so the wire
// order is unambiguous regardless of host float representation.
func EncodeFloat32Array(dest []byte, offset, max int, src []float32, n int) (int, error) {
	size := EncodedSizeOfFloat32Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(dest[offset+i*4:], math.Float32bits(src[i]))
	}
	return size, nil
}

// DecodeFloat32Array reads n float32s.
func DecodeFloat32Array(src []byte, offset, max int, dest []float32, n int) (int, error) {
	size := EncodedSizeOfFloat32Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = math.Float32frombits(binary.BigEndian.Uint32(src[offset+i*4:]))
	}
	return size, nil
}

// EncodeFloat64Array writes n float64s, bit-cast through uint64.
func EncodeFloat64Array(dest []byte, offset, max int, src []float64, n int) (int, error) {
	size := EncodedSizeOfFloat64Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint64(dest[offset+i*8:], math.Float64bits(src[i]))
	}
	return size, nil
}

// DecodeFloat64Array reads n float64s.
func DecodeFloat64Array(src []byte, offset, max int, dest []float64, n int) (int, error) {
	size := EncodedSizeOfFloat64Array(n)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		dest[i] = math.Float64frombits(binary.BigEndian.Uint64(src[offset+i*8:]))
	}
	return size, nil
}

// EncodedSizeOfString returns the number of bytes EncodeString will write
// for s: a 4-byte length prefix, the string's bytes, and a NUL terminator.
func EncodedSizeOfString(s string) int { return 4 + len(s) + 1 }

// EncodeString writes s as an int32 length-including-terminator followed by
// s's bytes and a trailing zero byte.
func EncodeString(dest []byte, offset, max int, s string) (int, error) {
	size := EncodedSizeOfString(s)
	if err := checkRoom(max, offset, size); err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint32(dest[offset:], uint32(len(s)+1))
	copy(dest[offset+4:], s)
	dest[offset+4+len(s)] = 0
	return size, nil
}

// DecodeString reads a length-prefixed, NUL-terminated string written by
// EncodeString.
func DecodeString(src []byte, offset, max int) (string, int, error) {
	if err := checkRoom(max, offset, 4); err != nil {
		return "", 0, err
	}
	lengthIncludingTerminator := int(binary.BigEndian.Uint32(src[offset:]))
	if lengthIncludingTerminator < 1 {
		return "", 0, fmt.Errorf("wire: invalid string length %d: %w", lengthIncludingTerminator, lcmerr.ErrBufferTooSmall)
	}
	total := 4 + lengthIncludingTerminator
	if err := checkRoom(max, offset, total); err != nil {
		return "", 0, err
	}
	strLen := lengthIncludingTerminator - 1
	s := string(src[offset+4 : offset+4+strLen])
	return s, total, nil
}

// EncodeStringArray writes n strings, each framed per EncodeString.
func EncodeStringArray(dest []byte, offset, max int, src []string, n int) (int, error) {
	pos := offset
	for i := 0; i < n; i++ {
		written, err := EncodeString(dest, pos, max, src[i])
		if err != nil {
			return 0, err
		}
		pos += written
	}
	return pos - offset, nil
}

// DecodeStringArray reads n strings into dest.
func DecodeStringArray(src []byte, offset, max int, dest []string, n int) (int, error) {
	pos := offset
	for i := 0; i < n; i++ {
		s, consumed, err := DecodeString(src, pos, max)
		if err != nil {
			return 0, err
		}
		dest[i] = s
		pos += consumed
	}
	return pos - offset, nil
}

// Fold composes a 64-bit fingerprint by rotating hash left by bits (masked
// to the low 6 bits, i.e. a rotate amount in [0,63]). Generated message
// stubs call this once per field to build a type's hash; the core exposes
// only the primitive.
func Fold(hash uint64, bits uint) uint64 {
	bits &= 0x3f
	return (hash << bits) | (hash >> (64 - bits))
}
