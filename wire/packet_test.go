package wire

import (
	"bytes"
	"testing"
)

func TestShortPacketRoundTrip(t *testing.T) {
	channel := "T"
	payload := []byte{0x01, 0x02, 0x03}
	buf := make([]byte, EncodedSizeOfShort(channel, len(payload)))
	n, err := EncodeShort(buf, channel, payload, 7)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeShort(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Channel != channel || !bytes.Equal(decoded.Payload, payload) || decoded.MsgSeq != 7 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestDecodePacketRejectsUnknownMagic(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x00, 1, 2, 3}
	if _, err := DecodePacket(buf); err == nil {
		t.Fatalf("expected error for unknown magic")
	}
}

func TestDecodePacketRejectsShortPacketTooSmall(t *testing.T) {
	if _, err := DecodePacket([]byte{0x01}); err == nil {
		t.Fatalf("expected error for packet shorter than magic")
	}
}

func TestFragmentedRoundTripAnyOrder(t *testing.T) {
	channel := "sensors.imu"
	payload := make([]byte, 300000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	var frags [][]byte
	scratch := make([]byte, DefaultScratchBufferSize)
	err := EncodeFragments(scratch, channel, payload, 99, func(frag []byte) error {
		cp := make([]byte, len(frag))
		copy(cp, frag)
		frags = append(frags, cp)
		return nil
	})
	if err != nil {
		t.Fatalf("EncodeFragments: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected a multi-fragment message, got %d fragments", len(frags))
	}

	// Decode in reverse order; reassembly correctness shouldn't depend on
	// decode order, only on the reassembler (tested separately) using
	// fragment_offset to place bytes.
	decodedFrags := make([]*FragmentPacket, len(frags))
	for i := len(frags) - 1; i >= 0; i-- {
		d, err := DecodePacket(frags[i])
		if err != nil {
			t.Fatalf("decode fragment %d: %v", i, err)
		}
		if d.Fragment == nil {
			t.Fatalf("fragment %d decoded as short packet", i)
		}
		decodedFrags[i] = d.Fragment
	}

	reassembled := make([]byte, decodedFrags[0].TotalSize)
	var gotChannel string
	for _, f := range decodedFrags {
		copy(reassembled[f.FragmentOffset:], f.Payload)
		if f.FragmentID == 0 {
			gotChannel = f.Channel
		}
	}
	if gotChannel != channel {
		t.Fatalf("channel mismatch: want %q got %q", channel, gotChannel)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatalf("reassembled payload mismatch")
	}
}

func TestEncodeFragmentsSingleFragmentShortCircuits(t *testing.T) {
	channel := "C"
	payload := []byte{1, 2, 3}
	scratch := make([]byte, DefaultScratchBufferSize)
	var frags [][]byte
	err := EncodeFragments(scratch, channel, payload, 1, func(frag []byte) error {
		cp := make([]byte, len(frag))
		copy(cp, frag)
		frags = append(frags, cp)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment for a tiny payload via EncodeFragments, got %d", len(frags))
	}
}

func TestDecodeFragmentRejectsBadFragmentID(t *testing.T) {
	buf := make([]byte, DefaultScratchBufferSize)
	n, err := EncodeFragment(buf, FragmentPacket{
		MsgSeq:         1,
		TotalSize:      10,
		FragmentOffset: 0,
		FragmentID:     5,
		FragmentsInMsg: 2, // fragment_id >= fragments_in_msg: malformed
		Channel:        "C",
		Payload:        []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeFragment(buf[:n]); err == nil {
		t.Fatalf("expected rejection of fragment_id >= fragments_in_msg")
	}
}

func TestDecodeFragmentRejectsOverflowingOffset(t *testing.T) {
	buf := make([]byte, DefaultScratchBufferSize)
	n, err := EncodeFragment(buf, FragmentPacket{
		MsgSeq:         1,
		TotalSize:      4,
		FragmentOffset: 2,
		FragmentID:     0,
		FragmentsInMsg: 1,
		Channel:        "C",
		Payload:        []byte{1, 2, 3}, // 2+3 > total_size(4)
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeFragment(buf[:n]); err == nil {
		t.Fatalf("expected rejection of fragment_offset + payload_len > total_size")
	}
}

func TestDecodeShortRejectsOversizedChannel(t *testing.T) {
	buf := make([]byte, 8+300+1+3)
	channel := bytes.Repeat([]byte("x"), 300)
	n := 8
	n += copy(buf[n:], channel)
	buf[n] = 0
	n++
	copy(buf[n:], []byte{1, 2, 3})
	putMagicShort(buf)
	if _, err := DecodeShort(buf); err == nil {
		t.Fatalf("expected rejection of oversized channel")
	}
}

func putMagicShort(buf []byte) {
	buf[0] = byte(MagicShort >> 24)
	buf[1] = byte((MagicShort >> 16) & 0xff)
	buf[2] = byte((MagicShort >> 8) & 0xff)
	buf[3] = byte(MagicShort & 0xff)
}
