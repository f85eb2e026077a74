package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"lcm-go/lcmerr"
)

const (
	// MagicShort identifies a short (single-datagram) packet: "LC02".
	MagicShort uint32 = 0x4C433032
	// MagicFragmented identifies one fragment of a multi-datagram packet: "LC03".
	MagicFragmented uint32 = 0x4C433033

	// MaxChannelLength is the longest channel name allowed on the wire,
	// exclusive of its terminating zero byte.
	MaxChannelLength = 255

	// MaxMessageSize bounds total_size in a fragmented packet.
	MaxMessageSize = 1 << 28

	// MaxFragments bounds fragments_in_msg.
	MaxFragments = 256

	// MaxHeaderOverhead is the worst-case header room a publisher must
	// reserve in its scratch buffer before falling back to fragmentation.
	MaxHeaderOverhead = 300

	// DefaultScratchBufferSize is the default publish scratch buffer size.
	DefaultScratchBufferSize = 8192

	shortHeaderSize     = 4 + 4 // magic + msg_seq
	fragHeaderFixedSize = 4 + 4 + 4 + 4 + 2 + 2
)

// ShortPacket is a fully decoded single-datagram message.
type ShortPacket struct {
	MsgSeq  uint32
	Channel string
	Payload []byte
}

// FragmentPacket is one fragment of a multi-datagram message. Channel is
// only populated when FragmentID == 0.
type FragmentPacket struct {
	MsgSeq           uint32
	TotalSize        uint32
	FragmentOffset   uint32
	FragmentID       uint16
	FragmentsInMsg   uint16
	Channel          string // valid only if FragmentID == 0
	Payload          []byte
}

// EncodedSizeOfShort returns the number of bytes EncodeShort will write.
func EncodedSizeOfShort(channel string, payloadLen int) int {
	return shortHeaderSize + len(channel) + 1 + payloadLen
}

// EncodeShort writes a short packet for channel/payload/msgSeq into dest,
// starting at offset 0, and returns the number of bytes written, n (the
// packet is dest[:n]).
func EncodeShort(dest []byte, channel string, payload []byte, msgSeq uint32) (int, error) {
	size := EncodedSizeOfShort(channel, len(payload))
	if len(dest) < size {
		return 0, lcmerr.ErrBufferTooSmall
	}
	pos := 0
	binary.BigEndian.PutUint32(dest[pos:], MagicShort)
	pos += 4
	binary.BigEndian.PutUint32(dest[pos:], msgSeq)
	pos += 4
	pos += copy(dest[pos:], channel)
	dest[pos] = 0
	pos++
	pos += copy(dest[pos:], payload)
	return pos, nil
}

// DecodeShort parses a short packet. The caller must already have checked
// the magic number (or call DecodePacket, which dispatches on it).
func DecodeShort(buf []byte) (*ShortPacket, error) {
	if len(buf) < shortHeaderSize {
		return nil, fmt.Errorf("wire: short packet truncated: %w", lcmerr.ErrBufferTooSmall)
	}
	msgSeq := binary.BigEndian.Uint32(buf[4:8])
	rest := buf[8:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return nil, fmt.Errorf("wire: channel not NUL-terminated")
	}
	if nul > MaxChannelLength {
		return nil, fmt.Errorf("wire: channel exceeds %d bytes", MaxChannelLength)
	}
	channel := string(rest[:nul])
	payload := rest[nul+1:]
	return &ShortPacket{MsgSeq: msgSeq, Channel: channel, Payload: payload}, nil
}

// MaxFragmentSize returns the largest payload slice a single fragment may
// carry given a scratch buffer of size bufSize, reserving headerOverhead
// bytes (which must cover the worst case: a fragment_id==0 fragment
// carrying the channel name).
func MaxFragmentSize(bufSize, headerOverhead int) int {
	n := bufSize - headerOverhead
	if n <= 0 {
		return 0
	}
	return n
}

// EncodeFragments fragments payload into one or more fragmented packets,
// each at most len(scratch) bytes, and invokes emit once per fragment in order.
// channel is carried only on fragment 0.
func EncodeFragments(scratch []byte, channel string, payload []byte, msgSeq uint32, emit func([]byte) error) error {
	headerOverhead := fragHeaderFixedSize + len(channel) + 1
	if headerOverhead > MaxHeaderOverhead {
		headerOverhead = MaxHeaderOverhead
	}
	maxFragmentSize := MaxFragmentSize(len(scratch), fragHeaderFixedSize+len(channel)+1)
	if maxFragmentSize <= 0 {
		return fmt.Errorf("wire: scratch buffer too small for channel %q: %w", channel, lcmerr.ErrBufferTooSmall)
	}

	totalSize := uint32(len(payload))
	fragmentsInMsg := (len(payload) + maxFragmentSize - 1) / maxFragmentSize
	if fragmentsInMsg == 0 {
		fragmentsInMsg = 1 // spec.md §9: fragments_in_msg==1 is legal and short-circuits to delivery
	}
	if fragmentsInMsg > MaxFragments {
		return fmt.Errorf("wire: message requires %d fragments, exceeds MaxFragments=%d", fragmentsInMsg, MaxFragments)
	}

	offset := 0
	for fragID := 0; fragID < fragmentsInMsg; fragID++ {
		end := offset + maxFragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		n, err := EncodeFragment(scratch, FragmentPacket{
			MsgSeq:         msgSeq,
			TotalSize:      totalSize,
			FragmentOffset: uint32(offset),
			FragmentID:     uint16(fragID),
			FragmentsInMsg: uint16(fragmentsInMsg),
			Channel:        channel,
			Payload:        payload[offset:end],
		})
		if err != nil {
			return err
		}
		if err := emit(scratch[:n]); err != nil {
			return err
		}
		offset = end
	}
	return nil
}

// EncodedSizeOfFragment returns the number of bytes EncodeFragment will
// write for p.
func EncodedSizeOfFragment(p FragmentPacket) int {
	size := fragHeaderFixedSize + len(p.Payload)
	if p.FragmentID == 0 {
		size += len(p.Channel) + 1
	}
	return size
}

// EncodeFragment writes a single fragmented packet into dest.
func EncodeFragment(dest []byte, p FragmentPacket) (int, error) {
	size := EncodedSizeOfFragment(p)
	if len(dest) < size {
		return 0, lcmerr.ErrBufferTooSmall
	}
	pos := 0
	binary.BigEndian.PutUint32(dest[pos:], MagicFragmented)
	pos += 4
	binary.BigEndian.PutUint32(dest[pos:], p.MsgSeq)
	pos += 4
	binary.BigEndian.PutUint32(dest[pos:], p.TotalSize)
	pos += 4
	binary.BigEndian.PutUint32(dest[pos:], p.FragmentOffset)
	pos += 4
	binary.BigEndian.PutUint16(dest[pos:], p.FragmentID)
	pos += 2
	binary.BigEndian.PutUint16(dest[pos:], p.FragmentsInMsg)
	pos += 2
	if p.FragmentID == 0 {
		pos += copy(dest[pos:], p.Channel)
		dest[pos] = 0
		pos++
	}
	pos += copy(dest[pos:], p.Payload)
	return pos, nil
}

// DecodeFragment parses a fragmented packet and validates its header
// fields per spec.md §4.2's decoder contract. The caller must already have
// checked the magic number.
func DecodeFragment(buf []byte) (*FragmentPacket, error) {
	if len(buf) < fragHeaderFixedSize {
		return nil, fmt.Errorf("wire: fragment truncated: %w", lcmerr.ErrBufferTooSmall)
	}
	pos := 4 // skip magic
	msgSeq := binary.BigEndian.Uint32(buf[pos:])
	pos += 4
	totalSize := binary.BigEndian.Uint32(buf[pos:])
	pos += 4
	fragOffset := binary.BigEndian.Uint32(buf[pos:])
	pos += 4
	fragID := binary.BigEndian.Uint16(buf[pos:])
	pos += 2
	fragsInMsg := binary.BigEndian.Uint16(buf[pos:])
	pos += 2

	if totalSize > MaxMessageSize {
		return nil, fmt.Errorf("wire: total_size %d exceeds MaxMessageSize", totalSize)
	}
	if fragsInMsg == 0 || int(fragsInMsg) > MaxFragments {
		return nil, fmt.Errorf("wire: fragments_in_msg %d out of range", fragsInMsg)
	}
	if fragID >= fragsInMsg {
		return nil, fmt.Errorf("wire: fragment_id %d >= fragments_in_msg %d", fragID, fragsInMsg)
	}

	var channel string
	if fragID == 0 {
		rest := buf[pos:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, fmt.Errorf("wire: channel not NUL-terminated")
		}
		if nul > MaxChannelLength {
			return nil, fmt.Errorf("wire: channel exceeds %d bytes", MaxChannelLength)
		}
		channel = string(rest[:nul])
		pos += nul + 1
	}

	payload := buf[pos:]
	if uint64(fragOffset)+uint64(len(payload)) > uint64(totalSize) {
		return nil, fmt.Errorf("wire: fragment_offset %d + payload %d exceeds total_size %d", fragOffset, len(payload), totalSize)
	}

	return &FragmentPacket{
		MsgSeq:         msgSeq,
		TotalSize:      totalSize,
		FragmentOffset: fragOffset,
		FragmentID:     fragID,
		FragmentsInMsg: fragsInMsg,
		Channel:        channel,
		Payload:        payload,
	}, nil
}

// Decoded is the result of decoding a received datagram of unknown format.
type Decoded struct {
	Short    *ShortPacket
	Fragment *FragmentPacket
}

// DecodePacket inspects the magic number and dispatches to DecodeShort or
// DecodeFragment. An unknown magic or a packet shorter than 4 bytes is
// rejected.
func DecodePacket(buf []byte) (*Decoded, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("wire: packet shorter than magic: %w", lcmerr.ErrBufferTooSmall)
	}
	magic := binary.BigEndian.Uint32(buf[:4])
	switch magic {
	case MagicShort:
		p, err := DecodeShort(buf)
		if err != nil {
			return nil, err
		}
		return &Decoded{Short: p}, nil
	case MagicFragmented:
		p, err := DecodeFragment(buf)
		if err != nil {
			return nil, err
		}
		return &Decoded{Fragment: p}, nil
	default:
		return nil, fmt.Errorf("wire: unknown magic 0x%08x", magic)
	}
}
