package reassembly

import (
	"bytes"
	"testing"
)

func split(payload []byte, fragSize int) [][]byte {
	var out [][]byte
	for off := 0; off < len(payload); off += fragSize {
		end := off + fragSize
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, payload[off:end])
	}
	return out
}

func feed(r *Reassembler, sender SenderKey, msgSeq uint32, channel string, payload []byte, fragSize int, order []int) *Completed {
	parts := split(payload, fragSize)
	var completed *Completed
	for _, idx := range order {
		off := idx * fragSize
		f := Fragment{
			Sender:         sender,
			MsgSeq:         msgSeq,
			TotalSize:      uint32(len(payload)),
			FragmentOffset: uint32(off),
			FragmentID:     uint16(idx),
			FragmentsInMsg: uint16(len(parts)),
		}
		if idx == 0 {
			f.Channel = channel
		}
		if c := r.Accept(f, parts[idx]); c != nil {
			completed = c
		}
	}
	return completed
}

func TestReassembleInOrder(t *testing.T) {
	r := New(4)
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	order := []int{0, 1, 2, 3, 4}
	c := feed(r, SenderKey{Port: 1}, 1, "chan", payload, 1200, order)
	if c == nil {
		t.Fatalf("expected completion")
	}
	if c.Channel != "chan" || !bytes.Equal(c.Payload, payload) {
		t.Fatalf("bad completion: channel=%q len=%d", c.Channel, len(c.Payload))
	}
}

func TestReassembleOutOfOrder(t *testing.T) {
	r := New(4)
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	order := []int{4, 0, 3, 1, 2}
	c := feed(r, SenderKey{Port: 1}, 1, "chan", payload, 1200, order)
	if c == nil || !bytes.Equal(c.Payload, payload) {
		t.Fatalf("out-of-order reassembly failed")
	}
}

func TestDuplicateFragmentIgnored(t *testing.T) {
	r := New(4)
	payload := make([]byte, 2400)
	order := []int{0, 0, 1}
	c := feed(r, SenderKey{Port: 1}, 1, "chan", payload, 1200, order)
	if c == nil {
		t.Fatalf("expected completion despite duplicate fragment")
	}
}

func TestDuplicateAfterCompletionDoesNotRedeliver(t *testing.T) {
	r := New(4)
	payload := []byte{1, 2, 3}
	f := Fragment{Sender: SenderKey{Port: 1}, MsgSeq: 1, TotalSize: 3, FragmentOffset: 0, FragmentID: 0, FragmentsInMsg: 1, Channel: "chan"}
	if c := r.Accept(f, payload); c == nil {
		t.Fatalf("expected immediate completion for a single-fragment message")
	}
	if c := r.Accept(f, payload); c != nil {
		t.Fatalf("duplicate fragment after completion redelivered the message")
	}
}

func TestNPlusOneConcurrentStreamsEvictOldest(t *testing.T) {
	const numBuffers = 4
	r := New(numBuffers)

	// Start numBuffers+1 distinct messages, each partially fed (one
	// fragment each, none complete), in order 0..numBuffers. The first
	// stream should be evicted to make room for the (numBuffers+1)th.
	payload := make([]byte, 3600) // 3 fragments at fragSize=1200
	parts := split(payload, 1200)

	streamComplete := make([]bool, numBuffers+1)
	for s := 0; s <= numBuffers; s++ {
		sender := SenderKey{Port: uint16(s)}
		f := Fragment{Sender: sender, MsgSeq: 1, TotalSize: uint32(len(payload)), FragmentOffset: 0, FragmentID: 0, FragmentsInMsg: uint16(len(parts)), Channel: "chan"}
		r.Accept(f, parts[0])
	}

	// Now feed every stream its remaining fragments.
	delivered := 0
	for s := 0; s <= numBuffers; s++ {
		sender := SenderKey{Port: uint16(s)}
		for idx := 1; idx < len(parts); idx++ {
			f := Fragment{Sender: sender, MsgSeq: 1, TotalSize: uint32(len(payload)), FragmentOffset: uint32(idx * 1200), FragmentID: uint16(idx), FragmentsInMsg: uint16(len(parts))}
			if c := r.Accept(f, parts[idx]); c != nil {
				streamComplete[s] = true
				delivered++
			}
		}
	}

	if delivered > numBuffers {
		t.Fatalf("delivered %d messages, want at most %d (N+1 streams, N buffers)", delivered, numBuffers)
	}
	if streamComplete[0] {
		// stream 0 was the least-recently-active at the time stream
		// numBuffers needed a slot, so it's the one expected to be evicted.
		t.Fatalf("stream 0 (expected evictee) completed; LRU should have evicted its fragment 0")
	}
}
