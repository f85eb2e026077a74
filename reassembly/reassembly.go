// Package reassembly implements the LCM fragment reassembler: a
// fixed-capacity ring of per-(sender,msg_seq) fragment buffers with LRU
// eviction, adapted from the teacher's internal/mcast.Receiver fragment
// map (which grew without bound) and lcm-lite's fixed-size
// fragment_buffers array (original_source/lcm-lite/lcmlite.c).
//
// A Reassembler is not safe for concurrent use; it is meant to be owned by
// a single receiver goroutine, matching spec.md §4.3/§5's "receiver-private,
// no locking needed".
package reassembly

// DefaultNumBuffers is the default number of concurrent in-flight fragmented
// messages the reassembler can track before it starts evicting the oldest.
const DefaultNumBuffers = 4

// SenderKey uniquely identifies a remote publisher endpoint for reassembly
// purposes. It carries no more information than is needed for equality and
// hashing, per spec.md's data model.
type SenderKey struct {
	IP   [4]byte
	Port uint16
}

// Completed is a fully reassembled message, ready for dispatch.
type Completed struct {
	Channel string
	Payload []byte
	Sender  SenderKey
}

type fragmentBuffer struct {
	inUse          bool
	delivered      bool // true once Accept has returned this buffer's Completed
	sender         SenderKey
	msgSeq         uint32
	channel        string
	totalSize      uint32
	fragmentsInMsg uint16
	fragmentsLeft  uint16
	received       []bool
	payload        []byte
	lastActivity   uint32
}

// Reassembler holds a fixed number of fragment buffers and reassembles
// fragmented packets into complete messages.
type Reassembler struct {
	buffers  []fragmentBuffer
	activity uint32
}

// New creates a Reassembler with numBuffers concurrent reassembly slots. A
// value <= 0 uses DefaultNumBuffers.
func New(numBuffers int) *Reassembler {
	if numBuffers <= 0 {
		numBuffers = DefaultNumBuffers
	}
	return &Reassembler{buffers: make([]fragmentBuffer, numBuffers)}
}

// Fragment is the subset of a decoded wire.FragmentPacket the reassembler
// needs; kept independent of the wire package so reassembly has no
// dependency on packet decoding.
type Fragment struct {
	Sender         SenderKey
	MsgSeq         uint32
	TotalSize      uint32
	FragmentOffset uint32
	FragmentID     uint16
	FragmentsInMsg uint16
	Channel        string // only meaningful when FragmentID == 0
}

// Accept processes one incoming fragment and its payload slice. It returns
// a non-nil *Completed exactly when this fragment completed its message.
// Duplicate fragments are silently ignored while their (sender, msgSeq)
// still holds a buffer, including after the message completed (the buffer
// stays as a tombstone). Once that buffer has been reclaimed for a
// different (sender, msgSeq), a late duplicate is treated as the first
// fragment of a new message, so a single-fragment message can be returned
// again.
func (r *Reassembler) Accept(f Fragment, payload []byte) *Completed {
	buf := r.lookup(f.Sender, f.MsgSeq)
	if buf == nil {
		buf = r.allocate()
		r.init(buf, f)
	}

	r.activity++
	buf.lastActivity = r.activity

	if f.FragmentID == 0 && f.Channel != "" {
		buf.channel = f.Channel
	}

	if int(f.FragmentID) >= len(buf.received) {
		// Defensive: a caller bypassing wire.DecodeFragment's validation
		// could hand us an out-of-range id. Treat as a dropped fragment.
		return nil
	}

	if !buf.received[f.FragmentID] {
		buf.received[f.FragmentID] = true
		copy(buf.payload[f.FragmentOffset:], payload)
		buf.fragmentsLeft--
	}

	if buf.fragmentsLeft == 0 {
		if buf.delivered {
			// A duplicate of a fragment that already completed this
			// message; buf is a tombstone, identified by (sender, msgSeq)
			// but otherwise inert until allocate() reclaims it for a
			// different key.
			return nil
		}
		buf.delivered = true
		return &Completed{Channel: buf.channel, Payload: buf.payload, Sender: buf.sender}
	}
	return nil
}

// lookup returns the buffer already tracking (sender, msgSeq), if any,
// including a completed (tombstoned) one still holding that identity so a
// late duplicate fragment is recognized and suppressed rather than
// mistaken for the start of a new message.
func (r *Reassembler) lookup(sender SenderKey, msgSeq uint32) *fragmentBuffer {
	for i := range r.buffers {
		b := &r.buffers[i]
		if b.inUse && b.sender == sender && b.msgSeq == msgSeq {
			return b
		}
	}
	return nil
}

// allocate picks a buffer to (re)use: an idle one if any exists, else the
// least-recently-active buffer (oldest lastActivity, which may be a
// completed tombstone), matching lcm-lite's "idle buffer, else oldest"
// allocation priority. A tombstone's identity is only cleared here, by
// init(), when it is reclaimed for a different (sender, msgSeq).
func (r *Reassembler) allocate() *fragmentBuffer {
	for i := range r.buffers {
		if !r.buffers[i].inUse {
			return &r.buffers[i]
		}
	}
	oldest := &r.buffers[0]
	for i := 1; i < len(r.buffers); i++ {
		if r.buffers[i].lastActivity < oldest.lastActivity {
			oldest = &r.buffers[i]
		}
	}
	return oldest
}

func (r *Reassembler) init(buf *fragmentBuffer, f Fragment) {
	buf.inUse = true
	buf.delivered = false
	buf.sender = f.Sender
	buf.msgSeq = f.MsgSeq
	buf.channel = ""
	buf.totalSize = f.TotalSize
	buf.fragmentsInMsg = f.FragmentsInMsg
	buf.fragmentsLeft = f.FragmentsInMsg
	if cap(buf.received) < int(f.FragmentsInMsg) {
		buf.received = make([]bool, f.FragmentsInMsg)
	} else {
		buf.received = buf.received[:f.FragmentsInMsg]
		for i := range buf.received {
			buf.received[i] = false
		}
	}
	if cap(buf.payload) < int(f.TotalSize) {
		buf.payload = make([]byte, f.TotalSize)
	} else {
		buf.payload = buf.payload[:f.TotalSize]
	}
}
