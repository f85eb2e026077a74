// Package eventlog implements EventLog: a sequential, seekable binary
// recording of timestamped channel publications, used by lcm-logger to
// record a session and by lcm-logplayer/lcm-logfilter to replay or rewrite
// one. The framing and fractional timestamp-seek algorithm are grounded
// line-for-line on original_source/lcm-python/eventlog.c (magic word,
// big-endian int32/int64 fields, bisection search).
package eventlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"lcm-go/lcmerr"
)

// magic precedes every event; resynchronizing readers scan byte-by-byte
// for it, exactly as eventlog_read_next_event's shift-and-compare loop does.
const magic uint32 = 0xEDA1DA01

// maxChannelLength guards against runaway allocation on a corrupt or
// desynchronized log, mirroring the original's "channellen < 1000" assert.
const maxChannelLength = 1000

// Event is one recorded publication.
type Event struct {
	EventNumber int64
	TimestampMicros int64
	Channel     string
	Data        []byte
}

// Mode selects how a Log is opened.
type Mode int

const (
	Read Mode = iota
	Write
)

// Log is an open event log file, positioned for sequential Read or Write
// access (never both, matching the original's fopen(path, "r"|"w")).
type Log struct {
	f          *os.File
	r          *bufio.Reader
	w          *bufio.Writer
	mode       Mode
	eventCount int64
}

// Open opens path in the given mode. Write mode truncates/creates the file;
// Read mode requires it to already exist.
func Open(path string, mode Mode) (*Log, error) {
	var f *os.File
	var err error
	switch mode {
	case Read:
		f, err = os.Open(path)
	case Write:
		f, err = os.Create(path)
	default:
		return nil, fmt.Errorf("eventlog: invalid mode: %w", lcmerr.ErrInvalidArgument)
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %q: %w", path, lcmerr.ErrIO)
	}
	l := &Log{f: f, mode: mode}
	if mode == Read {
		l.r = bufio.NewReader(f)
	} else {
		l.w = bufio.NewWriter(f)
	}
	return l, nil
}

// Close flushes (in write mode) and closes the underlying file.
func (l *Log) Close() error {
	if l.w != nil {
		if err := l.w.Flush(); err != nil {
			l.f.Close()
			return fmt.Errorf("eventlog: flush: %w", lcmerr.ErrIO)
		}
	}
	return l.f.Close()
}

func write32(w *bufio.Writer, v int32) error {
	return binary.Write(w, binary.BigEndian, v)
}

func write64(w *bufio.Writer, v int64) error {
	if err := write32(w, int32(v>>32)); err != nil {
		return err
	}
	return write32(w, int32(v&0xffffffff))
}

// WriteEvent appends ev to the log. EventNumber is assigned by the log
// itself (ev.EventNumber is overwritten), matching the original's
// le->eventnum = l->eventcount.
func (l *Log) WriteEvent(ev *Event) error {
	if l.mode != Write {
		return fmt.Errorf("eventlog: write on a read-mode log: %w", lcmerr.ErrInvalidState)
	}
	ev.EventNumber = l.eventCount

	if err := binary.Write(l.w, binary.BigEndian, magic); err != nil {
		return fmt.Errorf("eventlog: write magic: %w", lcmerr.ErrIO)
	}
	if err := write64(l.w, ev.EventNumber); err != nil {
		return fmt.Errorf("eventlog: write event number: %w", lcmerr.ErrIO)
	}
	if err := write64(l.w, ev.TimestampMicros); err != nil {
		return fmt.Errorf("eventlog: write timestamp: %w", lcmerr.ErrIO)
	}
	if err := write32(l.w, int32(len(ev.Channel))); err != nil {
		return fmt.Errorf("eventlog: write channel length: %w", lcmerr.ErrIO)
	}
	if err := write32(l.w, int32(len(ev.Data))); err != nil {
		return fmt.Errorf("eventlog: write data length: %w", lcmerr.ErrIO)
	}
	if _, err := l.w.WriteString(ev.Channel); err != nil {
		return fmt.Errorf("eventlog: write channel: %w", lcmerr.ErrIO)
	}
	if _, err := l.w.Write(ev.Data); err != nil {
		return fmt.Errorf("eventlog: write data: %w", lcmerr.ErrIO)
	}

	l.eventCount++
	return nil
}

func read32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func read64(r io.Reader) (int64, error) {
	hi, err := read32(r)
	if err != nil {
		return 0, err
	}
	lo, err := read32(r)
	if err != nil {
		return 0, err
	}
	return (int64(hi) << 32) | (int64(lo) & 0xffffffff), nil
}

// scanForMagic byte-scans forward until it sees the magic word or hits EOF,
// exactly as the original's "magic = (magic << 8) | r" loop does; this lets
// a reader resynchronize after any corrupt or truncated record.
func scanForMagic(r *bufio.Reader) error {
	var window uint32
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		window = (window << 8) | uint32(b)
		if window == magic {
			return nil
		}
	}
}

// ReadNextEvent reads and returns the next event, or (nil, io.EOF) at end
// of file.
func (l *Log) ReadNextEvent() (*Event, error) {
	if l.mode != Read {
		return nil, fmt.Errorf("eventlog: read on a write-mode log: %w", lcmerr.ErrInvalidState)
	}
	if err := scanForMagic(l.r); err != nil {
		return nil, io.EOF
	}

	eventNum, err := read64(l.r)
	if err != nil {
		return nil, io.EOF
	}
	ts, err := read64(l.r)
	if err != nil {
		return nil, io.EOF
	}
	channelLen, err := read32(l.r)
	if err != nil {
		return nil, io.EOF
	}
	if channelLen < 0 || int(channelLen) >= maxChannelLength {
		return nil, fmt.Errorf("eventlog: implausible channel length %d: %w", channelLen, lcmerr.ErrInvalidState)
	}
	dataLen, err := read32(l.r)
	if err != nil {
		return nil, io.EOF
	}
	if dataLen < 0 {
		return nil, fmt.Errorf("eventlog: negative data length: %w", lcmerr.ErrInvalidState)
	}

	channel := make([]byte, channelLen)
	if _, err := io.ReadFull(l.r, channel); err != nil {
		return nil, io.EOF
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(l.r, data); err != nil {
		return nil, io.EOF
	}

	l.eventCount = eventNum + 1
	return &Event{
		EventNumber:     eventNum,
		TimestampMicros: ts,
		Channel:         string(channel),
		Data:            data,
	}, nil
}

// eventTimeAt scans for the next magic word at or after offset, reads just
// that record's event number and timestamp, and leaves f positioned just
// past the timestamp: 20 bytes (magic + two int64s) after the start of the
// record. SeekToTimestamp rewinds those 20 bytes, as the original's
// "fseeko(l->f, -20, SEEK_CUR)" does.
func eventTimeAt(f *os.File, offset int64) (int64, int64, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, 0, err
	}
	r := bufio.NewReader(f)
	if err := scanForMagic(r); err != nil {
		return 0, 0, io.EOF
	}
	eventNum, err := read64(r)
	if err != nil {
		return 0, 0, io.EOF
	}
	ts, err := read64(r)
	if err != nil {
		return 0, 0, io.EOF
	}
	// Undo the bufio read-ahead so the file offset matches what was consumed.
	if _, err := f.Seek(-int64(r.Buffered()), io.SeekCurrent); err != nil {
		return 0, 0, err
	}
	return eventNum, ts, nil
}

// SeekToTimestamp positions the log at (approximately) the first event
// whose timestamp is >= targetMicros, using the same fractional bisection
// search as eventlog_seek_to_timestamp: repeatedly probe a byte offset
// derived from a [0,1] fraction of the file length, narrow the bracket
// based on which side of targetMicros the probed event falls on, and stop
// once the fraction stops moving meaningfully.
func (l *Log) SeekToTimestamp(targetMicros int64) error {
	if l.mode != Read {
		return fmt.Errorf("eventlog: seek on a write-mode log: %w", lcmerr.ErrInvalidState)
	}
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("eventlog: stat: %w", lcmerr.ErrIO)
	}
	fileLen := info.Size()
	if fileLen == 0 {
		return fmt.Errorf("eventlog: empty log: %w", lcmerr.ErrInvalidState)
	}

	frac1, frac2 := 0.0, 1.0
	prevFrac := -1.0
	var landedOffset int64

	for {
		frac := 0.5 * (frac1 + frac2)
		offset := int64(frac * float64(fileLen))

		_, curTime, err := eventTimeAt(l.f, offset)
		if err != nil {
			return fmt.Errorf("eventlog: seek probe: %w", lcmerr.ErrIO)
		}
		pos, err := l.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("eventlog: seek: %w", lcmerr.ErrIO)
		}
		landedOffset = pos
		frac = float64(pos) / float64(fileLen)

		if frac > frac2 || frac < frac1 || frac1 >= frac2 {
			break
		}
		df := frac - prevFrac
		if df < 0 {
			df = -df
		}
		if df < 1e-12 {
			break
		}
		if curTime == targetMicros {
			break
		}
		if curTime < targetMicros {
			frac1 = frac
		} else {
			frac2 = frac
		}
		prevFrac = frac
	}

	// landedOffset sits just past the magic+eventnum+timestamp of the
	// final probe; rewind to the start of that record so ReadNextEvent
	// re-reads it in full.
	if _, err := l.f.Seek(landedOffset-20, io.SeekStart); err != nil {
		return fmt.Errorf("eventlog: seek: %w", lcmerr.ErrIO)
	}
	l.r = bufio.NewReader(l.f)
	return nil
}
