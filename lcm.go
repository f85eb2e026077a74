// Package lcm provides a Go implementation of LCM (Lightweight
// Communications and Marshalling): a best-effort publish/subscribe
// messaging layer for low-latency sensor and robotics applications.
//
// # Overview
//
// An LCM instance is created from a provider URL — "udpm://host:port" for
// UDP multicast (the default transport), "memq://name" for an in-process bus
// useful in tests, or "file://path" for read-only replay from a recorded
// eventlog. Publishers call Publish with a channel name and an opaque byte
// payload; subscribers register a pattern and callback with Subscribe and
// drain queued deliveries from their own goroutine via Handle or
// HandleTimeout.
//
// The wire protocol (package wire), fragment reassembly (package
// reassembly), the multicast transport (package mcast), and the
// subscription/dispatch engine (package dispatch) are assembled here behind
// the provider-selecting facade the rest of this package implements.
package lcm

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lcm-go/dispatch"
	"lcm-go/eventlog"
	"lcm-go/internal/config"
	"lcm-go/internal/memq"
	"lcm-go/internal/obs"
	"lcm-go/lcmerr"
	"lcm-go/lcmurl"
	"lcm-go/mcast"
	"lcm-go/reassembly"
	"lcm-go/wire"
)

// Message is a delivered publication, handed to a subscription's callback.
type Message = dispatch.Message

// Subscription represents one registered pattern/callback pair.
type Subscription = dispatch.Subscription

// defaultMemqRegistry backs every "memq://" URL opened within this
// process, so two LCM instances naming the same memq URL actually talk to
// each other, as spec.md's in-process transport requires.
var defaultMemqRegistry = memq.NewRegistry()

var seq uint32

func nextMsgSeq() uint32 {
	return atomic.AddUint32(&seq, 1)
}

// LCM is a provider-backed publish/subscribe handle.
type LCM struct {
	provider provider
	disp     *dispatch.Dispatcher

	recvOnce sync.Once
	stop     chan struct{}
	notify   chan struct{}
}

// provider abstracts the three transports a URL can select between: udpm
// (and its reserved udp alias), memq, and file.
type provider interface {
	// publish sends a message; returns ErrInvalidState for read-only
	// (file) providers.
	publish(channel string, data []byte) error
	// startReceiving begins delivering inbound messages to deliver, until
	// stop is closed. It must close ready as soon as it has finished any
	// synchronous setup (e.g. registering with a memq.Bus) and before
	// blocking, so ensureReceiving can guarantee that setup has happened
	// before a Subscribe/Handle call returns. Providers with nothing to
	// receive (a pure publish transmit-only udpm, or an exhausted file)
	// may close ready immediately and return.
	startReceiving(stop <-chan struct{}, deliver func(dispatch.Message), ready chan<- struct{})
	fd() (uintptr, error)
	close() error
}

// Create opens a new LCM instance for the given provider URL. An empty url
// falls back to the DEFAULT_URL environment variable and, failing that, the
// default udpm:// multicast group, matching the original library's
// lcm_create(NULL) behavior.
func Create(url string) (*LCM, error) {
	if url == "" {
		cfg, err := config.Load("", nil)
		if err != nil {
			return nil, fmt.Errorf("lcm: create: load default url: %w", err)
		}
		url = cfg.DefaultURL
	}
	if url == "" {
		url = "udpm://" + mcast.DefaultAddr
	}

	parsed, err := lcmurl.Parse(url)
	if err != nil {
		return nil, fmt.Errorf("lcm: create: %w", err)
	}

	p, err := newProvider(parsed)
	if err != nil {
		return nil, err
	}

	return &LCM{
		provider: p,
		disp:     dispatch.New(),
		stop:     make(chan struct{}),
		notify:   make(chan struct{}, 1),
	}, nil
}

func newProvider(p *lcmurl.Parsed) (provider, error) {
	switch p.Scheme {
	case lcmurl.MEMQ:
		return newMemqProvider(p), nil
	case lcmurl.FILE:
		return newFileProvider(p)
	case lcmurl.UDP, lcmurl.UDPM, lcmurl.NotSpecified:
		return newUDPMProvider(p)
	default:
		return nil, fmt.Errorf("lcm: unsupported scheme %v: %w", p.Scheme, lcmerr.ErrInvalidArgument)
	}
}

// Publish transmits data on channel.
func (l *LCM) Publish(channel string, data []byte) error {
	if channel == "" {
		return fmt.Errorf("lcm: empty channel: %w", lcmerr.ErrInvalidArgument)
	}
	if len(channel) > wire.MaxChannelLength {
		return fmt.Errorf("lcm: channel exceeds %d bytes: %w", wire.MaxChannelLength, lcmerr.ErrInvalidArgument)
	}
	return l.provider.publish(channel, data)
}

// Subscribe registers pattern with cb. See dispatch.Dispatcher.Subscribe
// for the supported pattern syntax.
func (l *LCM) Subscribe(pattern string, cb func(*Message)) (*Subscription, error) {
	l.ensureReceiving()
	return l.disp.Subscribe(pattern, cb)
}

// Unsubscribe removes sub.
func (l *LCM) Unsubscribe(sub *Subscription) error {
	return l.disp.Unsubscribe(sub)
}

// ensureReceiving lazily starts the single background receiver goroutine
// on first Subscribe/Handle, per spec.md §5's concurrency model. It blocks
// until the provider signals that its synchronous setup (if any) has
// completed, so that — critically for the memq provider's "no
// serialization" guarantee — a Publish racing a Subscribe on another
// instance can never land before that instance is actually listening.
func (l *LCM) ensureReceiving() {
	l.recvOnce.Do(func() {
		ready := make(chan struct{})
		go func() {
			l.provider.startReceiving(l.stop, func(msg dispatch.Message) {
				l.disp.Deliver(msg)
				select {
				case l.notify <- struct{}{}:
				default:
				}
			}, ready)
		}()
		<-ready
	})
}

// Handle blocks until at least one message is available, then drains every
// message queued for each subscription, in registration order.
func (l *LCM) Handle() error {
	l.ensureReceiving()
	select {
	case <-l.notify:
	case <-l.stop:
		return fmt.Errorf("lcm: handle on closed instance: %w", lcmerr.ErrInvalidState)
	}
	l.drain()
	return nil
}

// HandleTimeout waits up to ms milliseconds for a message, then drains.
// Returns the number of callbacks invoked (>0) if at least one message was
// handled, 0 on timeout, -1 on error (including a negative ms), per
// spec.md §4.6's "return the number of synchronously delivered messages"
// and §5's three-way contract.
func (l *LCM) HandleTimeout(ms int) int {
	if ms < 0 {
		return -1
	}
	l.ensureReceiving()
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-l.notify:
		return l.drain()
	case <-timer.C:
		return 0
	case <-l.stop:
		return -1
	}
}

// drain invokes every subscription's ready callbacks and returns the count
// delivered. If any subscription still has a message queued afterward (a
// message arrived mid-drain, or more survived an overflow than one pass
// consumed), it reposts to notify so the next Handle/HandleTimeout call
// doesn't block on a backlog nothing will wake it for.
func (l *LCM) drain() int {
	n := l.disp.Drain(func(pattern string, recovered any) {
		obs.Named("dispatch").Sugar().Errorw("subscription callback panicked",
			"pattern", pattern, "recovered", recovered)
	})
	if l.disp.Backlogged() {
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
	return n
}

// FileDescriptor exposes a descriptor suitable for external readiness
// multiplexing (select/epoll/kqueue), where supported by the underlying
// provider (memq and file providers have none and return ErrInvalidState).
func (l *LCM) FileDescriptor() (uintptr, error) {
	return l.provider.fd()
}

// Close releases the underlying provider and stops the receiver goroutine.
func (l *LCM) Close() error {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	return l.provider.close()
}

// --- udpm / udp provider ---

type udpmProvider struct {
	sock        *mcast.Socket
	reassembler *reassembly.Reassembler

	// publishMu guards scratch: publish may be called from any goroutine
	// per spec.md §5, but the encode buffer is shared to avoid a
	// per-publish allocation.
	publishMu sync.Mutex
	scratch   []byte
}

func newUDPMProvider(p *lcmurl.Parsed) (*udpmProvider, error) {
	cfg := mcast.Config{}
	host, port := p.Host, p.Port
	if a := p.Opts.Get("mc_addr"); a != "" {
		host = a
	}
	if v, err := strconv.Atoi(p.Opts.Get("mc_port")); err == nil {
		port = v
	}
	if host != "" {
		if port < 0 {
			port = 7667
		}
		cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	if ttl := p.Opts.Get("ttl"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			cfg.TTL = v
		}
	}
	if iface := p.Opts.Get("interface"); iface != "" {
		cfg.Interface = iface
	}
	if p.Opts.Get("transmit_only") == "true" {
		cfg.TransmitOnly = true
	}
	if rb := p.Opts.Get("recv_buf_size"); rb != "" {
		if v, err := strconv.Atoi(rb); err == nil {
			cfg.RecvBufSize = v
		}
	}
	for name := range p.Opts {
		switch name {
		case "ttl", "interface", "transmit_only", "recv_buf_size", "mc_addr", "mc_port":
		default:
			obs.Named("lcm").Sugar().Warnw("ignoring unknown provider option", "option", name)
		}
	}

	sock, err := mcast.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &udpmProvider{
		sock:        sock,
		reassembler: reassembly.New(reassembly.DefaultNumBuffers),
		scratch:     make([]byte, wire.DefaultScratchBufferSize),
	}, nil
}

func (u *udpmProvider) publish(channel string, data []byte) error {
	u.publishMu.Lock()
	defer u.publishMu.Unlock()

	maxFrag := wire.MaxFragmentSize(len(u.scratch), wire.MaxHeaderOverhead)
	if wire.EncodedSizeOfShort(channel, len(data)) <= len(u.scratch) && len(data) <= maxFrag {
		n, err := wire.EncodeShort(u.scratch, channel, data, nextMsgSeq())
		if err != nil {
			return fmt.Errorf("lcm: encode: %w", err)
		}
		return u.sock.Send(u.scratch[:n])
	}
	return wire.EncodeFragments(u.scratch, channel, data, nextMsgSeq(), u.sock.Send)
}

func (u *udpmProvider) startReceiving(stop <-chan struct{}, deliver func(dispatch.Message), ready chan<- struct{}) {
	close(ready)
	buf := make([]byte, 1<<16)
	for {
		select {
		case <-stop:
			return
		default:
		}
		sender, n, err := u.sock.RecvInto(buf)
		if err != nil {
			obs.Named("mcast").Sugar().Warnw("recv failed", "error", err)
			continue
		}
		decoded, err := wire.DecodePacket(buf[:n])
		if err != nil {
			continue // swallowed; no count of rejected packets is kept
		}
		now := time.Now().UnixMicro()
		switch {
		case decoded.Short != nil:
			deliver(dispatch.Message{Channel: decoded.Short.Channel, Data: decoded.Short.Payload, ReceiveTimeMicros: now})
		case decoded.Fragment != nil:
			f := decoded.Fragment
			completed := u.reassembler.Accept(reassembly.Fragment{
				Sender:         reassembly.SenderKey{IP: sender.IP, Port: sender.Port},
				MsgSeq:         f.MsgSeq,
				TotalSize:      f.TotalSize,
				FragmentOffset: f.FragmentOffset,
				FragmentID:     f.FragmentID,
				FragmentsInMsg: f.FragmentsInMsg,
				Channel:        f.Channel,
			}, f.Payload)
			if completed != nil {
				deliver(dispatch.Message{Channel: completed.Channel, Data: completed.Payload, ReceiveTimeMicros: now})
			}
		}
	}
}

func (u *udpmProvider) fd() (uintptr, error) { return u.sock.Fd() }
func (u *udpmProvider) close() error         { return u.sock.Close() }

// --- memq provider ---

type memqProvider struct {
	bus *memq.Bus
	sub *memq.Subscriber
}

func newMemqProvider(p *lcmurl.Parsed) *memqProvider {
	return &memqProvider{bus: defaultMemqRegistry.BusFor(p.Host)}
}

func (m *memqProvider) publish(channel string, data []byte) error {
	m.bus.Publish(memq.Message{Channel: channel, Data: data})
	return nil
}

func (m *memqProvider) startReceiving(stop <-chan struct{}, deliver func(dispatch.Message), ready chan<- struct{}) {
	m.sub = m.bus.Subscribe(func(msg memq.Message) {
		deliver(dispatch.Message{Channel: msg.Channel, Data: msg.Data, ReceiveTimeMicros: time.Now().UnixMicro()})
	})
	close(ready)
	<-stop
	m.sub.Close()
}

func (m *memqProvider) fd() (uintptr, error) {
	return 0, fmt.Errorf("lcm: memq provider has no file descriptor: %w", lcmerr.ErrInvalidState)
}
func (m *memqProvider) close() error { return nil }

// --- file (replay) provider ---

type fileProvider struct {
	log *eventlog.Log
}

func newFileProvider(p *lcmurl.Parsed) (*fileProvider, error) {
	log, err := eventlog.Open(p.Host, eventlog.Read)
	if err != nil {
		return nil, err
	}
	return &fileProvider{log: log}, nil
}

func (f *fileProvider) publish(channel string, data []byte) error {
	return fmt.Errorf("lcm: publish on read-only file provider: %w", lcmerr.ErrInvalidState)
}

func (f *fileProvider) startReceiving(stop <-chan struct{}, deliver func(dispatch.Message), ready chan<- struct{}) {
	close(ready)
	for {
		select {
		case <-stop:
			return
		default:
		}
		ev, err := f.log.ReadNextEvent()
		if err != nil {
			return
		}
		deliver(dispatch.Message{Channel: ev.Channel, Data: ev.Data, ReceiveTimeMicros: ev.TimestampMicros})
	}
}

func (f *fileProvider) fd() (uintptr, error) {
	return 0, fmt.Errorf("lcm: file provider has no file descriptor: %w", lcmerr.ErrInvalidState)
}
func (f *fileProvider) close() error { return f.log.Close() }
