// Package memq implements the in-process queue transport selected by the
// "memq://" provider URL: publishers and subscribers within the same
// process exchange messages directly, without going through the network at
// all. It is adapted from the teacher's cmd/proxy hub/client/broadcast
// pattern (internal/rcarmo-codebits-tv/cmd/proxy/main.go's hub.add/remove
// /broadcast fanning a frame out to every registered client) — generalized
// from one fixed JPEG-frame channel per HTTP client to one arbitrary LCM
// channel/payload message per route, and from a process-wide singleton hub
// to one Bus per memq:// URL, shared by every LCM instance that opens that
// URL. Unlike the teacher's buffered,
// drop-on-full channel hand-off, Publish here calls every route
// synchronously on the publisher's own goroutine: spec.md's memq provider
// is defined as enqueuing "directly ... with no serialization", so a
// publisher's own handle_timeout(0) can observe the delivery before
// returning.
package memq

import "sync"

// Message is a published (channel, payload) pair, analogous to the JPEG
// frame the teacher's hub broadcast to its clients.
type Message struct {
	Channel string
	Data    []byte
}

type route struct {
	deliver func(Message)
}

// Bus is an in-process publish/subscribe hub. Multiple LCM instances that
// open the same "memq://" URL within a process share a Bus keyed by that
// URL (see Registry), so they can talk to each other exactly as if they
// were on a real transport.
type Bus struct {
	mu     sync.Mutex
	routes map[*route]struct{}
}

// NewBus creates an empty, unconnected Bus.
func NewBus() *Bus {
	return &Bus{routes: make(map[*route]struct{})}
}

// Subscribe registers deliver as a route on the bus. Every Publish call
// made after Subscribe returns invokes deliver synchronously, on the
// publishing goroutine, for as long as the returned Subscriber stays open.
// There is no per-route queue: a subscriber only observes messages
// published while subscribed, matching spec.md's "no serialization"
// requirement for the memq transport.
func (b *Bus) Subscribe(deliver func(Message)) *Subscriber {
	r := &route{deliver: deliver}
	b.mu.Lock()
	b.routes[r] = struct{}{}
	b.mu.Unlock()
	return &Subscriber{bus: b, route: r}
}

// Publish calls every currently-subscribed route's deliver function in
// registration-independent order, synchronously, on the caller's goroutine.
// It never blocks on a subscriber: a route is just a direct function call,
// not a queue that can fill up.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	routes := make([]*route, 0, len(b.routes))
	for r := range b.routes {
		routes = append(routes, r)
	}
	b.mu.Unlock()

	for _, r := range routes {
		r.deliver(msg)
	}
}

func (b *Bus) unsubscribe(r *route) {
	b.mu.Lock()
	delete(b.routes, r)
	b.mu.Unlock()
}

// Subscriber is a single receiver's handle on a Bus.
type Subscriber struct {
	bus   *Bus
	route *route
}

// Close detaches the subscriber from its Bus; deliver stops being called.
func (s *Subscriber) Close() { s.bus.unsubscribe(s.route) }

// Registry maps memq:// URLs (as parsed host strings, e.g. "bus" for
// "memq://bus") to the shared Bus instances within this process, so
// that separate LCM.Create calls naming the same memq URL end up talking on
// the same bus.
type Registry struct {
	mu    sync.Mutex
	buses map[string]*Bus
}

// NewRegistry creates an empty Registry. Processes typically keep one
// package-level Registry shared across every LCM instance they create.
func NewRegistry() *Registry {
	return &Registry{buses: make(map[string]*Bus)}
}

// BusFor returns the Bus for key, creating it on first use.
func (r *Registry) BusFor(key string) *Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buses[key]; ok {
		return b
	}
	b := NewBus()
	r.buses[key] = b
	return b
}
