// Package dispatch implements the subscription and dispatch engine:
// pattern-matched routing of delivered messages to per-subscription bounded
// queues, and draining those queues on the user's Handle thread.
//
// The bounded queue and its non-blocking-send-with-drop behavior is adapted
// from the teacher's internal/mcast.Receiver, whose out channel is a
// buffered chan []byte fed with "select { case out <- b: default: }" — the
// same shape generalized here to one queue per subscription instead of one
// shared output channel.
package dispatch

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"lcm-go/lcmerr"
)

// DefaultQueueCapacity is the default bounded-queue size for a new
// subscription, per spec.md's data model.
const DefaultQueueCapacity = 30

// Message is a delivered publication, handed to matching subscriptions.
type Message struct {
	Channel           string
	Data              []byte
	ReceiveTimeMicros int64
}

// Subscription is a pattern + callback + bounded queue registered with a
// Dispatcher. The zero value is not usable; construct via Dispatcher.Subscribe.
type Subscription struct {
	pattern string
	matcher matcher
	cb      func(*Message)

	mu      sync.Mutex
	queue   chan Message
	cap     int
	dropped uint64
}

// Pattern returns the subscription's original pattern string.
func (s *Subscription) Pattern() string { return s.pattern }

// QueueSize returns the number of messages currently queued for this
// subscription, awaiting a Handle/HandleTimeout call to drain them.
func (s *Subscription) QueueSize() int {
	return len(s.queue)
}

// DroppedCount returns the number of messages dropped for this subscription
// because its queue was full at delivery time.
func (s *Subscription) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// SetQueueCapacity resizes the subscription's bounded queue. Messages
// already queued are kept oldest-first up to the new capacity; the newer
// excess messages are discarded and not counted in DroppedCount.
func (s *Subscription) SetQueueCapacity(n int) error {
	if n <= 0 {
		return fmt.Errorf("dispatch: queue capacity must be positive: %w", lcmerr.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	newQueue := make(chan Message, n)
	for len(s.queue) > 0 && len(newQueue) < n {
		newQueue <- <-s.queue
	}
	s.queue = newQueue
	s.cap = n
	return nil
}

type matcher interface {
	Match(channel string) bool
}

type literalMatcher string

func (l literalMatcher) Match(channel string) bool { return string(l) == channel }

type prefixMatcher string // pattern with ".*" suffix stripped

func (p prefixMatcher) Match(channel string) bool { return strings.HasPrefix(channel, string(p)) }

type regexMatcher struct{ re *regexp.Regexp }

func (r regexMatcher) Match(channel string) bool { return r.re.MatchString(channel) }

// compilePattern recognizes the literal and ".*"-suffix forms directly
// (matching lcm-lite's deliver_packet character walk, which special-cases a
// "." followed by "*" in the subscription string), and falls back to a
// fully-anchored regexp for anything else.
func compilePattern(pattern string) (matcher, error) {
	if strings.HasSuffix(pattern, ".*") {
		return prefixMatcher(strings.TrimSuffix(pattern, ".*")), nil
	}
	// A bare "." is common in literal channel names (e.g. "sensors.imu")
	// and is not itself a wildcard in this protocol's short-form syntax;
	// only the other regex metacharacters promote a pattern to the
	// optional full-regex form.
	if !strings.ContainsAny(pattern, `*+?()[]{}|^$\`) {
		return literalMatcher(pattern), nil
	}
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, fmt.Errorf("dispatch: invalid pattern %q: %w", pattern, lcmerr.ErrInvalidArgument)
	}
	return regexMatcher{re: re}, nil
}

// Dispatcher owns the subscription set and the per-subscription bounded
// queues. It is safe for concurrent Subscribe/Unsubscribe/Deliver from
// multiple goroutines; Drain must only be called from a single goroutine at
// a time (the "user thread"), per spec.md §4.5/§5.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []*Subscription
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers pattern with cb and returns the new Subscription.
// Subscriptions are drained, on Handle/HandleTimeout, in registration order.
func (d *Dispatcher) Subscribe(pattern string, cb func(*Message)) (*Subscription, error) {
	if pattern == "" {
		return nil, fmt.Errorf("dispatch: empty pattern: %w", lcmerr.ErrInvalidArgument)
	}
	if cb == nil {
		return nil, fmt.Errorf("dispatch: nil callback: %w", lcmerr.ErrInvalidArgument)
	}
	m, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		pattern: pattern,
		matcher: m,
		cb:      cb,
		queue:   make(chan Message, DefaultQueueCapacity),
		cap:     DefaultQueueCapacity,
	}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes sub from the dispatcher. Any messages still queued
// for it are discarded.
func (d *Dispatcher) Unsubscribe(sub *Subscription) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s == sub {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dispatch: unknown subscription: %w", lcmerr.ErrNotFound)
}

// Deliver matches msg against every registered subscription and enqueues it
// to each match's bounded queue, dropping (and counting) on a full queue.
// Called from the receiver goroutine; never blocks.
func (d *Dispatcher) Deliver(msg Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subs {
		if !sub.matcher.Match(msg.Channel) {
			continue
		}
		select {
		case sub.queue <- msg:
		default:
			sub.mu.Lock()
			sub.dropped++
			sub.mu.Unlock()
		}
	}
}

// Backlogged reports whether any subscription has a message queued right
// now. A caller that reposts its wake-up signal whenever this is true after
// a Drain never strands a message that arrived (or overflowed into a
// newly-freed slot) between Drain's per-subscription passes.
func (d *Dispatcher) Backlogged() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subs {
		if len(sub.queue) > 0 {
			return true
		}
	}
	return false
}

// Drain invokes each subscription's callback for every message in its
// queue until that queue is empty (including messages that arrive while it
// is being drained), in registration order (a subscription's own
// messages are delivered in receive order), synchronously on the caller's
// goroutine. It returns the total number of callbacks invoked across all
// subscriptions. A callback panic is recovered, logged via the supplied
// onPanic hook, and does not stop the drain.
func (d *Dispatcher) Drain(onPanic func(pattern string, recovered any)) int {
	d.mu.RLock()
	subs := make([]*Subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		for drained := false; !drained; {
			select {
			case msg := <-sub.queue:
				delivered++
				invokeSafely(sub, msg, onPanic)
			default:
				drained = true
			}
		}
	}
	return delivered
}

func invokeSafely(sub *Subscription, msg Message, onPanic func(pattern string, recovered any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(sub.pattern, r)
		}
	}()
	sub.cb(&msg)
}
