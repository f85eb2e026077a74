// Package lcmerr defines the sentinel error kinds shared across lcm-go's
// packages. Callers compare with errors.Is; the concrete error returned from
// any given call site is usually wrapped with fmt.Errorf("...: %w", ...) for
// context.
package lcmerr

import "errors"

var (
	// ErrInvalidArgument covers empty or oversized channel names, malformed
	// URLs, and a non-callable handler. A negative timeout is reported by
	// HandleTimeout as -1, not as this error.
	ErrInvalidArgument = errors.New("lcm: invalid argument")

	// ErrInvalidState covers operations that don't make sense for the
	// current transport, e.g. Publish on a read-only file replay or a
	// receive on a transmit-only multicast socket. Handle and HandleTimeout
	// on a transmit-only udpm instance do not return it; they wait for a
	// message as on any other instance.
	ErrInvalidState = errors.New("lcm: invalid state")

	// ErrBufferTooSmall is returned by the wire codec when a destination
	// buffer can't hold the requested encode, or a source buffer is
	// truncated for the requested decode.
	ErrBufferTooSmall = errors.New("lcm: buffer too small")

	// ErrIO wraps socket and file I/O failures.
	ErrIO = errors.New("lcm: i/o error")

	// ErrNotFound is returned by Unsubscribe for an unknown subscription.
	ErrNotFound = errors.New("lcm: not found")
)
