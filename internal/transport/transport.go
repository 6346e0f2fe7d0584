// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent listener contract.

package transport

// Listener is a bound, non-blocking listening socket.
type Listener interface {
	// Fd returns the listening descriptor for reactor registration.
	Fd() int
	// Accept takes one pending connection. ok is false when none is pending.
	Accept() (fd int, remote string, ok bool, err error)
	// Addr returns the bound "host:port".
	Addr() string
	Close() error
}

// DefaultBacklog is the listen(2) queue length.
const DefaultBacklog = 128
