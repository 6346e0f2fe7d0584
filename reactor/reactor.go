// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness multiplexer interface for the frame server.

package reactor

import "time"

// Interest is the set of readiness kinds a descriptor is armed for.
type Interest uint8

const (
	// Readable arms the descriptor for inbound data or pending accepts.
	Readable Interest = 1 << iota
	// Writable arms the descriptor for outbound space.
	Writable
)

// Event contains readiness information returned by Wait.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Hangup   bool // peer closed or half-closed
	Error    bool
}

// Poller multiplexes readiness across many descriptors. Every method except
// Wake must be called from the single poll goroutine.
type Poller interface {
	// Arm registers fd for interest, replacing any previous interest.
	Arm(fd int, interest Interest) error
	// Suspend removes fd from the interest set; it becomes invisible to Wait
	// until armed again.
	Suspend(fd int) error
	// Forget drops all bookkeeping for fd before it is closed.
	Forget(fd int)
	// Wait blocks for at most timeout and fills events. Wake-ups are
	// consumed internally and reported through the woken result.
	Wait(timeout time.Duration, events []Event) (n int, woken bool, err error)
	// Wake interrupts a blocked Wait. Safe from any goroutine.
	Wake() error
	// Close releases the multiplexer.
	Close() error
}
