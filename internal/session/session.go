// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection session: accumulated request chunks, status, deadline and response.

package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-frame/api"
)

// Status is the lifecycle state of a session.
type Status int32

const (
	// Reading accumulates inbound chunks.
	Reading Status = iota
	// Processing means the request was complete by content and is off the poll goroutine.
	Processing
	// TimedOut means the deadline force-completed the request.
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Reading:
		return "reading"
	case Processing:
		return "processing"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Session holds per-connection state. Chunk accumulation and deadline
// bookkeeping are touched only by the poll goroutine; status and response
// are shared with worker goroutines.
type Session struct {
	fd      int
	remote  string
	timeout time.Duration
	refresh bool

	accumulated [][]byte
	totalBytes  int
	deadline    time.Time
	state       any

	status atomic.Int32

	mu       sync.Mutex
	response []byte
	hasResp  bool
	written  int
}

// New creates a session whose deadline is now+timeout. With refresh set, every
// accepted chunk pushes the deadline forward.
func New(fd int, remote string, timeout time.Duration, refresh bool, now time.Time) *Session {
	return &Session{
		fd:       fd,
		remote:   remote,
		timeout:  timeout,
		refresh:  refresh,
		deadline: now.Add(timeout),
	}
}

// Fd returns the connection descriptor.
func (s *Session) Fd() int { return s.fd }

// Remote returns the peer address.
func (s *Session) Remote() string { return s.remote }

// AddChunk appends an immutable view of chunk.
func (s *Session) AddChunk(chunk []byte, now time.Time) error {
	if len(chunk) == 0 {
		return api.ErrEmptyChunk
	}
	if s.refresh {
		s.deadline = now.Add(s.timeout)
	}
	s.accumulated = append(s.accumulated, chunk[:len(chunk):len(chunk)])
	s.totalBytes += len(chunk)
	return nil
}

// TotalBytes returns the number of accumulated, not yet assembled bytes.
func (s *Session) TotalBytes() int { return s.totalBytes }

// Chunks returns the number of accumulated chunks.
func (s *Session) Chunks() int { return len(s.accumulated) }

// Assemble concatenates all chunks in arrival order and resets the accumulator.
func (s *Session) Assemble() []byte {
	out := make([]byte, 0, s.totalBytes)
	for _, c := range s.accumulated {
		out = append(out, c...)
	}
	s.accumulated = nil
	s.totalBytes = 0
	return out
}

// Peek copies up to n leading bytes without consuming them.
func (s *Session) Peek(n int) []byte {
	if n > s.totalBytes {
		n = s.totalBytes
	}
	out := make([]byte, 0, n)
	for _, c := range s.accumulated {
		if len(out) == n {
			break
		}
		need := n - len(out)
		if len(c) > need {
			c = c[:need]
		}
		out = append(out, c...)
	}
	return out
}

// Tail collects the last n accumulated bytes walking backwards across chunk
// boundaries. It reports false when fewer than n bytes are buffered.
func (s *Session) Tail(n int) ([]byte, bool) {
	if n <= 0 || n > s.totalBytes {
		return nil, false
	}
	out := make([]byte, n)
	pos := n
	for i := len(s.accumulated) - 1; i >= 0 && pos > 0; i-- {
		c := s.accumulated[i]
		for j := len(c) - 1; j >= 0 && pos > 0; j-- {
			pos--
			out[pos] = c[j]
		}
	}
	return out, pos == 0
}

// Deadline returns the absolute deadline.
func (s *Session) Deadline() time.Time { return s.deadline }

// Expired reports whether the deadline was reached: elapsed >= timeout.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.deadline)
}

// State returns the framing strategy's private scratch value.
func (s *Session) State() any { return s.state }

// SetState installs the framing strategy's scratch value.
func (s *Session) SetState(v any) { s.state = v }

// Status returns the current status.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Transition moves the session out of Reading. Only the first caller wins.
func (s *Session) Transition(to Status) bool {
	if to == Reading {
		return false
	}
	return s.status.CompareAndSwap(int32(Reading), int32(to))
}

// SetResponse stores the processed response; it can be set once.
func (s *Session) SetResponse(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasResp {
		return api.ErrResponseSet
	}
	s.response = b
	s.hasResp = true
	return nil
}

// Response returns the response and whether it was set.
func (s *Session) Response() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response, s.hasResp
}

// Pending returns the unflushed tail of the response.
func (s *Session) Pending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response[s.written:]
}

// Advance records n more flushed response bytes and reports whether the
// whole response has been written.
func (s *Session) Advance(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += n
	return s.written >= len(s.response)
}

// Written returns the number of flushed response bytes.
func (s *Session) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *Session) String() string {
	return fmt.Sprintf("Session{fd=%d remote=%s status=%s totalBytes=%d chunks=%d deadline=%s}",
		s.fd, s.remote, s.Status(), s.totalBytes, len(s.accumulated), s.deadline.Format(time.RFC3339Nano))
}
