// File: framing/framing.go
// Package framing
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Framing strategies decide when a session's accumulated bytes form one
// complete message. Exactly one strategy is wired per server process.

package framing

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/internal/session"
)

// Strategy is the capability set shared by every framing variant.
type Strategy interface {
	// Name identifies the wire contract.
	Name() string
	// RefreshOnActivity reports whether each new chunk pushes the deadline forward.
	RefreshOnActivity() bool
	// Expires reports whether the deadline sweep may force-complete a session.
	Expires() bool
	// NewState returns per-session scratch state, or nil.
	NewState() any
	// Complete evaluates the completion predicate over accumulated input.
	// A non-nil error is connection-fatal.
	Complete(s *session.Session) (bool, error)
	// OnTimeout is called when the deadline force-completes s.
	OnTimeout(s *session.Session)
}

// Mode names accepted by Parse.
const (
	ModeFixed     = "fixed"
	ModeLength    = "length"
	ModeDelimiter = "delimiter"
	ModeTimeout   = "timeout"
)

// Defaults taken by Parse when options leave a field zero.
const (
	DefaultFixedLength = 64
	DefaultHeaderWidth = 5
)

// DefaultDelimiter terminates delimiter-framed messages.
var DefaultDelimiter = []byte("\r\n")

// Options parameterize Parse.
type Options struct {
	FixedLength int
	HeaderWidth int
	Delimiter   []byte
	Logger      *slog.Logger
}

// Parse builds the strategy named by mode.
func Parse(mode string, opts Options) (Strategy, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeFixed, "fixed-length", "fixed_length":
		n := opts.FixedLength
		if n == 0 {
			n = DefaultFixedLength
		}
		return NewFixedLength(n, log)
	case ModeLength, "length-prefixed", "variable_length":
		h := opts.HeaderWidth
		if h == 0 {
			h = DefaultHeaderWidth
		}
		return NewLengthPrefixed(h, log)
	case ModeDelimiter, "end", "delimited":
		d := opts.Delimiter
		if len(d) == 0 {
			d = DefaultDelimiter
		}
		return NewDelimited(d, log)
	case ModeTimeout:
		return NewTimeoutOnly(log), nil
	default:
		return nil, fmt.Errorf("framing mode %q: %w", mode, api.ErrInvalidArgument)
	}
}

// base carries the logger and the timeout hook shared by all variants.
type base struct {
	name string
	log  *slog.Logger
}

func (b base) Name() string { return b.name }

func (b base) NewState() any { return nil }

func (b base) OnTimeout(s *session.Session) {
	b.log.Info("session deadline reached",
		"strategy", b.name, "fd", s.Fd(), "remote", s.Remote(), "bytes", s.TotalBytes())
}

// NewSession creates a session configured for st: deadline refresh policy and
// scratch state both come from the strategy.
func NewSession(st Strategy, fd int, remote string, timeout time.Duration, now time.Time) *session.Session {
	s := session.New(fd, remote, timeout, st.RefreshOnActivity(), now)
	s.SetState(st.NewState())
	return s
}

// Ready reports whether s should leave Reading: complete by content, or past
// its deadline when the strategy honours deadlines. The second result is true
// when the deadline, not content, decided.
func Ready(st Strategy, s *session.Session, now time.Time) (ready, byDeadline bool, err error) {
	done, err := st.Complete(s)
	if err != nil || done {
		return done, false, err
	}
	if st.Expires() && s.Expired(now) {
		return true, true, nil
	}
	return false, false, nil
}
