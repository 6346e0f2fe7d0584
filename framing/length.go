// File: framing/length.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/internal/session"
)

// LengthPrefixed reads a fixed-width ASCII decimal header giving the body
// length. The header is parsed once per session and cached.
type LengthPrefixed struct {
	base
	width int
	// NoDeadline exempts sessions from the deadline sweep.
	NoDeadline bool
}

// MaxHeaderWidth is the widest header whose value always fits in an int:
// 18 digits on 64-bit platforms, 9 on 32-bit ones.
const MaxHeaderWidth = strconv.IntSize / 32 * 9

type prefixState struct {
	parsed  bool
	bodyLen int
}

// NewLengthPrefixed returns a strategy for headers of width digits.
func NewLengthPrefixed(width int, log *slog.Logger) (*LengthPrefixed, error) {
	if width <= 0 || width > MaxHeaderWidth {
		return nil, fmt.Errorf("header width %d: %w", width, api.ErrInvalidArgument)
	}
	return &LengthPrefixed{base: base{name: ModeLength, log: log}, width: width}, nil
}

// HeaderWidth returns H.
func (l *LengthPrefixed) HeaderWidth() int { return l.width }

func (l *LengthPrefixed) RefreshOnActivity() bool { return false }

func (l *LengthPrefixed) Expires() bool { return !l.NoDeadline }

func (l *LengthPrefixed) NewState() any { return &prefixState{} }

func (l *LengthPrefixed) Complete(s *session.Session) (bool, error) {
	if s.TotalBytes() < l.width {
		return false, nil
	}
	st, ok := s.State().(*prefixState)
	if !ok {
		st = &prefixState{}
		s.SetState(st)
	}
	if !st.parsed {
		n, err := parseHeader(s.Peek(l.width))
		if err != nil {
			return false, err
		}
		st.bodyLen = n
		st.parsed = true
	}
	return s.TotalBytes()-l.width >= st.bodyLen, nil
}

// BodyLength returns the cached header value for s, if parsed.
func (l *LengthPrefixed) BodyLength(s *session.Session) (int, bool) {
	st, ok := s.State().(*prefixState)
	if !ok || !st.parsed {
		return 0, false
	}
	return st.bodyLen, true
}

const maxInt = int(^uint(0) >> 1)

func parseHeader(h []byte) (int, error) {
	n := 0
	for i, c := range h {
		if c < '0' || c > '9' {
			return 0, malformedHeader(h, i)
		}
		d := int(c - '0')
		if n > (maxInt-d)/10 {
			return 0, malformedHeader(h, i)
		}
		n = n*10 + d
	}
	return n, nil
}

func malformedHeader(h []byte, offset int) error {
	return api.Wrap(api.ErrCodeMalformedInput, api.ErrMalformedHeader, "length header").
		WithContext("header", string(h)).
		WithContext("offset", offset)
}
