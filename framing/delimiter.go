// File: framing/delimiter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/internal/session"
)

// Delimited completes when the accumulated input ends with the delimiter.
// Only a match anchored at the very end counts; the delimiter may straddle
// chunk boundaries.
type Delimited struct {
	base
	delim []byte
}

// NewDelimited returns a strategy terminated by delim.
func NewDelimited(delim []byte, log *slog.Logger) (*Delimited, error) {
	if len(delim) == 0 {
		return nil, fmt.Errorf("empty delimiter: %w", api.ErrInvalidArgument)
	}
	d := make([]byte, len(delim))
	copy(d, delim)
	return &Delimited{base: base{name: ModeDelimiter, log: log}, delim: d}, nil
}

// Delimiter returns a copy of the terminator.
func (d *Delimited) Delimiter() []byte { return append([]byte(nil), d.delim...) }

func (d *Delimited) RefreshOnActivity() bool { return false }

func (d *Delimited) Expires() bool { return true }

func (d *Delimited) Complete(s *session.Session) (bool, error) {
	tail, ok := s.Tail(len(d.delim))
	if !ok {
		return false, nil
	}
	return bytes.Equal(tail, d.delim), nil
}
