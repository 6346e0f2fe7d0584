package framing

import (
	"fmt"
	"log/slog"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/internal/session"
)

// FixedLength completes once N bytes are buffered.
type FixedLength struct {
	base
	n int
}

// NewFixedLength returns a fixed-length strategy for n-byte messages.
func NewFixedLength(n int, log *slog.Logger) (*FixedLength, error) {
	if n <= 0 {
		return nil, fmt.Errorf("fixed length %d: %w", n, api.ErrInvalidArgument)
	}
	return &FixedLength{base: base{name: ModeFixed, log: log}, n: n}, nil
}

// Size returns N.
func (f *FixedLength) Size() int { return f.n }

func (f *FixedLength) RefreshOnActivity() bool { return false }

func (f *FixedLength) Expires() bool { return true }

func (f *FixedLength) Complete(s *session.Session) (bool, error) {
	return s.TotalBytes() >= f.n, nil
}
