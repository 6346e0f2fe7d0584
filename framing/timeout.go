package framing

import (
	"log/slog"

	"github.com/momentics/hioload-frame/internal/session"
)

// TimeoutOnly never completes by content; the deadline sweep finishes every
// session. Each chunk refreshes the deadline, so a client that keeps sending
// keeps the request open.
type TimeoutOnly struct {
	base
}

// NewTimeoutOnly returns the content-agnostic strategy.
func NewTimeoutOnly(log *slog.Logger) *TimeoutOnly {
	return &TimeoutOnly{base: base{name: ModeTimeout, log: log}}
}

func (t *TimeoutOnly) RefreshOnActivity() bool { return true }

func (t *TimeoutOnly) Expires() bool { return true }

func (t *TimeoutOnly) Complete(*session.Session) (bool, error) { return false, nil }
