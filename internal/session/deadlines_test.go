package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-frame/internal/session"
)

func TestDeadlineIndexDueInOrder(t *testing.T) {
	base := time.Unix(1000, 0)
	idx := session.NewDeadlineIndex()
	late := session.New(1, "late", 3*time.Second, false, base)
	early := session.New(2, "early", time.Second, false, base)
	tie := session.New(3, "tie", time.Second, false, base)
	idx.Track(late)
	idx.Track(early)
	idx.Track(tie)
	assert.Equal(t, 3, idx.Len())

	assert.Empty(t, idx.Due(base))
	assert.Equal(t, []*session.Session{early, tie}, idx.Due(base.Add(time.Second)))
	assert.Len(t, idx.Due(base.Add(time.Hour)), 3)

	idx.Untrack(early)
	idx.Untrack(early)
	assert.Equal(t, []*session.Session{tie}, idx.Due(base.Add(2*time.Second)))
}

func TestDeadlineIndexFollowsRefresh(t *testing.T) {
	base := time.Unix(1000, 0)
	idx := session.NewDeadlineIndex()
	s := session.New(1, "idle", time.Second, true, base)
	idx.Track(s)

	assert.NoError(t, s.AddChunk([]byte("x"), base.Add(900*time.Millisecond)))
	idx.Track(s)
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Due(base.Add(time.Second)))
	assert.Equal(t, []*session.Session{s}, idx.Due(base.Add(1900*time.Millisecond)))
}
