// File: internal/session/deadlines.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"time"

	"github.com/google/btree"
)

type deadlineItem struct {
	at  time.Time
	seq uint64
	s   *Session
}

func deadlineLess(a, b deadlineItem) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.seq < b.seq
}

// DeadlineIndex orders Reading sessions by deadline so a sweep only visits
// the ones that are due. It is not safe for concurrent use; the poll
// goroutine owns it.
type DeadlineIndex struct {
	tree  *btree.BTreeG[deadlineItem]
	items map[*Session]deadlineItem
	seq   uint64
}

// NewDeadlineIndex creates an empty index.
func NewDeadlineIndex() *DeadlineIndex {
	return &DeadlineIndex{
		tree:  btree.NewG[deadlineItem](32, deadlineLess),
		items: make(map[*Session]deadlineItem),
	}
}

// Track inserts s at its current deadline, or moves it there if already tracked.
func (d *DeadlineIndex) Track(s *Session) {
	if old, ok := d.items[s]; ok {
		if old.at.Equal(s.deadline) {
			return
		}
		d.tree.Delete(old)
	}
	d.seq++
	it := deadlineItem{at: s.deadline, seq: d.seq, s: s}
	d.tree.ReplaceOrInsert(it)
	d.items[s] = it
}

// Untrack removes s; unknown sessions are ignored.
func (d *DeadlineIndex) Untrack(s *Session) {
	if it, ok := d.items[s]; ok {
		d.tree.Delete(it)
		delete(d.items, s)
	}
}

// Len returns the number of tracked sessions.
func (d *DeadlineIndex) Len() int { return d.tree.Len() }

// Due returns tracked sessions whose deadline is at or before now, earliest
// first. They stay tracked until the caller untracks them.
func (d *DeadlineIndex) Due(now time.Time) []*Session {
	var out []*Session
	d.tree.Ascend(func(it deadlineItem) bool {
		if it.at.After(now) {
			return false
		}
		out = append(out, it.s)
		return true
	})
	return out
}
