// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe connection registry: the single source of truth for
// which connections are live.

package session

import (
	"sync"
)

// Registry maps a live connection descriptor to its Session.
type Registry struct {
	shards  []*registryShard
	mask    uint32
	sweepMu sync.Mutex
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[int]*Session
}

// NewRegistry constructs a registry with shardCount shards.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	// power-of-two shards for bitmasking
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard, m)
	for i := range shards {
		shards[i] = &registryShard{sessions: make(map[int]*Session)}
	}
	return &Registry{shards: shards, mask: m - 1}
}

func (r *Registry) shard(fd int) *registryShard {
	return r.shards[uint32(fd)&r.mask]
}

// Add registers s under its descriptor, replacing any stale entry.
func (r *Registry) Add(s *Session) {
	sh := r.shard(s.fd)
	sh.mu.Lock()
	sh.sessions[s.fd] = s
	sh.mu.Unlock()
}

// Get fetches the session registered for fd.
func (r *Registry) Get(fd int) (*Session, bool) {
	sh := r.shard(fd)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[fd]
	return s, ok
}

// Contains reports whether s is still the registered session for its descriptor.
func (r *Registry) Contains(s *Session) bool {
	cur, ok := r.Get(s.fd)
	return ok && cur == s
}

// Remove deletes the entry for fd only if it still points at s. Descriptors
// are recycled by the kernel, so a stale teardown must not evict a newer session.
func (r *Registry) Remove(fd int, s *Session) bool {
	sh := r.shard(fd)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.sessions[fd]
	if !ok || (s != nil && cur != s) {
		return false
	}
	delete(sh.sessions, fd)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Range applies fn to a snapshot of all sessions.
func (r *Registry) Range(fn func(*Session)) {
	for _, s := range r.snapshot() {
		fn(s)
	}
}

// SweepSessions runs fn over candidates, typically the output of a
// DeadlineIndex, inside one critical section so a session cannot be moved
// out of Reading by a concurrent sweep. Candidates no longer registered are
// skipped. fn may remove entries.
func (r *Registry) SweepSessions(candidates []*Session, fn func(*Session)) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()
	for _, s := range candidates {
		if r.Contains(s) {
			fn(s)
		}
	}
}

func (r *Registry) snapshot() []*Session {
	var out []*Session
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
