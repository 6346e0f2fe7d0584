// control/peers.go
// Author: momentics <momentics@gmail.com>
//
// Bounded per-peer traffic table. Least recently seen hosts are evicted.

package control

import (
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PeerStats aggregates outcomes for one remote host.
type PeerStats struct {
	Requests int64 `json:"requests"`
	Timeouts int64 `json:"timeouts"`
	Dropped  int64 `json:"dropped"`
	BytesOut int64 `json:"bytes_out"`
}

// PeerTable records PeerStats per host. Updates are expected from a single
// goroutine; snapshots are safe from any goroutine.
type PeerTable struct {
	cache *lru.Cache[string, PeerStats]
}

// NewPeerTable creates a table holding at most size hosts.
func NewPeerTable(size int) (*PeerTable, error) {
	c, err := lru.New[string, PeerStats](size)
	if err != nil {
		return nil, err
	}
	return &PeerTable{cache: c}, nil
}

// Update applies fn to the stats of remote's host.
func (p *PeerTable) Update(remote string, fn func(*PeerStats)) {
	host := hostOf(remote)
	st, _ := p.cache.Get(host)
	fn(&st)
	p.cache.Add(host, st)
}

// Get returns the stats recorded for remote's host.
func (p *PeerTable) Get(remote string) (PeerStats, bool) {
	return p.cache.Peek(hostOf(remote))
}

// Len returns the number of tracked hosts.
func (p *PeerTable) Len() int { return p.cache.Len() }

// Snapshot copies the table.
func (p *PeerTable) Snapshot() map[string]PeerStats {
	out := make(map[string]PeerStats, p.cache.Len())
	for _, k := range p.cache.Keys() {
		if v, ok := p.cache.Peek(k); ok {
			out[k] = v
		}
	}
	return out
}

func hostOf(remote string) string {
	if h, _, err := net.SplitHostPort(remote); err == nil {
		return h
	}
	return remote
}
