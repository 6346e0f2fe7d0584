// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/control"
	"github.com/momentics/hioload-frame/framing"
	"github.com/momentics/hioload-frame/internal/concurrency"
	"github.com/momentics/hioload-frame/internal/dispatch"
	"github.com/momentics/hioload-frame/internal/session"
	"github.com/momentics/hioload-frame/internal/transport"
	"github.com/momentics/hioload-frame/reactor"
)

var ErrAlreadyRunning = errors.New("server already running")

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string        // TCP bind address, e.g. "localhost:5542"
	Deadline        time.Duration // per-session read deadline
	ReadChunkSize   int           // max bytes consumed per read event
	PollInterval    time.Duration // upper bound on one readiness wait
	ExecutorWorkers int           // processing goroutines
	BatchSize       int           // readiness events handled per tick
	Backlog         int           // listen backlog
	RegistryShards  int           // session registry shards
	PeerTableSize   int           // remote hosts tracked in Stats
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "localhost:5542",
		Deadline:        5 * time.Second,
		ReadChunkSize:   5,
		PollInterval:    50 * time.Millisecond,
		ExecutorWorkers: 4,
		BatchSize:       128,
		Backlog:         transport.DefaultBacklog,
		RegistryShards:  16,
		PeerTableSize:   256,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.Deadline <= 0 {
		c.Deadline = d.Deadline
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = d.ReadChunkSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ExecutorWorkers <= 0 {
		c.ExecutorWorkers = d.ExecutorWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Backlog <= 0 {
		c.Backlog = d.Backlog
	}
	if c.RegistryShards <= 0 {
		c.RegistryShards = d.RegistryShards
	}
	if c.PeerTableSize <= 0 {
		c.PeerTableSize = d.PeerTableSize
	}
}

// Hooks are optional callbacks run on the poll goroutine at fixed points of
// every tick. Nil hooks are skipped.
type Hooks struct {
	Before    func() // after the deadline sweep, before waiting
	Between   func() // after a wait that produced events
	BeginLoop func() // before each event is handled
	After     func() // after all events of the tick are handled
}

// Server is the reactor: one poll goroutine multiplexing every connection,
// plus an executor for message processing.
type Server struct {
	cfg      *Config
	strategy framing.Strategy
	log      *slog.Logger
	proc     api.Processor
	hooks    Hooks
	pinPoll  bool
	pollCPU  int

	listener  transport.Listener
	poller    reactor.Poller
	exec      *concurrency.Executor
	ready     *concurrency.ReadyQueue[dispatch.Completion]
	dispatch  *dispatch.Dispatcher
	registry  *session.Registry
	deadlines *session.DeadlineIndex

	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	peers   *control.PeerTable

	mu       sync.Mutex
	started  bool
	stopping bool
	closeCh  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	downOnce sync.Once
}
