// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server lifecycle: construction wires listener, poller, executor and the
// completion path; Run drives the poll goroutine until cancelled.

package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/momentics/hioload-frame/affinity"
	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/control"
	"github.com/momentics/hioload-frame/framing"
	"github.com/momentics/hioload-frame/internal/concurrency"
	"github.com/momentics/hioload-frame/internal/dispatch"
	"github.com/momentics/hioload-frame/internal/session"
	"github.com/momentics/hioload-frame/internal/transport"
	"github.com/momentics/hioload-frame/reactor"
)

// New binds the listening socket and prepares the reactor. The caller's cfg
// is copied; options apply on top of it.
func New(cfg *Config, strategy framing.Strategy, opts ...ServerOption) (*Server, error) {
	if strategy == nil {
		return nil, api.Wrap(api.ErrCodeInvalidArgument, api.ErrInvalidArgument, "framing strategy is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg

	s := &Server{
		cfg:      &c,
		strategy: strategy,
		log:      slog.Default(),
		proc:     api.CountingProcessor,
		metrics:  control.NewMetricsRegistry(),
		probes:   control.NewDebugProbes(),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.cfg.normalize()

	peers, err := control.NewPeerTable(s.cfg.PeerTableSize)
	if err != nil {
		return nil, fmt.Errorf("peer table: %w", err)
	}
	s.peers = peers

	ln, err := transport.Listen(s.cfg.ListenAddr, s.cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	poller, err := reactor.NewPoller()
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("create poller: %w", err)
	}
	if err := poller.Arm(ln.Fd(), reactor.Readable); err != nil {
		poller.Close()
		ln.Close()
		return nil, fmt.Errorf("register listener: %w", err)
	}

	s.listener = ln
	s.poller = poller
	s.registry = session.NewRegistry(s.cfg.RegistryShards)
	s.deadlines = session.NewDeadlineIndex()
	s.exec = concurrency.NewExecutor(s.cfg.ExecutorWorkers, s.log)
	s.ready = concurrency.NewReadyQueue[dispatch.Completion]()
	s.dispatch = dispatch.New(s.exec, s.ready, s.proc, poller, s.log)

	s.probes.RegisterProbe("connections", func() any { return s.registry.Len() })
	s.probes.RegisterProbe("ready_pending", func() any { return s.ready.Len() })
	s.probes.RegisterProbe("peers", func() any { return s.peers.Snapshot() })
	s.probes.RegisterProbe("executor", func() any { return s.exec.Stats() })
	control.RegisterPlatformProbes(s.probes)

	s.log.Info("server listening",
		"addr", ln.Addr(), "strategy", strategy.Name(),
		"deadline", s.cfg.Deadline, "chunk", s.cfg.ReadChunkSize, "workers", s.cfg.ExecutorWorkers)
	return s, nil
}

// Addr returns the bound listen address, useful when ListenAddr used port 0.
func (s *Server) Addr() string { return s.listener.Addr() }

// Strategy returns the framing strategy in use.
func (s *Server) Strategy() framing.Strategy { return s.strategy }

// Stats returns counters merged with live probes.
func (s *Server) Stats() map[string]any {
	return control.Stats(s.metrics, s.probes)
}

// Run drives the poll loop and blocks until it stops. It returns nil after ctx
// is cancelled or Close is called, and a non-nil error if the poller fails.
// Resources are released before Run returns.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopping {
		s.mu.Unlock()
		if s.stopping {
			return api.ErrClosed
		}
		return ErrAlreadyRunning
	}
	s.started = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.shutdown()
		close(s.done)
	}()

	// Unblock a pending Wait when the caller's context ends.
	stop := context.AfterFunc(ctx, func() { _ = s.poller.Wake() })
	defer stop()

	if !s.pinPoll {
		return s.loop(ctx)
	}
	errCh := make(chan error, 1)
	go func() {
		if err := affinity.PinGoroutine(s.pollCPU); err != nil {
			s.log.Warn("poll goroutine not pinned", "cpu", s.pollCPU, "err", err)
		}
		errCh <- s.loop(ctx)
	}()
	return <-errCh
}

func (s *Server) loop(ctx context.Context) error {
	events := make([]reactor.Event, s.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closeCh:
			return nil
		default:
		}
		if err := s.tick(ctx, events); err != nil {
			return err
		}
	}
}

// Close stops the server. When Run is active Close waits for it to return.
func (s *Server) Close() error {
	s.mu.Lock()
	started := s.started
	s.stopping = true
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		close(s.closeCh)
		_ = s.poller.Wake()
	})
	if started {
		<-s.done
		return nil
	}
	s.shutdown()
	return nil
}

// shutdown drains in-flight processing, then closes every descriptor.
func (s *Server) shutdown() {
	s.downOnce.Do(func() {
		s.exec.Close()
		s.registry.Range(func(sess *session.Session) {
			s.release(sess, transport.Close)
		})
		if err := s.listener.Close(); err != nil {
			s.log.Warn("close listener", "err", err)
		}
		if err := s.poller.Close(); err != nil {
			s.log.Warn("close poller", "err", err)
		}
		s.log.Info("server stopped", "stats", s.metrics.GetSnapshot())
	})
}
