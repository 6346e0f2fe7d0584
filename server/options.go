// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"

	"github.com/momentics/hioload-frame/api"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithProcessor replaces the default byte-counting processor.
func WithProcessor(p api.Processor) ServerOption {
	return func(s *Server) {
		if p != nil {
			s.proc = p
		}
	}
}

// WithHooks installs per-tick callbacks.
func WithHooks(h Hooks) ServerOption {
	return func(s *Server) {
		s.hooks = h
	}
}

// WithBatchSize overrides default reactor batch size.
func WithBatchSize(batch int) ServerOption {
	return func(s *Server) {
		s.cfg.BatchSize = batch
	}
}

// WithExecutorWorkers sets the number of background worker goroutines.
func WithExecutorWorkers(n int) ServerOption {
	return func(s *Server) {
		s.cfg.ExecutorWorkers = n
	}
}

// WithPollCPU pins the poll goroutine's OS thread to cpu. A failed pin is
// logged and the server runs unpinned.
func WithPollCPU(cpu int) ServerOption {
	return func(s *Server) {
		s.pinPoll = true
		s.pollCPU = cpu
	}
}
