// File: internal/dispatch/dispatch.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Processing dispatch: hands a completed session to the worker pool and routes
// the completion back to the poll goroutine through a ready queue.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/internal/concurrency"
	"github.com/momentics/hioload-frame/internal/session"
)

// Waker interrupts the poll goroutine's blocking wait.
type Waker interface {
	Wake() error
}

// Completion is a finished unit of work waiting for the poll goroutine.
// Err non-nil means the connection must be torn down instead of written.
type Completion struct {
	Session *session.Session
	Err     error
}

// Handle is completed once the session's response is set or processing failed.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed on completion.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the processing error; valid after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until completion or ctx expiry.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatcher submits sessions to an executor.
type Dispatcher struct {
	exec  *concurrency.Executor
	ready *concurrency.ReadyQueue[Completion]
	proc  api.Processor
	waker Waker
	log   *slog.Logger
}

// New wires a dispatcher. proc defaults to api.CountingProcessor.
func New(exec *concurrency.Executor, ready *concurrency.ReadyQueue[Completion], proc api.Processor, waker Waker, log *slog.Logger) *Dispatcher {
	if proc == nil {
		proc = api.CountingProcessor
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{exec: exec, ready: ready, proc: proc, waker: waker, log: log}
}

// Process assembles s's request and runs the processor off the calling
// goroutine. It must be called from the poll goroutine once s has left Reading.
func (d *Dispatcher) Process(ctx context.Context, s *session.Session) *Handle {
	h := &Handle{done: make(chan struct{})}
	request := s.Assemble()
	err := d.exec.Submit(func() {
		d.complete(s, h, d.run(ctx, s, request))
	})
	if err != nil {
		d.complete(s, h, fmt.Errorf("submit fd=%d: %w", s.Fd(), err))
	}
	return h
}

func (d *Dispatcher) run(ctx context.Context, s *session.Session, request []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = api.NewError(api.ErrCodeInternal, fmt.Sprintf("processor panic: %v", r)).WithContext("fd", s.Fd())
		}
	}()
	resp, err := d.proc(ctx, request)
	if err != nil {
		return err
	}
	return s.SetResponse(resp)
}

func (d *Dispatcher) complete(s *session.Session, h *Handle, err error) {
	h.err = err
	d.ready.Push(Completion{Session: s, Err: err})
	if werr := d.waker.Wake(); werr != nil {
		d.log.Warn("wake poller failed", "fd", s.Fd(), "err", werr)
	}
	close(h.done)
}
