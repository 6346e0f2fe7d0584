// File: server/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The poll goroutine. Everything here runs on one goroutine; workers only
// reach it through the ready queue and a poller wake.

package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/control"
	"github.com/momentics/hioload-frame/framing"
	"github.com/momentics/hioload-frame/internal/dispatch"
	"github.com/momentics/hioload-frame/internal/session"
	"github.com/momentics/hioload-frame/internal/transport"
	"github.com/momentics/hioload-frame/reactor"
)

func (s *Server) tick(ctx context.Context, events []reactor.Event) error {
	s.drainReady()

	s.sweep(ctx, time.Now())
	call(s.hooks.Before)

	n, _, err := s.poller.Wait(s.cfg.PollInterval, events)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil
	}

	call(s.hooks.Between)
	for i := 0; i < n; i++ {
		call(s.hooks.BeginLoop)
		s.handle(ctx, events[i])
	}
	call(s.hooks.After)
	return nil
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// handle runs exactly one handler for ev. A failure is confined to the
// connection it belongs to.
func (s *Server) handle(ctx context.Context, ev reactor.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Inc(control.MetricHandlerErrors)
			s.log.Error("event handler panic", "fd", ev.Fd, "panic", r)
			if sess, ok := s.registry.Get(ev.Fd); ok {
				s.invalidate(sess, fmt.Errorf("handler panic: %v", r))
			}
		}
	}()

	if ev.Fd == s.listener.Fd() {
		s.accept()
		return
	}

	sess, ok := s.registry.Get(ev.Fd)
	if !ok {
		// Descriptor no longer tracked; stop watching it.
		s.poller.Forget(ev.Fd)
		return
	}

	var err error
	switch st := sess.Status(); {
	case st == session.Reading && (ev.Readable || ev.Hangup || ev.Error):
		err = s.read(ctx, sess)
	case st != session.Reading && (ev.Writable || ev.Hangup):
		err = s.write(sess)
	case ev.Error:
		err = api.Wrap(api.ErrCodeIO, api.ErrPeerClosed, "socket error").WithContext("fd", ev.Fd)
		s.invalidate(sess, err)
	}
	if err != nil && !errors.Is(err, api.ErrPeerClosed) {
		s.metrics.Inc(control.MetricHandlerErrors)
		s.log.Warn("connection dropped", "fd", ev.Fd, "remote", sess.Remote(), "err", err)
	}
}

func (s *Server) accept() {
	fd, remote, ok, err := s.listener.Accept()
	if err != nil {
		s.metrics.Inc(control.MetricHandlerErrors)
		s.log.Warn("accept failed", "err", err)
		return
	}
	if !ok {
		return
	}
	sess := framing.NewSession(s.strategy, fd, remote, s.cfg.Deadline, time.Now())
	s.registry.Add(sess)
	if s.strategy.Expires() {
		s.deadlines.Track(sess)
	}
	if err := s.poller.Arm(fd, reactor.Readable); err != nil {
		s.log.Warn("register connection failed", "fd", fd, "err", err)
		s.invalidate(sess, err)
		return
	}
	s.metrics.Inc(control.MetricAccepted)
	s.log.Debug("connection accepted", "fd", fd, "remote", remote)
}

func (s *Server) read(ctx context.Context, sess *session.Session) error {
	buf := make([]byte, s.cfg.ReadChunkSize)
	n, ok, err := transport.Read(sess.Fd(), buf)
	if err != nil {
		s.invalidate(sess, err)
		return err
	}
	if !ok {
		return nil
	}
	s.metrics.Add(control.MetricBytesIn, int64(n))

	now := time.Now()
	if err := sess.AddChunk(buf[:n], now); err != nil {
		s.invalidate(sess, err)
		return err
	}
	if s.strategy.RefreshOnActivity() && s.strategy.Expires() {
		s.deadlines.Track(sess)
	}
	ready, byDeadline, err := framing.Ready(s.strategy, sess, now)
	if err != nil {
		s.invalidate(sess, err)
		return err
	}
	if !ready {
		return nil
	}
	to := session.Processing
	if byDeadline {
		to = session.TimedOut
		s.timedOut(sess)
	}
	s.beginProcessing(ctx, sess, to)
	return nil
}

func (s *Server) write(sess *session.Session) error {
	if _, ok := sess.Response(); !ok {
		// Armed writable only after a completion; nothing to flush yet.
		return nil
	}
	// A peer that left while the request was processed gets no response.
	closed, err := transport.PeerClosed(sess.Fd())
	if err == nil && closed {
		err = api.ErrPeerClosed
	}
	if err != nil {
		s.invalidate(sess, err)
		return err
	}
	n, err := transport.Write(sess.Fd(), sess.Pending())
	if err != nil {
		s.invalidate(sess, err)
		return err
	}
	s.metrics.Add(control.MetricBytesOut, int64(n))
	if !sess.Advance(n) {
		return nil
	}
	s.metrics.Inc(control.MetricCompleted)
	s.peers.Update(sess.Remote(), func(p *control.PeerStats) {
		p.Requests++
		p.BytesOut += int64(sess.Written())
	})
	s.log.Debug("response flushed", "fd", sess.Fd(), "remote", sess.Remote(), "bytes", sess.Written())
	s.release(sess, transport.Shutdown)
	return nil
}

// sweep force-completes Reading sessions whose deadline has been reached.
func (s *Server) sweep(ctx context.Context, now time.Time) {
	if !s.strategy.Expires() {
		return
	}
	due := s.deadlines.Due(now)
	if len(due) == 0 {
		return
	}
	s.registry.SweepSessions(due, func(sess *session.Session) {
		if sess.Status() != session.Reading || !sess.Expired(now) {
			return
		}
		s.timedOut(sess)
		s.beginProcessing(ctx, sess, session.TimedOut)
	})
}

func (s *Server) timedOut(sess *session.Session) {
	s.strategy.OnTimeout(sess)
	s.metrics.Inc(control.MetricTimeouts)
	s.peers.Update(sess.Remote(), func(p *control.PeerStats) { p.Timeouts++ })
}

// beginProcessing moves sess out of Reading, stops polling it and hands it
// to the executor. Losing the transition race is a no-op.
func (s *Server) beginProcessing(ctx context.Context, sess *session.Session, to session.Status) {
	if !sess.Transition(to) {
		return
	}
	s.deadlines.Untrack(sess)
	if err := s.poller.Suspend(sess.Fd()); err != nil {
		s.invalidate(sess, err)
		return
	}
	s.dispatch.Process(ctx, sess)
}

// drainReady re-arms completed sessions for writing. Completions for
// connections that were torn down meanwhile are dropped.
func (s *Server) drainReady() {
	s.ready.Drain(func(c dispatch.Completion) {
		sess := c.Session
		if !s.registry.Contains(sess) {
			s.log.Debug("completion for closed connection dropped", "fd", sess.Fd())
			return
		}
		if c.Err != nil {
			s.metrics.Inc(control.MetricHandlerErrors)
			s.log.Warn("processing failed", "fd", sess.Fd(), "remote", sess.Remote(), "err", c.Err)
			s.invalidate(sess, c.Err)
			return
		}
		if err := s.poller.Arm(sess.Fd(), reactor.Writable); err != nil {
			s.invalidate(sess, err)
		}
	})
}

// invalidate drops a connection that failed or disconnected.
func (s *Server) invalidate(sess *session.Session, cause error) {
	if s.release(sess, transport.Close) {
		s.metrics.Inc(control.MetricInvalidated)
		s.peers.Update(sess.Remote(), func(p *control.PeerStats) { p.Dropped++ })
		s.log.Debug("connection invalidated", "fd", sess.Fd(), "remote", sess.Remote(), "cause", cause)
	}
}

// release unregisters sess and closes its descriptor with closeFd. It reports
// false when sess had already been released.
func (s *Server) release(sess *session.Session, closeFd func(int) error) bool {
	if !s.registry.Remove(sess.Fd(), sess) {
		return false
	}
	s.deadlines.Untrack(sess)
	s.poller.Forget(sess.Fd())
	if err := closeFd(sess.Fd()); err != nil {
		s.log.Debug("close connection", "fd", sess.Fd(), "err", err)
	}
	return true
}
