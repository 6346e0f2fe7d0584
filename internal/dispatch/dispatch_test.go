package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/internal/concurrency"
	"github.com/momentics/hioload-frame/internal/dispatch"
	"github.com/momentics/hioload-frame/internal/session"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingWaker struct{ n atomic.Int64 }

func (w *countingWaker) Wake() error {
	w.n.Add(1)
	return nil
}

func setup(t *testing.T, proc api.Processor) (*dispatch.Dispatcher, *concurrency.ReadyQueue[dispatch.Completion], *countingWaker) {
	t.Helper()
	exec := concurrency.NewExecutor(2, quiet)
	t.Cleanup(exec.Close)
	ready := concurrency.NewReadyQueue[dispatch.Completion]()
	waker := &countingWaker{}
	return dispatch.New(exec, ready, proc, waker, quiet), ready, waker
}

func readySession(t *testing.T, payload string) *session.Session {
	t.Helper()
	s := session.New(11, "test", time.Second, false, time.Now())
	require.NoError(t, s.AddChunk([]byte(payload), time.Now()))
	require.True(t, s.Transition(session.Processing))
	return s
}

func TestProcessSetsResponseAndSignals(t *testing.T) {
	d, ready, waker := setup(t, nil)
	s := readySession(t, "Company 1\r\n")

	h := d.Process(context.Background(), s)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	resp, ok := s.Response()
	require.True(t, ok)
	assert.Equal(t, "SUCCESS! PROCESSED 11 BYTES!", string(resp))
	assert.Zero(t, s.TotalBytes(), "request assembled exactly once")
	assert.EqualValues(t, 1, waker.n.Load())

	var got []dispatch.Completion
	ready.Drain(func(c dispatch.Completion) { got = append(got, c) })
	require.Len(t, got, 1)
	assert.Same(t, s, got[0].Session)
	assert.NoError(t, got[0].Err)
}

func TestProcessRunsOffCallerGoroutine(t *testing.T) {
	release := make(chan struct{})
	d, _, _ := setup(t, func(ctx context.Context, req []byte) ([]byte, error) {
		<-release
		return req, nil
	})
	s := readySession(t, "x")

	start := time.Now()
	h := d.Process(context.Background(), s)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, h.Err())
	select {
	case <-h.Done():
		t.Fatal("completed before processor returned")
	default:
	}
	close(release)
	<-h.Done()
}

func TestProcessorErrorIsReported(t *testing.T) {
	boom := errors.New("boom")
	d, ready, _ := setup(t, func(context.Context, []byte) ([]byte, error) { return nil, boom })
	s := readySession(t, "x")
	h := d.Process(context.Background(), s)
	<-h.Done()
	assert.ErrorIs(t, h.Err(), boom)

	_, ok := s.Response()
	assert.False(t, ok)
	ready.Drain(func(c dispatch.Completion) { assert.ErrorIs(t, c.Err, boom) })
}

func TestProcessorPanicIsContained(t *testing.T) {
	d, _, _ := setup(t, func(context.Context, []byte) ([]byte, error) { panic("bad") })
	s := readySession(t, "x")
	h := d.Process(context.Background(), s)
	<-h.Done()
	var apiErr *api.Error
	require.ErrorAs(t, h.Err(), &apiErr)
	assert.Equal(t, api.ErrCodeInternal, apiErr.Code)
}

func TestProcessAfterExecutorClosed(t *testing.T) {
	exec := concurrency.NewExecutor(1, quiet)
	exec.Close()
	ready := concurrency.NewReadyQueue[dispatch.Completion]()
	d := dispatch.New(exec, ready, nil, &countingWaker{}, quiet)
	h := d.Process(context.Background(), readySession(t, "x"))
	<-h.Done()
	assert.ErrorIs(t, h.Err(), api.ErrExecutorClosed)
	assert.Equal(t, 1, ready.Len())
}
