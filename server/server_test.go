//go:build linux

package server_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/control"
	"github.com/momentics/hioload-frame/framing"
	"github.com/momentics/hioload-frame/server"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func strategy(t *testing.T, mode string) framing.Strategy {
	t.Helper()
	st, err := framing.Parse(mode, framing.Options{Logger: quiet})
	require.NoError(t, err)
	return st
}

func testConfig(deadline time.Duration) *server.Config {
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Deadline = deadline
	return cfg
}

// start runs srv in the background and stops it when the test ends.
func start(t *testing.T, cfg *server.Config, st framing.Strategy, opts ...server.ServerOption) *server.Server {
	t.Helper()
	srv, err := server.New(cfg, st, append([]server.ServerOption{server.WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

// exchange sends pieces with a pause between them and returns everything the
// server writes before closing the connection.
func exchange(t *testing.T, addr string, gap time.Duration, pieces ...[]byte) (string, error) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	for _, p := range pieces {
		if _, err := conn.Write(p); err != nil {
			return "", err
		}
		if gap > 0 {
			time.Sleep(gap)
		}
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	resp, err := io.ReadAll(conn)
	return string(resp), err
}

func split(b []byte, n int) [][]byte {
	var out [][]byte
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	return append(out, b)
}

func TestFixedLengthRoundTrip(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeFixed))
	msg := bytes.Repeat([]byte("1"), framing.DefaultFixedLength)

	resp, err := exchange(t, srv.Addr(), time.Millisecond, split(msg, 7)...)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS! PROCESSED 64 BYTES!", resp)
}

func TestLengthPrefixedRoundTrip(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeLength))
	msg := append([]byte("10000"), bytes.Repeat([]byte("1"), 10000)...)

	resp, err := exchange(t, srv.Addr(), 0, split(msg, 1024)...)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS! PROCESSED 10005 BYTES!", resp)

	stats := srv.Stats()
	assert.EqualValues(t, 10005, stats["bytes_in"])
}

func TestDelimiterRoundTrip(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter))
	resp, err := exchange(t, srv.Addr(), 0, []byte("Company 1\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS! PROCESSED 11 BYTES!", resp)
}

func TestTimeoutModeAnswersAfterSilence(t *testing.T) {
	const deadline = 200 * time.Millisecond
	srv := start(t, testConfig(deadline), strategy(t, framing.ModeTimeout))

	began := time.Now()
	resp, err := exchange(t, srv.Addr(), 0, []byte("hello "), []byte("world"))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS! PROCESSED 11 BYTES!", resp)
	assert.GreaterOrEqual(t, time.Since(began), deadline)
	assert.EqualValues(t, 1, srv.Stats()["timeouts"])
}

func TestTimeoutModeIgnoresInputAfterDeadline(t *testing.T) {
	const deadline = 100 * time.Millisecond
	slow := func(ctx context.Context, req []byte) ([]byte, error) {
		time.Sleep(300 * time.Millisecond)
		return api.CountingProcessor(ctx, req)
	}
	srv := start(t, testConfig(deadline), strategy(t, framing.ModeTimeout), server.WithProcessor(slow))

	// the second piece lands after the sweep handed the request to a worker
	resp, err := exchange(t, srv.Addr(), 2*deadline, []byte("hello"), bytes.Repeat([]byte("late"), 10))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS! PROCESSED 5 BYTES!", resp)
	assert.EqualValues(t, 1, srv.Stats()["timeouts"])
}

func TestDeadlineForcesIncompleteFixedMessage(t *testing.T) {
	srv := start(t, testConfig(150*time.Millisecond), strategy(t, framing.ModeFixed))
	resp, err := exchange(t, srv.Addr(), 0, []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS! PROCESSED 10 BYTES!", resp)
}

func TestMalformedHeaderClosesConnection(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeLength))
	resp, _ := exchange(t, srv.Addr(), 0, []byte("12a45body"))
	assert.Empty(t, resp)
	require.Eventually(t, func() bool {
		return srv.Stats()["invalidated"] == int64(1)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConcurrentClientsAreIsolated(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter))

	var g errgroup.Group
	g.SetLimit(16)
	for i := 0; i < 48; i++ {
		i := i
		g.Go(func() error {
			payload := fmt.Sprintf("client %d %s\r\n", i, strings.Repeat("x", i))
			resp, err := exchange(t, srv.Addr(), 0, split([]byte(payload), 3)...)
			if err != nil {
				return err
			}
			want := fmt.Sprintf("SUCCESS! PROCESSED %d BYTES!", len(payload))
			if resp != want {
				return fmt.Errorf("client %d: got %q, want %q", i, resp, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Eventually(t, func() bool {
		return srv.Stats()["debug.connections"] == 0
	}, 2*time.Second, 5*time.Millisecond)
	stats := srv.Stats()
	assert.EqualValues(t, 48, stats["completed"])
	peers, ok := stats["debug.peers"].(map[string]control.PeerStats)
	require.True(t, ok)
	assert.EqualValues(t, 48, peers["127.0.0.1"].Requests)
}

func TestPeerDisconnectInvalidatesSession(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter))
	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	_, err = conn.Write([]byte("partial"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return srv.Stats()["debug.connections"] == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		s := srv.Stats()
		return s["debug.connections"] == 0 && s["invalidated"] == int64(1)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPeerGoneDuringProcessingGetsNoResponse(t *testing.T) {
	slow := func(ctx context.Context, req []byte) ([]byte, error) {
		time.Sleep(200 * time.Millisecond)
		return api.CountingProcessor(ctx, req)
	}
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter), server.WithProcessor(slow))

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	_, err = conn.Write([]byte("x\r\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		s := srv.Stats()
		return s["debug.connections"] == 0 && s["invalidated"] == int64(1)
	}, 2*time.Second, 5*time.Millisecond)
	stats := srv.Stats()
	assert.Zero(t, stats["completed"])
	assert.Zero(t, stats["bytes_out"])
	peers, ok := stats["debug.peers"].(map[string]control.PeerStats)
	require.True(t, ok)
	assert.EqualValues(t, 1, peers["127.0.0.1"].Dropped)
	assert.Zero(t, peers["127.0.0.1"].Requests)
}

func TestSurplusInputDoesNotResetResponse(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeFixed))

	// one write far past N; the bytes after the completing chunk stay unread
	resp, err := exchange(t, srv.Addr(), 0, bytes.Repeat([]byte("1"), 200))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "SUCCESS! PROCESSED "), resp)
}

func TestPinnedPollLoop(t *testing.T) {
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter), server.WithPollCPU(0))
	resp, err := exchange(t, srv.Addr(), 0, []byte("pinned\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS! PROCESSED 8 BYTES!", resp)
}

func TestCustomProcessorAndHooks(t *testing.T) {
	var ticks, handled atomic.Int64
	hooks := server.Hooks{
		Before:    func() { ticks.Add(1) },
		BeginLoop: func() { handled.Add(1) },
	}
	upper := func(_ context.Context, req []byte) ([]byte, error) {
		return bytes.ToUpper(req), nil
	}
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter),
		server.WithProcessor(upper), server.WithHooks(hooks))

	resp, err := exchange(t, srv.Addr(), 0, []byte("shout\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "SHOUT\r\n", resp)
	assert.Positive(t, ticks.Load())
	assert.GreaterOrEqual(t, handled.Load(), int64(3), "accept, read and write events")
}

func TestProcessorErrorDropsConnection(t *testing.T) {
	failing := func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("backend unavailable")
	}
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter), server.WithProcessor(failing))

	resp, _ := exchange(t, srv.Addr(), 0, []byte("x\r\n"))
	assert.Empty(t, resp)
	assert.Zero(t, srv.Stats()["completed"])
}

func TestLargeResponseIsFullyFlushed(t *testing.T) {
	big := bytes.Repeat([]byte("z"), 4<<20)
	srv := start(t, testConfig(5*time.Second), strategy(t, framing.ModeDelimiter),
		server.WithProcessor(func(context.Context, []byte) ([]byte, error) { return big, nil }))

	resp, err := exchange(t, srv.Addr(), 0, []byte("go\r\n"))
	require.NoError(t, err)
	assert.Equal(t, len(big), len(resp))
}

func TestLifecycle(t *testing.T) {
	_, err := server.New(testConfig(time.Second), nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	var running atomic.Bool
	srv, err := server.New(testConfig(time.Second), strategy(t, framing.ModeTimeout),
		server.WithLogger(quiet), server.WithHooks(server.Hooks{Before: func() { running.Store(true) }}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()
	require.Eventually(t, running.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, srv.Run(context.Background()), server.ErrAlreadyRunning)

	require.NoError(t, srv.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Run(context.Background()), api.ErrClosed)

	_, err = net.DialTimeout("tcp", srv.Addr(), time.Second)
	assert.Error(t, err, "listener closed")
}

func TestCloseWithoutRun(t *testing.T) {
	srv, err := server.New(testConfig(time.Second), strategy(t, framing.ModeFixed), server.WithLogger(quiet))
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Run(context.Background()), api.ErrClosed)
}
