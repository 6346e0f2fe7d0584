// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-frame components.

package benchmarks

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-frame/client"
	"github.com/momentics/hioload-frame/framing"
	"github.com/momentics/hioload-frame/internal/concurrency"
	"github.com/momentics/hioload-frame/internal/session"
	"github.com/momentics/hioload-frame/server"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustStrategy(b *testing.B, mode string) framing.Strategy {
	st, err := framing.Parse(mode, framing.Options{Logger: quiet})
	if err != nil {
		b.Fatal(err)
	}
	return st
}

// feed pushes msg into a fresh session chunk by chunk, evaluating the
// completion predicate after each chunk as the read handler does.
func feed(b *testing.B, st framing.Strategy, msg []byte, chunk int) {
	now := time.Now()
	s := framing.NewSession(st, 3, "bench", time.Minute, now)
	for off := 0; off < len(msg); off += chunk {
		end := min(off+chunk, len(msg))
		if err := s.AddChunk(msg[off:end], now); err != nil {
			b.Fatal(err)
		}
		done, _, err := framing.Ready(st, s, now)
		if err != nil {
			b.Fatal(err)
		}
		if done {
			_ = s.Assemble()
			return
		}
	}
	b.Fatal("message never completed")
}

// BenchmarkLengthPrefixedReassembly measures header parsing plus body
// accumulation over small reads.
func BenchmarkLengthPrefixedReassembly(b *testing.B) {
	st := mustStrategy(b, framing.ModeLength)
	msg := append([]byte("10000"), bytes.Repeat([]byte("1"), 10000)...)
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		feed(b, st, msg, 512)
	}
}

// BenchmarkDelimiterReassembly measures the boundary-spanning tail check.
func BenchmarkDelimiterReassembly(b *testing.B) {
	st := mustStrategy(b, framing.ModeDelimiter)
	msg := append(bytes.Repeat([]byte("Company 1"), 100), '\r', '\n')
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		feed(b, st, msg, 5)
	}
}

// BenchmarkRegistryParallel tests sharded registry contention.
func BenchmarkRegistryParallel(b *testing.B) {
	reg := session.NewRegistry(runtime.GOMAXPROCS(0) * 4)
	var next atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			fd := int(next.Add(1))
			s := session.New(fd, "bench", time.Second, false, time.Now())
			reg.Add(s)
			if _, ok := reg.Get(fd); !ok {
				b.Error("session lost")
			}
			reg.Remove(fd, s)
		}
	})
}

// BenchmarkExecutorSubmit tests task dispatch throughput.
func BenchmarkExecutorSubmit(b *testing.B) {
	exec := concurrency.NewExecutor(runtime.GOMAXPROCS(0), quiet)
	var done atomic.Int64
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := exec.Submit(func() { done.Add(1) }); err != nil {
			b.Fatal(err)
		}
	}
	exec.Close()
	if done.Load() != int64(b.N) {
		b.Fatalf("ran %d of %d tasks", done.Load(), b.N)
	}
}

// BenchmarkDelimiterRoundTrip tests end-to-end request/response latency.
func BenchmarkDelimiterRoundTrip(b *testing.B) {
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ReadChunkSize = 512
	cfg.PollInterval = time.Millisecond
	srv, err := server.New(cfg, mustStrategy(b, framing.ModeDelimiter), server.WithLogger(quiet))
	if err != nil {
		b.Skipf("server unavailable: %v", err)
	}
	go func() { _ = srv.Run(context.Background()) }()
	defer srv.Close()

	c := client.New(client.DefaultConfig(srv.Addr()))
	payload := []byte("Company 1\r\n")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Do(context.Background(), payload); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
