// File: client/client.go
// Package client sends one framed request per connection and collects the reply.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The server answers exactly once and then closes the connection, so a reply
// is everything read until EOF.

package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// ClientConfig holds all configurable parameters for the client.
type ClientConfig struct {
	Addr        string        // host:port of the server
	ChunkSize   int           // split the request into writes of this size (0 = one write)
	ChunkDelay  time.Duration // pause between chunk writes
	Pause       time.Duration // idle time after the last write, before reading
	DialTimeout time.Duration // connect bound
	ReadTimeout time.Duration // reply bound, measured after the last write
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig(addr string) ClientConfig {
	return ClientConfig{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 30 * time.Second,
	}
}

// Client issues requests against one server address. It is safe for
// concurrent use; every request gets its own connection.
type Client struct {
	cfg    ClientConfig
	dialer net.Dialer
}

// New creates a client.
func New(cfg ClientConfig) *Client {
	return &Client{cfg: cfg, dialer: net.Dialer{Timeout: cfg.DialTimeout}}
}

// Do sends payload and returns the server's reply.
func (c *Client) Do(ctx context.Context, payload []byte) ([]byte, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	defer conn.Close()

	// Abort blocked I/O when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := c.send(ctx, conn, payload); err != nil {
		return nil, err
	}
	if c.cfg.Pause > 0 {
		if err := sleep(ctx, c.cfg.Pause); err != nil {
			return nil, err
		}
	}
	if c.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return reply, nil
}

func (c *Client) send(ctx context.Context, conn net.Conn, payload []byte) error {
	n := c.cfg.ChunkSize
	if n <= 0 {
		n = len(payload)
	}
	for len(payload) > 0 {
		k := min(n, len(payload))
		if _, err := conn.Write(payload[:k]); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		payload = payload[k:]
		if len(payload) > 0 && c.cfg.ChunkDelay > 0 {
			if err := sleep(ctx, c.cfg.ChunkDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
