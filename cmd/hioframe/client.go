// File: cmd/hioframe/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Demo load generator: opens several connections, sends the sample request
// for the configured mode and prints each reply.

package main

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/client"
	"github.com/momentics/hioload-frame/framing"
	"github.com/momentics/hioload-frame/internal/config"
)

var (
	clientConns       int
	clientConcurrency int
	clientPause       time.Duration
	clientChunk       int
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Send sample requests to a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := samplePayload(cfg)
		if err != nil {
			return err
		}
		ccfg := client.DefaultConfig(cfg.Addr())
		ccfg.ChunkSize = clientChunk
		if strings.EqualFold(cfg.Mode, framing.ModeTimeout) {
			ccfg.Pause = clientPause
		}
		c := client.New(ccfg)

		var seq atomic.Int64
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(clientConcurrency)
		for i := 0; i < clientConns; i++ {
			g.Go(func() error {
				reply, err := c.Do(ctx, payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d- %s\n", seq.Add(1), reply)
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().IntVar(&clientConns, "connections", 10, "Number of requests to send")
	clientCmd.Flags().IntVar(&clientConcurrency, "concurrency", 2, "Requests in flight at once")
	clientCmd.Flags().IntVar(&clientChunk, "send-chunk", 0, "Split each request into writes of this many bytes (0 = one write)")
	clientCmd.Flags().DurationVar(&clientPause, "pause", 7*time.Second, "Idle time after sending in timeout mode")
}

// samplePayload builds the demo request for c.Mode.
func samplePayload(c config.Config) ([]byte, error) {
	switch strings.ToLower(c.Mode) {
	case framing.ModeFixed:
		return bytes.Repeat([]byte("1"), c.FixedLength), nil
	case framing.ModeLength:
		body := 10000
		limit := 1
		for i := 0; i < c.HeaderWidth && limit <= body; i++ {
			limit *= 10
		}
		body = min(body, limit-1)
		header := fmt.Sprintf("%0*d", c.HeaderWidth, body)
		return append([]byte(header), bytes.Repeat([]byte("1"), body)...), nil
	case framing.ModeDelimiter:
		var b bytes.Buffer
		for i := 1; i <= 12; i++ {
			fmt.Fprintf(&b, "Company %d", i)
		}
		b.Write(c.DelimiterBytes())
		return b.Bytes(), nil
	case framing.ModeTimeout:
		var b bytes.Buffer
		for i := 1; i <= 12; i++ {
			fmt.Fprintf(&b, "Company %d\r\n", i)
		}
		return b.Bytes(), nil
	default:
		return nil, fmt.Errorf("client mode %q: %w", c.Mode, api.ErrInvalidArgument)
	}
}
