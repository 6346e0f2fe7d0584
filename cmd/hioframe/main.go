// File: cmd/hioframe/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioframe runs the framed TCP server or its demo load client.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-frame/internal/config"
)

var (
	cfg      config.Config
	logger   *slog.Logger
	logLevel = new(slog.LevelVar)

	flagHost     string
	flagPort     int
	flagMode     string
	flagDeadline int
	flagChunk    int
	flagPoll     time.Duration
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "hioframe",
	Short: "Framed TCP request/response server",
	Long: `hioframe accepts TCP connections, reassembles each request with one of
four framing modes (fixed, length, delimiter, timeout), processes it on a
worker pool and answers once before closing the connection.

Settings come from HIOFRAME_* environment variables, an optional .env file
in the working directory, and finally the flags below.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		boot := slog.New(slog.NewTextHandler(os.Stderr, nil))
		loaded, err := config.Load(boot)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		logLevel.Set(cfg.Level())
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
		return nil
	},
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.BindAddress = flagHost
	}
	if flags.Changed("port") {
		c.BindPort = flagPort
	}
	if flags.Changed("mode") {
		c.Mode = flagMode
	}
	if flags.Changed("deadline-ms") {
		c.DeadlineMillis = flagDeadline
	}
	if flags.Changed("chunk") {
		c.ReadChunkSize = flagChunk
	}
	if flags.Changed("poll") {
		c.PollInterval = flagPoll
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagHost, "host", d.BindAddress, "Bind or target host")
	pf.IntVar(&flagPort, "port", d.BindPort, "Bind or target port")
	pf.StringVar(&flagMode, "mode", d.Mode, "Framing mode: fixed, length, delimiter, timeout")
	pf.IntVar(&flagDeadline, "deadline-ms", d.DeadlineMillis, "Per-connection deadline in milliseconds")
	pf.IntVar(&flagChunk, "chunk", d.ReadChunkSize, "Bytes consumed per read event")
	pf.DurationVar(&flagPoll, "poll", d.PollInterval, "Readiness wait bound")
	pf.StringVar(&flagLogLevel, "log-level", d.LogLevel, "Log level: debug, info, warn, error")
}
