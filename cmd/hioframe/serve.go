// File: cmd/hioframe/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-frame/internal/config"
	"github.com/momentics/hioload-frame/server"
)

var errAlreadyHeld = errors.New("lock file is already held")

var (
	lockFile string
	pollCPU  int
	watchEnv string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the framed TCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("lock-file") {
			cfg.LockFile = lockFile
		}
		if cfg.LockFile != "" {
			lock := flock.New(cfg.LockFile)
			held, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("lock %s: %w", cfg.LockFile, err)
			}
			if !held {
				return fmt.Errorf("%s: %w", cfg.LockFile, errAlreadyHeld)
			}
			defer lock.Unlock()
		}

		st, err := cfg.Strategy(logger)
		if err != nil {
			return err
		}
		srvCfg := server.DefaultConfig()
		srvCfg.ListenAddr = cfg.Addr()
		srvCfg.Deadline = cfg.Deadline()
		srvCfg.ReadChunkSize = cfg.ReadChunkSize
		srvCfg.PollInterval = cfg.PollInterval
		if cfg.Workers > 0 {
			srvCfg.ExecutorWorkers = cfg.Workers
		}

		opts := []server.ServerOption{server.WithLogger(logger)}
		if pollCPU >= 0 {
			opts = append(opts, server.WithPollCPU(pollCPU))
		}
		srv, err := server.New(srvCfg, st, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if watchEnv != "" {
			go func() {
				err := config.Watch(ctx, watchEnv, logger, func(c config.Config) {
					logLevel.Set(c.Level())
				})
				if err != nil {
					logger.Warn("env watcher stopped", "err", err)
				}
			}()
		}
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		logger.Info("shutdown complete", "stats", srv.Stats())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&pollCPU, "poll-cpu", -1, "Pin the poll loop to this CPU (-1 leaves it unpinned)")
	serveCmd.Flags().StringVar(&watchEnv, "watch-env", "", "Reload the log level when this env file changes")
	serveCmd.Flags().StringVar(&lockFile, "lock-file", "", "Refuse to start while another process holds this file lock")
}
