// File: internal/config/config.go
// Package config
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process configuration for hioframe: defaults, .env file and HIOFRAME_*
// environment variables. Command-line flags are applied on top by cmd.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/momentics/hioload-frame/api"
	"github.com/momentics/hioload-frame/framing"
)

// Environment variable names.
const (
	EnvBindAddress  = "HIOFRAME_BIND_ADDRESS"
	EnvBindPort     = "HIOFRAME_BIND_PORT"
	EnvMode         = "HIOFRAME_MODE"
	EnvDeadlineMS   = "HIOFRAME_DEADLINE_MS"
	EnvReadChunk    = "HIOFRAME_READ_CHUNK"
	EnvPollMS       = "HIOFRAME_POLL_MS"
	EnvWorkers      = "HIOFRAME_WORKERS"
	EnvFixedLength  = "HIOFRAME_FIXED_LENGTH"
	EnvHeaderWidth  = "HIOFRAME_HEADER_WIDTH"
	EnvDelimiter    = "HIOFRAME_DELIMITER"
	EnvLogLevel     = "HIOFRAME_LOG_LEVEL"
	EnvLockFile     = "HIOFRAME_LOCK_FILE"
	EnvLengthExpiry = "HIOFRAME_LENGTH_DEADLINE"
)

// Config is the full process configuration.
type Config struct {
	BindAddress    string
	BindPort       int
	Mode           string
	DeadlineMillis int
	ReadChunkSize  int
	PollInterval   time.Duration
	Workers        int
	FixedLength    int
	HeaderWidth    int
	Delimiter      string
	LogLevel       string
	LockFile       string
	// LengthDeadline lets length-prefixed sessions time out.
	LengthDeadline bool
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		BindAddress:    "localhost",
		BindPort:       5542,
		Mode:           framing.ModeTimeout,
		DeadlineMillis: 5000,
		ReadChunkSize:  5,
		PollInterval:   50 * time.Millisecond,
		Workers:        0,
		FixedLength:    framing.DefaultFixedLength,
		HeaderWidth:    framing.DefaultHeaderWidth,
		Delimiter:      `\r\n`,
		LogLevel:       "info",
		LengthDeadline: true,
	}
}

// Load reads an optional .env file from the working directory, then applies
// environment overrides to the defaults. Unparseable numbers keep their
// defaults and are reported through log.
func Load(log *slog.Logger) (Config, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	cfg.applyEnv(log)
	return cfg, nil
}

func (c *Config) applyEnv(log *slog.Logger) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			log.Warn("invalid numeric setting, keeping default", "key", key, "value", v, "default", *dst)
			return
		}
		*dst = n
	}
	str(EnvBindAddress, &c.BindAddress)
	num(EnvBindPort, &c.BindPort)
	str(EnvMode, &c.Mode)
	num(EnvDeadlineMS, &c.DeadlineMillis)
	num(EnvReadChunk, &c.ReadChunkSize)
	poll := int(c.PollInterval / time.Millisecond)
	num(EnvPollMS, &poll)
	c.PollInterval = time.Duration(poll) * time.Millisecond
	num(EnvWorkers, &c.Workers)
	num(EnvFixedLength, &c.FixedLength)
	num(EnvHeaderWidth, &c.HeaderWidth)
	str(EnvDelimiter, &c.Delimiter)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLockFile, &c.LockFile)
	if v, ok := os.LookupEnv(EnvLengthExpiry); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Warn("invalid boolean setting, keeping default", "key", EnvLengthExpiry, "value", v)
		} else {
			c.LengthDeadline = b
		}
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	var errs []error
	if c.BindPort < 0 || c.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("bind port %d out of range", c.BindPort))
	}
	if c.DeadlineMillis <= 0 {
		errs = append(errs, fmt.Errorf("deadline %dms must be positive", c.DeadlineMillis))
	}
	if c.ReadChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("read chunk size %d must be positive", c.ReadChunkSize))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval %s must be positive", c.PollInterval))
	}
	if len(c.DelimiterBytes()) == 0 {
		errs = append(errs, errors.New("delimiter must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", api.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// Addr returns "host:port".
func (c Config) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.BindPort))
}

// Deadline returns the per-session deadline.
func (c Config) Deadline() time.Duration {
	return time.Duration(c.DeadlineMillis) * time.Millisecond
}

// DelimiterBytes decodes escape sequences such as \r\n in the delimiter.
func (c Config) DelimiterBytes() []byte {
	if s, err := strconv.Unquote(`"` + c.Delimiter + `"`); err == nil {
		return []byte(s)
	}
	return []byte(c.Delimiter)
}

// Level maps LogLevel to a slog level; unknown names map to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Strategy builds the configured framing strategy.
func (c Config) Strategy(log *slog.Logger) (framing.Strategy, error) {
	st, err := framing.Parse(c.Mode, framing.Options{
		FixedLength: c.FixedLength,
		HeaderWidth: c.HeaderWidth,
		Delimiter:   c.DelimiterBytes(),
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	if lp, ok := st.(*framing.LengthPrefixed); ok {
		lp.NoDeadline = !c.LengthDeadline
	}
	return st, nil
}
