//go:build !linux
// +build !linux

// Author: momentics <momentics@gmail.com>
//
// Stub transport for unsupported platforms.

package transport

import (
	"fmt"

	"github.com/momentics/hioload-frame/api"
)

func Listen(addr string, backlog int) (Listener, error) {
	return nil, fmt.Errorf("transport: listen %s: %w", addr, api.ErrNotSupported)
}

func Read(fd int, buf []byte) (int, bool, error) { return 0, false, api.ErrNotSupported }

func Write(fd int, buf []byte) (int, error) { return 0, api.ErrNotSupported }

func PeerClosed(fd int) (bool, error) { return false, api.ErrNotSupported }

func Close(fd int) error { return api.ErrNotSupported }

func Shutdown(fd int) error { return api.ErrNotSupported }
