// internal/transport/transport_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux listening socket and descriptor I/O via golang.org/x/sys/unix.

package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/momentics/hioload-frame/api"
	"golang.org/x/sys/unix"
)

type linuxListener struct {
	fd   int
	addr string
}

// Listen creates a non-blocking TCP listener bound to addr ("host:port").
func Listen(addr string, backlog int) (Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil || tcpAddr.IP == nil {
		in := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 != nil {
			copy(in.Addr[:], ip4)
		}
		sa = in
	} else {
		family = unix.AF_INET6
		in := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(in.Addr[:], tcpAddr.IP.To16())
		sa = in
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	return &linuxListener{fd: fd, addr: sockaddrString(bound)}, nil
}

func (l *linuxListener) Fd() int { return l.fd }

func (l *linuxListener) Addr() string { return l.addr }

// Accept takes one connection as a non-blocking, close-on-exec descriptor.
func (l *linuxListener) Accept() (int, string, bool, error) {
	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
			return -1, "", false, nil
		}
		return -1, "", false, fmt.Errorf("accept4: %w", err)
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nfd, sockaddrString(sa), true, nil
}

func (l *linuxListener) Close() error {
	return unix.Close(l.fd)
}

// Read performs one read. ok is false when nothing is available yet; a closed
// peer yields api.ErrPeerClosed.
func Read(fd int, buf []byte) (n int, ok bool, err error) {
	n, err = unix.Read(fd, buf)
	switch {
	case err == nil && n == 0:
		return 0, false, api.ErrPeerClosed
	case err == nil:
		return n, true, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, false, nil
	default:
		return 0, false, api.Wrap(api.ErrCodeIO, err, "read").WithContext("fd", fd)
	}
}

// Write performs one write attempt and returns the bytes accepted by the kernel.
func Write(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, nil
	case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ECONNRESET):
		return 0, api.ErrPeerClosed
	default:
		return 0, api.Wrap(api.ErrCodeIO, err, "write").WithContext("fd", fd)
	}
}

// PeerClosed peeks at fd without consuming input and reports whether the
// peer has closed its side. Unread data or an empty receive queue both count
// as open.
func PeerClosed(fd int) (bool, error) {
	var b [1]byte
	n, _, err := unix.Recvfrom(fd, b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	switch {
	case err == nil:
		return n == 0, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return false, nil
	case errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.ENOTCONN):
		return true, nil
	default:
		return false, api.Wrap(api.ErrCodeIO, err, "peek").WithContext("fd", fd)
	}
}

// Close closes a connection descriptor.
func Close(fd int) error {
	return unix.Close(fd)
}

// drainLimit bounds how much unread input Shutdown discards before closing.
const drainLimit = 64 << 10

// Shutdown sends FIN, discards input that is already queued and closes fd.
// Closing with unread input makes the kernel answer with RST, which can
// destroy a response the peer has not read yet.
func Shutdown(fd int) error {
	_ = unix.Shutdown(fd, unix.SHUT_WR)
	var buf [4096]byte
	for drained := 0; drained < drainLimit; {
		n, err := unix.Read(fd, buf[:])
		if err != nil || n == 0 {
			break
		}
		drained += n
	}
	return unix.Close(fd)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return "unknown"
	}
}
