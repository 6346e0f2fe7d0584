//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller with an eventfd wake channel.

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

// epollPoller is a level-triggered epoll poller.
type epollPoller struct {
	epfd   int
	wakefd int
	armed  map[int]Interest // owned by the poll goroutine
	raw    []unix.EpollEvent
}

// NewPoller constructs the Linux poller.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakefd: %w", err)
	}
	return &epollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		armed:  make(map[int]Interest),
		raw:    make([]unix.EpollEvent, maxEvents),
	}, nil
}

func toEpoll(interest Interest) uint32 {
	var ev uint32 = unix.EPOLLRDHUP
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Arm adds or modifies fd in the epoll interest set.
func (p *epollPoller) Arm(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if _, ok := p.armed[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl arm fd=%d: %w", fd, err)
	}
	p.armed[fd] = interest
	return nil
}

// Suspend deletes fd from the interest set.
func (p *epollPoller) Suspend(fd int) error {
	if _, ok := p.armed[fd]; !ok {
		return nil
	}
	delete(p.armed, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Forget drops fd; the kernel removes closed descriptors from epoll itself.
func (p *epollPoller) Forget(fd int) {
	if _, ok := p.armed[fd]; ok {
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(p.armed, fd)
	}
}

// Wait blocks up to timeout and translates epoll events.
func (p *epollPoller) Wait(timeout time.Duration, events []Event) (int, bool, error) {
	limit := len(events)
	if limit > len(p.raw) {
		limit = len(p.raw)
	}
	msec := int(timeout / time.Millisecond)
	if timeout < 0 {
		msec = -1
	}
	n, err := unix.EpollWait(p.epfd, p.raw[:limit], msec)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, false, nil // interrupted by signal, normal
		}
		return 0, false, fmt.Errorf("epoll wait: %w", err)
	}
	out := 0
	woken := false
	for i := 0; i < n; i++ {
		raw := p.raw[i]
		fd := int(raw.Fd)
		if fd == p.wakefd {
			p.drainWake()
			woken = true
			continue
		}
		events[out] = Event{
			Fd:       fd,
			Readable: raw.Events&unix.EPOLLIN != 0,
			Writable: raw.Events&unix.EPOLLOUT != 0,
			Hangup:   raw.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			Error:    raw.Events&unix.EPOLLERR != 0,
		}
		out++
	}
	return out, woken, nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Wake increments the eventfd counter, making it readable.
func (p *epollPoller) Wake() error {
	one := [8]byte{1} // little-endian uint64(1)
	if _, err := unix.Write(p.wakefd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Close closes the wake channel and the epoll instance.
func (p *epollPoller) Close() error {
	err1 := unix.Close(p.wakefd)
	err2 := unix.Close(p.epfd)
	return errors.Join(err1, err2)
}
