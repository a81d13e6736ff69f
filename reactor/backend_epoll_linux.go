//go:build linux

// File: reactor/backend_epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) backend, edge-triggered, with an eventfd for wakeups.

package reactor

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

const epollBase = unix.EPOLLET | unix.EPOLLRDHUP | unix.EPOLLERR | unix.EPOLLHUP

type epollBackend struct {
	epfd int
	evfd int
	raw  []unix.EpollEvent
	wbuf [8]byte
	rbuf [8]byte
}

// NewBackend constructs the platform backend for Linux.
func NewBackend(cfg *Config) (Backend, error) {
	return NewEpoll(cfg.MaxEvents)
}

// NewEpoll creates an epoll instance with an eventfd registered for Wakeup.
func NewEpoll(maxEvents int) (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.Wrap(pkgName, "create", "epoll_create1 failed", err)
	}
	evfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, api.Wrap(pkgName, "create", "eventfd failed", err)
	}
	b := &epollBackend{epfd: epfd, evfd: evfd, raw: make([]unix.EpollEvent, maxEvents)}
	binary.LittleEndian.PutUint64(b.wbuf[:], 1)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET}
	putToken(&ev, wakeToken)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, evfd, &ev); err != nil {
		_ = unix.Close(evfd)
		_ = unix.Close(epfd)
		return nil, api.Wrap(pkgName, api.OpAdd, "eventfd registration failed", err)
	}
	return b, nil
}

func putToken(ev *unix.EpollEvent, tok Token) {
	ev.Fd = int32(uint32(tok))
	ev.Pad = int32(uint32(tok >> 32))
}

func getToken(ev *unix.EpollEvent) Token {
	return Token(uint64(uint32(ev.Pad))<<32 | uint64(uint32(ev.Fd)))
}

func epollMask(in api.Interest) uint32 {
	mask := uint32(epollBase)
	if in.Read {
		mask |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if in.Write {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (b *epollBackend) Model() Model { return Readiness }
func (b *epollBackend) Name() string { return "epoll" }

func (b *epollBackend) Add(fd uintptr, tok Token, in api.Interest) error {
	return b.ctl(unix.EPOLL_CTL_ADD, fd, tok, in)
}

func (b *epollBackend) Modify(fd uintptr, tok Token, in api.Interest) error {
	return b.ctl(unix.EPOLL_CTL_MOD, fd, tok, in)
}

func (b *epollBackend) ctl(op int, fd uintptr, tok Token, in api.Interest) error {
	ev := unix.EpollEvent{Events: epollMask(in)}
	putToken(&ev, tok)
	return unix.EpollCtl(b.epfd, op, int(fd), &ev)
}

func (b *epollBackend) Delete(fd uintptr) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func (b *epollBackend) Wait(out []Notification, timeout time.Duration) (int, error) {
	if len(b.raw) < len(out) {
		b.raw = make([]unix.EpollEvent, len(out))
	}
	n, err := unix.EpollWait(b.epfd, b.raw[:len(out)], timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	k := 0
	for i := 0; i < n; i++ {
		raw := &b.raw[i]
		tok := getToken(raw)
		if tok == wakeToken {
			_, _ = unix.Read(b.evfd, b.rbuf[:])
			continue
		}
		e := raw.Events
		out[k] = Notification{
			Token:  tok,
			Kind:   KindReady,
			Read:   e&(unix.EPOLLIN|unix.EPOLLPRI) != 0,
			Write:  e&(unix.EPOLLOUT|unix.EPOLLHUP) != 0,
			HangUp: e&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0,
			Error:  e&unix.EPOLLERR != 0,
		}
		k++
	}
	return k, nil
}

func (b *epollBackend) Wakeup() error {
	_, err := unix.Write(b.evfd, b.wbuf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (b *epollBackend) Close() error {
	err := unix.Close(b.evfd)
	if cerr := unix.Close(b.epfd); err == nil {
		err = cerr
	}
	return err
}
