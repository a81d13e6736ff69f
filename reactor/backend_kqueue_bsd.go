//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/backend_kqueue_bsd.go
// Author: momentics <momentics@gmail.com>
//
// BSD kqueue(2) backend. Filters are EV_CLEAR so they behave edge-triggered
// like the epoll backend; a non-blocking pipe serves wakeups.

package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

type kqueueReg struct {
	tok Token
	in  api.Interest
}

type kqueueBackend struct {
	kq      int
	pipe    [2]int
	regs    map[int]kqueueReg
	changes []unix.Kevent_t
	raw     []unix.Kevent_t
	drain   [64]byte
}

// NewBackend constructs the platform backend for BSD systems.
func NewBackend(cfg *Config) (Backend, error) {
	return NewKqueue(cfg.MaxEvents)
}

// NewKqueue creates a kqueue with a self-pipe registered for Wakeup.
func NewKqueue(maxEvents int) (Backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, api.Wrap(pkgName, "create", "kqueue failed", err)
	}
	unix.CloseOnExec(kq)
	b := &kqueueBackend{
		kq:   kq,
		regs: make(map[int]kqueueReg),
		raw:  make([]unix.Kevent_t, maxEvents),
	}
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		_ = unix.Close(kq)
		return nil, api.Wrap(pkgName, "create", "pipe failed", err)
	}
	b.pipe = p
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = b.Close()
			return nil, api.Wrap(pkgName, "create", "pipe setnonblock failed", err)
		}
	}
	var ev [1]unix.Kevent_t
	unix.SetKevent(&ev[0], p[0], unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(kq, ev[:], nil, nil); err != nil {
		_ = b.Close()
		return nil, api.Wrap(pkgName, api.OpAdd, "wakeup pipe registration failed", err)
	}
	return b, nil
}

func (b *kqueueBackend) Model() Model { return Readiness }
func (b *kqueueBackend) Name() string { return "kqueue" }

func (b *kqueueBackend) Add(fd uintptr, tok Token, in api.Interest) error {
	return b.apply(int(fd), kqueueReg{}, kqueueReg{tok: tok, in: in})
}

func (b *kqueueBackend) Modify(fd uintptr, tok Token, in api.Interest) error {
	prev, ok := b.regs[int(fd)]
	if !ok {
		return unix.ENOENT
	}
	return b.apply(int(fd), prev, kqueueReg{tok: tok, in: in})
}

func (b *kqueueBackend) Delete(fd uintptr) error {
	prev, ok := b.regs[int(fd)]
	if !ok {
		return nil
	}
	delete(b.regs, int(fd))
	return b.submit(int(fd), prev.in, api.Interest{})
}

func (b *kqueueBackend) apply(fd int, prev, next kqueueReg) error {
	if err := b.submit(fd, prev.in, next.in); err != nil {
		return err
	}
	b.regs[fd] = next
	return nil
}

// submit adds filters present in next and deletes those only in prev.
func (b *kqueueBackend) submit(fd int, prev, next api.Interest) error {
	b.changes = b.changes[:0]
	b.change(fd, unix.EVFILT_READ, prev.Read, next.Read)
	b.change(fd, unix.EVFILT_WRITE, prev.Write, next.Write)
	if len(b.changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, b.changes, nil, nil)
	return err
}

func (b *kqueueBackend) change(fd, filter int, had, want bool) {
	var k unix.Kevent_t
	switch {
	case want:
		unix.SetKevent(&k, fd, filter, unix.EV_ADD|unix.EV_CLEAR)
	case had:
		unix.SetKevent(&k, fd, filter, unix.EV_DELETE)
	default:
		return
	}
	b.changes = append(b.changes, k)
}

func (b *kqueueBackend) Wait(out []Notification, timeout time.Duration) (int, error) {
	if len(b.raw) < len(out) {
		b.raw = make([]unix.Kevent_t, len(out))
	}
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(b.kq, nil, b.raw[:len(out)], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	k := 0
	for i := 0; i < n; i++ {
		raw := &b.raw[i]
		fd := int(raw.Ident)
		if fd == b.pipe[0] {
			for {
				if m, rerr := unix.Read(fd, b.drain[:]); m <= 0 || rerr != nil {
					break
				}
			}
			continue
		}
		reg, ok := b.regs[fd]
		if !ok {
			continue
		}
		nf := Notification{Token: reg.tok, Kind: KindReady}
		switch int(raw.Filter) {
		case unix.EVFILT_READ:
			nf.Read = true
		case unix.EVFILT_WRITE:
			nf.Write = true
		}
		if raw.Flags&unix.EV_EOF != 0 {
			nf.HangUp = true
			if raw.Fflags != 0 {
				nf.Error = true
			}
		}
		if raw.Flags&unix.EV_ERROR != 0 {
			nf.Error = true
		}
		out[k] = nf
		k++
	}
	return k, nil
}

func (b *kqueueBackend) Wakeup() error {
	_, err := unix.Write(b.pipe[1], []byte{'w'})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (b *kqueueBackend) Close() error {
	for _, fd := range b.pipe {
		if fd > 0 {
			_ = unix.Close(fd)
		}
	}
	return unix.Close(b.kq)
}
