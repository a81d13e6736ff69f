// File: tcp/listener.go
// Author: momentics <momentics@gmail.com>
//
// Readiness-model listening socket with a queue of pending accepts.

package tcp

import (
	"net/netip"
	"syscall"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// AcceptCallback receives the accepted connection, or nil when accept
// failed or the listener closed first.
type AcceptCallback func(ln *Listener, c *Conn, attr any)

type acceptRequest struct {
	cb   AcceptCallback
	attr any
}

// Listener accepts connections on one loop.
type Listener struct {
	reactor.Event

	sys     Sys
	opts    Options
	pending *queue.Queue
	onClose func(ln *Listener)
}

// Listen binds a non-blocking listening socket to addr.
func Listen(l *reactor.Loop, addr netip.AddrPort, sys Sys, opts Options) (*Listener, error) {
	ip := addr.Addr()
	fd, err := sys.Socket(ip.Is6() && !ip.Is4In6())
	if err != nil {
		return nil, api.Wrap(pkgName, "listen", "socket failed", err)
	}
	if err := sys.SetReuse(fd, opts.ReuseAddr, opts.ReusePort); err != nil {
		_ = sys.Close(fd)
		return nil, api.Wrap(pkgName, "listen", "setsockopt failed", err)
	}
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := sys.Listen(fd, addr, backlog); err != nil {
		_ = sys.Close(fd)
		return nil, api.Wrap(pkgName, "listen", "listen failed", err)
	}
	ln := &Listener{sys: sys, opts: opts, pending: queue.New()}
	if err := ln.Bind(l, uintptr(fd), ln); err != nil {
		_ = sys.Close(fd)
		return nil, err
	}
	ln.SetState(api.Connected)
	return ln, nil
}

func (ln *Listener) sock() int { return int(ln.Event.Fd()) }

func (ln *Listener) usable() bool {
	return ln.Bound() && !ln.Failed() && ln.State() == api.Connected
}

// Accept takes one connection from the backlog. StatusDone returns it
// directly; StatusPending means cb receives it later.
func (ln *Listener) Accept(cb AcceptCallback, attr any) (*Conn, api.Status) {
	if !ln.usable() {
		return nil, api.StatusError
	}
	if ln.pending.Length() == 0 && ln.Readable() {
		c, err := ln.accept()
		switch {
		case c != nil:
			return c, api.StatusDone
		case err != nil:
			ln.logAcceptError(err)
			return nil, api.StatusError
		}
	}
	ln.pending.Add(acceptRequest{cb: cb, attr: attr})
	ln.RequestInterest(true, false)
	if ln.Readable() {
		ln.MarkReady()
	}
	return nil, api.StatusPending
}

// accept returns (nil, nil) once the backlog is empty.
func (ln *Listener) accept() (*Conn, error) {
	for {
		fd, err := ln.sys.Accept(ln.sock())
		switch {
		case err == nil:
		case interrupted(err) || err == syscall.ECONNABORTED:
			continue
		case wouldBlock(err):
			ln.ClearReadable()
			return nil, nil
		default:
			return nil, api.Wrap(pkgName, api.OpAccept, "accept failed", err)
		}
		if ln.opts.NoDelay {
			_ = ln.sys.SetNoDelay(fd, true)
		}
		c, err := NewConn(ln.Loop(), fd, ln.sys)
		if err != nil {
			_ = ln.sys.Close(fd)
			return nil, err
		}
		return c, nil
	}
}

func (ln *Listener) logAcceptError(err error) {
	ln.Loop().Logger().WithFields(logrus.Fields{
		"fd": ln.sock(),
		"op": api.OpAccept,
	}).WithError(err).Warn("accept failed")
}

// Handle is the loop dispatch entry point.
func (ln *Listener) Handle(_ *reactor.Event, _ reactor.Notification) {
	switch ln.State() {
	case api.Closed:
		return
	case api.Closing:
		ln.finishClose()
		return
	}
	for ln.usable() && ln.Readable() && ln.pending.Length() > 0 {
		c, err := ln.accept()
		if c == nil && err == nil {
			ln.RequestInterest(true, false)
			return
		}
		if err != nil {
			ln.logAcceptError(err)
		}
		req := ln.pending.Remove().(acceptRequest)
		req.cb(ln, c, req.attr)
	}
	if ln.Failed() {
		ln.flush()
	}
}

func (ln *Listener) flush() {
	for n := ln.pending.Length(); n > 0; n-- {
		req := ln.pending.Remove().(acceptRequest)
		req.cb(ln, nil, req.attr)
	}
}

// Close stops listening. Pending accepts get a nil connection before cb.
func (ln *Listener) Close(cb func(ln *Listener)) error {
	if !ln.Bound() || ln.State() == api.Closing {
		return api.ErrClosed
	}
	ln.onClose = cb
	ln.SetState(api.Closing)
	ln.Deregister()
	ln.Loop().Defer(ln.finishClose)
	return nil
}

func (ln *Listener) finishClose() {
	if ln.State() != api.Closing {
		return
	}
	ln.flush()
	fd := ln.sock()
	ln.Release()
	_ = ln.sys.Close(fd)
	if cb := ln.onClose; cb != nil {
		ln.onClose = nil
		cb(ln)
	}
}
