// File: tcp/acceptor.go
// Author: momentics <momentics@gmail.com>
//
// Single-shot accept and connect for the completion model.

package tcp

import (
	"net/netip"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// AcceptorCallback receives the accepted connection, nil on failure.
type AcceptorCallback func(a *Acceptor, c *OverlappedConn, attr any)

// Acceptor is a listening socket with at most one outstanding accept.
type Acceptor struct {
	reactor.Event

	port    Port
	pending bool
	sock    uintptr
	cb      AcceptorCallback
	attr    any
	onClose func(a *Acceptor)
}

// ListenOverlapped opens a listening socket on l's completion port.
func ListenOverlapped(l *reactor.Loop, addr netip.AddrPort, port Port, opts Options) (*Acceptor, error) {
	ip := addr.Addr()
	fd, err := port.Socket(ip.Is6() && !ip.Is4In6())
	if err != nil {
		return nil, api.Wrap(pkgName, "listen", "socket failed", err)
	}
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := port.Listen(fd, addr, backlog); err != nil {
		_ = port.CloseSocket(fd)
		return nil, api.Wrap(pkgName, "listen", "listen failed", err)
	}
	a := &Acceptor{port: port}
	if err := a.Bind(l, fd, a); err != nil {
		_ = port.CloseSocket(fd)
		return nil, err
	}
	if err := a.Register(); err != nil {
		a.Release()
		_ = port.CloseSocket(fd)
		return nil, err
	}
	a.SetState(api.Connected)
	return a, nil
}

// Accept posts the next accept. Only one may be outstanding; a second call
// before cb ran returns api.ErrQueueFull.
func (a *Acceptor) Accept(cb AcceptorCallback, attr any) error {
	if !a.Bound() || a.Failed() || a.State() != api.Connected {
		return api.ErrClosed
	}
	if a.pending {
		return api.ErrQueueFull
	}
	s, err := a.port.Accept(a.Event.Fd())
	if err != nil {
		return api.Wrap(pkgName, api.OpAccept, "accept failed", err)
	}
	a.pending = true
	a.sock = s
	a.cb = cb
	a.attr = attr
	return nil
}

// Handle is the loop dispatch entry point.
func (a *Acceptor) Handle(_ *reactor.Event, n reactor.Notification) {
	if n.Op != reactor.OpAccept || !a.pending {
		return
	}
	s, cb, attr := a.sock, a.cb, a.attr
	a.pending = false
	a.sock, a.cb, a.attr = 0, nil, nil
	if n.Err != nil || a.State() == api.Closing {
		_ = a.port.CloseSocket(s)
		if cb != nil {
			cb(a, nil, attr)
		}
		a.maybeFinishClose()
		return
	}
	var c *OverlappedConn
	err := a.port.Accepted(s, a.Event.Fd())
	if err == nil {
		c, err = NewOverlappedConn(a.Loop(), s, a.port)
	}
	if err != nil {
		a.Loop().Logger().WithField("op", api.OpAccept).WithError(err).Warn("accept setup failed")
		_ = a.port.CloseSocket(s)
		c = nil
	}
	if cb != nil {
		cb(a, c, attr)
	}
}

// Close cancels an outstanding accept. cb runs after its callback.
func (a *Acceptor) Close(cb func(a *Acceptor)) error {
	if !a.Bound() || a.State() == api.Closing {
		return api.ErrClosed
	}
	a.onClose = cb
	a.SetState(api.Closing)
	if a.pending {
		_ = a.port.Cancel(a.Event.Fd())
		return nil
	}
	a.Loop().Defer(a.maybeFinishClose)
	return nil
}

func (a *Acceptor) maybeFinishClose() {
	if a.State() != api.Closing || a.pending {
		return
	}
	fd := a.Event.Fd()
	a.Release()
	_ = a.port.CloseSocket(fd)
	if cb := a.onClose; cb != nil {
		a.onClose = nil
		cb(a)
	}
}

// DialOverlapped starts a connection to addr. cb fires with 0 once it is
// established or with api.ErrorBytes. Buffers may be queued right away; they
// are submitted after the connect completes.
func DialOverlapped(l *reactor.Loop, addr netip.AddrPort, port Port, cb OverlappedCallback, attr any) (*OverlappedConn, error) {
	ip := addr.Addr()
	fd, err := port.Socket(ip.Is6() && !ip.Is4In6())
	if err != nil {
		return nil, api.Wrap(pkgName, api.OpConnect, "socket failed", err)
	}
	c, err := NewOverlappedConn(l, fd, port)
	if err != nil {
		_ = port.CloseSocket(fd)
		return nil, err
	}
	c.SetState(api.Connecting)
	c.dial = &dialRequest{cb: cb, attr: attr}
	if err := port.Connect(fd, addr); err != nil {
		c.dial = nil
		c.Release()
		_ = port.CloseSocket(fd)
		return nil, api.Wrap(pkgName, api.OpConnect, "connect failed", err)
	}
	return c, nil
}

func (c *OverlappedConn) connectDone(n reactor.Notification) {
	d := c.dial
	c.dial = nil
	if d == nil {
		return
	}
	if c.State() == api.Closing {
		if d.cb != nil {
			d.cb(c, api.ErrorBytes, d.attr)
		}
		c.maybeFinishClose()
		return
	}
	err := n.Err
	if err == nil {
		err = c.port.Connected(c.Event.Fd())
	}
	if err != nil {
		c.fail(api.OpConnect, err)
		if d.cb != nil {
			d.cb(c, api.ErrorBytes, d.attr)
		}
		c.abort()
		return
	}
	c.SetState(api.Connected)
	if d.cb != nil {
		d.cb(c, 0, d.attr)
	}
	c.submit(true)
	c.submit(false)
}
