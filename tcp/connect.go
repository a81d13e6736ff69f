// File: tcp/connect.go
// Author: momentics <momentics@gmail.com>
//
// Non-blocking connect for the readiness model.

package tcp

import (
	"net/netip"
	"syscall"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// Connect opens a socket to addr. StatusDone means the connection is
// already established; StatusPending means cb fires with 0 once it is, or
// with api.ErrorBytes when it fails. Reads and writes may be queued on the
// returned Conn right away.
func Connect(l *reactor.Loop, addr netip.AddrPort, sys Sys, opts Options, cb Callback, attr any) (*Conn, api.Status, error) {
	ip := addr.Addr()
	fd, err := sys.Socket(ip.Is6() && !ip.Is4In6())
	if err != nil {
		return nil, api.StatusError, api.Wrap(pkgName, api.OpConnect, "socket failed", err)
	}
	if opts.NoDelay {
		if err := sys.SetNoDelay(fd, true); err != nil {
			_ = sys.Close(fd)
			return nil, api.StatusError, api.Wrap(pkgName, api.OpConnect, "setsockopt failed", err)
		}
	}
	c, err := NewConn(l, fd, sys)
	if err != nil {
		_ = sys.Close(fd)
		return nil, api.StatusError, err
	}
	for {
		err = sys.Connect(fd, addr)
		if !interrupted(err) {
			break
		}
	}
	switch {
	case err == nil:
		return c, api.StatusDone, nil
	case err == syscall.EINPROGRESS || wouldBlock(err):
		c.SetState(api.Connecting)
		c.connect = &request{cb: cb, attr: attr}
		c.ClearWritable()
		c.RequestInterest(false, true)
		return c, api.StatusPending, nil
	}
	c.Release()
	_ = sys.Close(fd)
	return nil, api.StatusError, api.Wrap(pkgName, api.OpConnect, "connect failed", err)
}

func (c *Conn) finishConnect() {
	if c.Failed() || !c.Writable() {
		return
	}
	err := c.sys.SocketError(c.sock())
	switch {
	case err == syscall.EINPROGRESS || wouldBlock(err):
		c.ClearWritable()
		c.RequestInterest(false, true)
		return
	case err != nil:
		c.fail(api.OpConnect, err)
		return
	}
	r := c.connect
	c.connect = nil
	c.SetState(api.Connected)
	if r != nil {
		r.complete(c, 0)
	}
}
