// File: tcp/conn.go
// Author: momentics <momentics@gmail.com>
//
// Readiness-model connection. Each direction keeps a FIFO of requests that
// drains to EAGAIN whenever the loop reports readiness.

package tcp

import (
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/timer"
)

// Conn is a non-blocking TCP socket bound to one loop. All methods must be
// called from the loop's goroutine.
type Conn struct {
	reactor.Event

	sys      Sys
	in       requestQueue
	out      requestQueue
	connect  *request
	deadline timer.Entry
	onClose  func(c *Conn)
}

// NewConn wraps a connected non-blocking descriptor. No syscall is made
// until the first request would block.
func NewConn(l *reactor.Loop, fd int, sys Sys) (*Conn, error) {
	c := &Conn{sys: sys}
	if err := c.Bind(l, uintptr(fd), c); err != nil {
		return nil, err
	}
	c.SetState(api.Connected)
	c.deadline.Init(c.expire)
	return c, nil
}

func (c *Conn) sock() int { return int(c.Event.Fd()) }

func (c *Conn) usable() bool {
	if !c.Bound() || c.Failed() {
		return false
	}
	s := c.State()
	return s != api.Closing && s != api.Closed
}

// Pending returns the number of queued reads and writes.
func (c *Conn) Pending() (reads, writes int) {
	return c.in.len(), c.out.len()
}

// Read receives into buf. StatusDone means n bytes arrived synchronously
// (0 after the peer closed); StatusPending means cb fires later with the
// count, 0 on EOF or api.ErrorBytes.
func (c *Conn) Read(buf []byte, cb Callback, attr any) (int, api.Status) {
	if len(buf) == 0 {
		return 0, api.StatusDone
	}
	if !c.usable() {
		return api.ErrorBytes, api.StatusError
	}
	if c.EOF() && c.in.empty() {
		return 0, api.StatusDone
	}
	if c.in.empty() && c.Readable() && c.State() == api.Connected {
		n, err := c.recv(buf)
		switch {
		case err == nil && n > 0:
			return n, api.StatusDone
		case err == nil:
			c.SetEOF()
			return 0, api.StatusDone
		case !wouldBlock(err):
			c.fail(api.OpRead, err)
			return api.ErrorBytes, api.StatusError
		}
		c.ClearReadable()
	}
	c.in.push(&request{buf: buf, cb: cb, attr: attr})
	c.RequestInterest(true, false)
	if c.Readable() {
		c.MarkReady()
	}
	return 0, api.StatusPending
}

// Write sends buf. Partial progress is kept; cb fires once with len(buf)
// when everything went out.
func (c *Conn) Write(buf []byte, cb Callback, attr any) (int, api.Status) {
	if len(buf) == 0 {
		return 0, api.StatusDone
	}
	return c.write(&request{buf: buf, cb: cb, attr: attr})
}

// Writev is Write over several buffers sent as one request.
func (c *Conn) Writev(bufs [][]byte, cb Callback, attr any) (int, api.Status) {
	r := &request{bufs: bufs, cb: cb, attr: attr}
	if r.size() == 0 {
		return 0, api.StatusDone
	}
	return c.write(r)
}

func (c *Conn) write(r *request) (int, api.Status) {
	if !c.usable() {
		return api.ErrorBytes, api.StatusError
	}
	if c.out.empty() && c.Writable() && c.State() == api.Connected {
		done, err := c.send(r)
		if err != nil {
			c.fail(api.OpWrite, err)
			return api.ErrorBytes, api.StatusError
		}
		if done {
			return r.done, api.StatusDone
		}
	}
	c.out.push(r)
	c.RequestInterest(false, true)
	if c.Writable() {
		c.MarkReady()
	}
	return 0, api.StatusPending
}

func (c *Conn) recv(p []byte) (int, error) {
	for {
		n, err := c.sys.Read(c.sock(), p)
		if interrupted(err) {
			continue
		}
		return n, err
	}
}

// send writes r until it completes or the socket would block.
func (c *Conn) send(r *request) (bool, error) {
	total := r.size()
	for r.done < total {
		n, err := c.sys.Writev(c.sock(), r.remaining())
		switch {
		case interrupted(err):
			continue
		case wouldBlock(err) || (err == nil && n == 0):
			c.ClearWritable()
			return false, nil
		case err != nil:
			return false, err
		}
		r.done += n
	}
	return true, nil
}

func (c *Conn) fail(op string, err error) {
	c.Fail(api.Wrap(pkgName, op, "socket error", err))
}

// Handle is the loop dispatch entry point.
func (c *Conn) Handle(_ *reactor.Event, _ reactor.Notification) {
	switch c.State() {
	case api.Closed:
		return
	case api.Closing:
		c.finishClose()
		return
	case api.Connecting:
		c.finishConnect()
	}
	if c.State() == api.Connected {
		c.drainOut()
		c.drainIn()
	}
	if c.Failed() {
		c.flush()
	}
}

func (c *Conn) drainIn() {
	for c.usable() && c.Readable() && !c.in.empty() {
		r := c.in.front()
		n, err := c.recv(r.buf)
		switch {
		case err == nil && n > 0:
			c.in.pop()
			r.complete(c, n)
		case err == nil:
			c.SetEOF()
			for r := c.in.detach(); r != nil; {
				next := r.next
				r.complete(c, 0)
				r = next
			}
			return
		case wouldBlock(err):
			c.ClearReadable()
			c.RequestInterest(true, false)
			return
		default:
			c.fail(api.OpRead, err)
			return
		}
	}
}

func (c *Conn) drainOut() {
	for c.usable() && c.Writable() && !c.out.empty() {
		r := c.out.front()
		done, err := c.send(r)
		if err != nil {
			c.fail(api.OpWrite, err)
			return
		}
		if !done {
			c.RequestInterest(false, true)
			return
		}
		c.out.pop()
		r.complete(c, r.done)
	}
}

// flush fails every queued request with api.ErrorBytes, connect first.
func (c *Conn) flush() {
	if r := c.connect; r != nil {
		c.connect = nil
		r.complete(c, api.ErrorBytes)
	}
	for _, q := range []*requestQueue{&c.in, &c.out} {
		for r := q.detach(); r != nil; {
			next := r.next
			r.complete(c, api.ErrorBytes)
			r = next
		}
	}
}

// SetTimeout fails the connection with api.ErrTimeout after ticks loop
// ticks. Zero cancels; a later call re-arms.
func (c *Conn) SetTimeout(ticks uint64) {
	if ticks == 0 {
		c.Loop().Cancel(&c.deadline)
		return
	}
	if !c.Bound() {
		return
	}
	c.Loop().Arm(&c.deadline, ticks)
}

func (c *Conn) expire(*timer.Entry) {
	if !c.usable() {
		return
	}
	c.Fail(api.ErrTimeout)
}

// Close shuts the socket down. cb runs from a later dispatch, after every
// queued request got its api.ErrorBytes callback.
func (c *Conn) Close(cb func(c *Conn)) error {
	if !c.Bound() {
		return api.ErrClosed
	}
	switch c.State() {
	case api.Closing, api.Closed:
		return api.ErrClosed
	}
	busy := c.connect != nil || !c.in.empty() || !c.out.empty()
	c.onClose = cb
	c.Loop().Cancel(&c.deadline)
	c.SetState(api.Closing)
	c.Deregister()
	if busy {
		c.MarkReady()
	} else {
		c.Loop().Defer(c.finishClose)
	}
	return nil
}

func (c *Conn) finishClose() {
	if c.State() != api.Closing {
		return
	}
	c.flush()
	fd := c.sock()
	c.Release()
	if err := c.sys.Close(fd); err != nil {
		c.Loop().Logger().WithFields(logrus.Fields{
			"fd": fd,
			"op": api.OpClose,
		}).WithError(err).Debug("close failed")
	}
	if cb := c.onClose; cb != nil {
		c.onClose = nil
		cb(c)
	}
}
