// File: tcp/overlapped_conn.go
// Author: momentics <momentics@gmail.com>
//
// Completion-model connection. Buffers queue in fixed rings; at most one
// kernel operation per direction is outstanding and it covers every slot
// queued when it was posted.

package tcp

import (
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

type dialRequest struct {
	cb   OverlappedCallback
	attr any
}

// OverlappedConn is a TCP socket driven by a completion backend. All methods
// must be called from the loop's goroutine.
type OverlappedConn struct {
	reactor.Event

	port    Port
	rq      *ring
	wq      *ring
	riov    [][]byte
	wiov    [][]byte
	done    []completed
	reading bool
	writing bool
	dial    *dialRequest
	onClose func(c *OverlappedConn)
}

// NewOverlappedConn binds a connected handle to l and associates it with the
// loop's completion port.
func NewOverlappedConn(l *reactor.Loop, fd uintptr, port Port) (*OverlappedConn, error) {
	c := &OverlappedConn{
		port: port,
		rq:   newRing(ReadRingSize),
		wq:   newRing(WriteRingSize),
	}
	if err := c.Bind(l, fd, c); err != nil {
		return nil, err
	}
	if err := c.Register(); err != nil {
		c.Release()
		return nil, err
	}
	c.SetState(api.Connected)
	return c, nil
}

func (c *OverlappedConn) usable() bool {
	if !c.Bound() || c.Failed() {
		return false
	}
	s := c.State()
	return s == api.Connected || s == api.Connecting
}

// Queued returns the ring occupancy per direction.
func (c *OverlappedConn) Queued() (reads, writes int) {
	return c.rq.len(), c.wq.len()
}

// ReadQueueAdd queues one receive buffer. It returns false, queuing nothing,
// when the read ring is full, buf is empty or the connection is unusable.
func (c *OverlappedConn) ReadQueueAdd(buf []byte, cb OverlappedCallback, attr any) bool {
	return c.add(true, [][]byte{buf}, cb, attr)
}

// ReadQueueAddVec queues a scatter receive; cb fires once with the total.
func (c *OverlappedConn) ReadQueueAddVec(bufs [][]byte, cb OverlappedCallback, attr any) bool {
	return c.add(true, bufs, cb, attr)
}

// WriteQueueAdd queues one send buffer.
func (c *OverlappedConn) WriteQueueAdd(buf []byte, cb OverlappedCallback, attr any) bool {
	return c.add(false, [][]byte{buf}, cb, attr)
}

// WriteQueueAddVec queues a gather send; cb fires once with the total.
func (c *OverlappedConn) WriteQueueAddVec(bufs [][]byte, cb OverlappedCallback, attr any) bool {
	return c.add(false, bufs, cb, attr)
}

func (c *OverlappedConn) add(read bool, bufs [][]byte, cb OverlappedCallback, attr any) bool {
	if !c.usable() || totalLen(bufs) == 0 {
		return false
	}
	q := c.wq
	if read {
		q = c.rq
	}
	if !q.push(bufs, cb, attr) {
		return false
	}
	if read && c.EOF() {
		c.Loop().Defer(c.flushEOF)
		return true
	}
	c.submit(read)
	return true
}

func totalLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

// submit posts the waiting slots of one direction when it is idle.
func (c *OverlappedConn) submit(read bool) {
	if c.State() != api.Connected || c.Failed() {
		return
	}
	var err error
	if read {
		if c.reading || !c.rq.unsent() {
			return
		}
		c.riov = c.rq.submit(c.riov)
		if err = c.port.Recv(c.Event.Fd(), c.riov); err == nil {
			c.reading = true
			return
		}
		c.fail(api.OpRead, err)
	} else {
		if c.writing || !c.wq.unsent() {
			return
		}
		c.wiov = c.wq.submit(c.wiov)
		if err = c.port.Send(c.Event.Fd(), c.wiov); err == nil {
			c.writing = true
			return
		}
		c.fail(api.OpWrite, err)
	}
	c.Loop().Defer(c.abort)
}

func (c *OverlappedConn) fail(op string, err error) {
	c.Fail(api.Wrap(pkgName, op, "overlapped operation failed", err))
}

// abort fails whatever no kernel operation still references.
func (c *OverlappedConn) abort() {
	done := c.done[:0]
	if !c.reading {
		done = c.rq.drain(api.ErrorBytes, api.ErrorBytes, done)
	}
	if !c.writing {
		done = c.wq.drain(api.ErrorBytes, api.ErrorBytes, done)
	}
	c.run(done)
}

func (c *OverlappedConn) flushEOF() {
	if c.reading {
		return
	}
	c.run(c.rq.drain(0, 0, c.done[:0]))
}

func (c *OverlappedConn) run(done []completed) {
	for i := range done {
		d := done[i]
		done[i] = completed{}
		if d.cb != nil {
			d.cb(c, d.n, d.attr)
		}
	}
	c.done = done[:0]
}

// Handle is the loop dispatch entry point.
func (c *OverlappedConn) Handle(_ *reactor.Event, n reactor.Notification) {
	switch n.Op {
	case reactor.OpRead:
		c.readDone(n)
	case reactor.OpWrite:
		c.writeDone(n)
	case reactor.OpConnect:
		c.connectDone(n)
	default:
		// Fail and MarkReady land here with no kernel operation.
		if c.Failed() && c.State() != api.Closing {
			c.abort()
		}
	}
}

func (c *OverlappedConn) readDone(n reactor.Notification) {
	c.reading = false
	if c.State() == api.Closing {
		c.maybeFinishClose()
		return
	}
	done := c.done[:0]
	switch {
	case n.Err != nil:
		c.fail(api.OpRead, n.Err)
		done = c.rq.drain(api.ErrorBytes, api.ErrorBytes, done)
	case n.Bytes == 0:
		c.SetEOF()
		done = c.rq.drain(0, api.ErrorBytes, done)
	default:
		done = c.rq.consumeRead(n.Bytes, done)
		if c.Failed() {
			done = c.rq.drain(api.ErrorBytes, api.ErrorBytes, done)
		} else {
			c.submit(true)
		}
	}
	c.run(done)
}

func (c *OverlappedConn) writeDone(n reactor.Notification) {
	c.writing = false
	if c.State() == api.Closing {
		c.maybeFinishClose()
		return
	}
	done := c.done[:0]
	switch {
	case n.Err != nil:
		c.fail(api.OpWrite, n.Err)
		done = c.wq.drain(api.ErrorBytes, api.ErrorBytes, done)
	default:
		done = c.wq.consumeWrite(n.Bytes, done)
		if c.Failed() {
			done = c.wq.drain(api.ErrorBytes, api.ErrorBytes, done)
		} else {
			c.submit(false)
		}
	}
	c.run(done)
}

// Close cancels outstanding operations. cb runs once the kernel confirmed
// every cancellation, after all queued callbacks got api.ErrorBytes.
func (c *OverlappedConn) Close(cb func(c *OverlappedConn)) error {
	if !c.Bound() {
		return api.ErrClosed
	}
	switch c.State() {
	case api.Closing, api.Closed:
		return api.ErrClosed
	}
	c.onClose = cb
	c.SetState(api.Closing)
	if c.reading || c.writing || c.dial != nil {
		if err := c.port.Cancel(c.Event.Fd()); err != nil {
			c.Loop().Logger().WithFields(logrus.Fields{
				"fd": c.Event.Fd(),
				"op": api.OpCancel,
			}).WithError(err).Debug("cancel failed")
		}
		return nil
	}
	c.Loop().Defer(c.maybeFinishClose)
	return nil
}

func (c *OverlappedConn) maybeFinishClose() {
	if c.State() != api.Closing || c.reading || c.writing || c.dial != nil {
		return
	}
	done := c.rq.drain(api.ErrorBytes, api.ErrorBytes, c.done[:0])
	done = c.wq.drain(api.ErrorBytes, api.ErrorBytes, done)
	c.run(done)
	fd := c.Event.Fd()
	c.Release()
	if err := c.port.CloseSocket(fd); err != nil {
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
