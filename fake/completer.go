// File: fake/completer.go
// Author: momentics <momentics@gmail.com>
//
// Scripted completion backend that is also the tcp Port: submissions are
// recorded and complete only when the test says so.

package fake

import (
	"net/netip"
	"sync"
	"time"

	"github.com/brickingsoft/errors"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// ErrCanceled is the completion error of a canceled operation.
var ErrCanceled = errors.Define("operation canceled")

type handle struct {
	tok        reactor.Token
	associated bool
	recv       [][]byte
	send       [][]byte
	recvs      int
	sends      int
	accept     uintptr
	accepting  bool
	connecting bool
	remote     netip.AddrPort
	listening  bool
	accepted   bool
	connected  bool
	closed     bool
}

// Completer implements reactor.Backend with the completion model and the
// tcp.Port socket surface on top of it.
type Completer struct {
	mu      sync.Mutex
	handles map[uintptr]*handle
	pending []reactor.Notification
	next    uintptr
	recvErr error
	sendErr error
	adds    int
	closed  bool
}

// NewCompleter creates an empty completer. Handles start at 100.
func NewCompleter() *Completer {
	return &Completer{handles: make(map[uintptr]*handle), next: 100}
}

func (c *Completer) get(fd uintptr) *handle {
	h := c.handles[fd]
	if h == nil {
		h = &handle{}
		c.handles[fd] = h
	}
	return h
}

func (c *Completer) post(fd uintptr, op reactor.Op, n int, err error) {
	h := c.get(fd)
	if !h.associated {
		return
	}
	c.pending = append(c.pending, reactor.Notification{
		Token: h.tok,
		Kind:  reactor.KindCompletion,
		Op:    op,
		Bytes: n,
		Err:   err,
	})
}

func (c *Completer) Model() reactor.Model { return reactor.Completion }
func (c *Completer) Name() string         { return "fake-completer" }

func (c *Completer) Add(fd uintptr, tok reactor.Token, _ api.Interest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adds++
	h := c.get(fd)
	h.tok = tok
	h.associated = true
	return nil
}

func (c *Completer) Modify(uintptr, reactor.Token, api.Interest) error { return nil }
func (c *Completer) Delete(uintptr) error                              { return nil }

func (c *Completer) Wait(out []reactor.Notification, _ time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, api.ErrClosed
	}
	n := copy(out, c.pending)
	c.pending = append(c.pending[:0], c.pending[n:]...)
	return n, nil
}

func (c *Completer) Wakeup() error { return nil }

func (c *Completer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Associations returns the number of Add calls.
func (c *Completer) Associations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adds
}

// SetRecvError makes every following Recv submission fail with err.
func (c *Completer) SetRecvError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvErr = err
}

// SetSendError makes every following Send submission fail with err.
func (c *Completer) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *Completer) Socket(bool) (uintptr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fd := c.next
	c.next++
	c.get(fd)
	return fd, nil
}

func (c *Completer) Listen(fd uintptr, _ netip.AddrPort, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(fd).listening = true
	return nil
}

func clone(bufs [][]byte) [][]byte {
	out := make([][]byte, len(bufs))
	copy(out, bufs)
	return out
}

func (c *Completer) Recv(fd uintptr, bufs [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	if c.recvErr != nil {
		return c.recvErr
	}
	if h.closed {
		return api.ErrClosed
	}
	if h.recv != nil {
		return api.ErrQueueFull
	}
	h.recv = clone(bufs)
	h.recvs++
	return nil
}

func (c *Completer) Send(fd uintptr, bufs [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	if c.sendErr != nil {
		return c.sendErr
	}
	if h.closed {
		return api.ErrClosed
	}
	if h.send != nil {
		return api.ErrQueueFull
	}
	h.send = clone(bufs)
	h.sends++
	return nil
}

func (c *Completer) Accept(ln uintptr) (uintptr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(ln)
	if !h.listening || h.accepting {
		return 0, api.ErrQueueFull
	}
	s := c.next
	c.next++
	c.get(s)
	h.accept = s
	h.accepting = true
	return s, nil
}

func (c *Completer) Accepted(fd, _ uintptr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(fd).accepted = true
	return nil
}

func (c *Completer) Connect(fd uintptr, addr netip.AddrPort) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	h.connecting = true
	h.remote = addr
	return nil
}

func (c *Completer) Connected(fd uintptr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(fd).connected = true
	return nil
}

// Cancel completes every outstanding operation on fd with ErrCanceled.
func (c *Completer) Cancel(fd uintptr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	if h.recv != nil {
		h.recv = nil
		c.post(fd, reactor.OpRead, 0, ErrCanceled)
	}
	if h.send != nil {
		h.send = nil
		c.post(fd, reactor.OpWrite, 0, ErrCanceled)
	}
	if h.accepting {
		h.accepting = false
		c.post(fd, reactor.OpAccept, 0, ErrCanceled)
	}
	if h.connecting {
		h.connecting = false
		c.post(fd, reactor.OpConnect, 0, ErrCanceled)
	}
	return nil
}

// CloseSocket marks fd closed.
func (c *Completer) CloseSocket(fd uintptr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(fd).closed = true
	return nil
}

// Fill copies data into the outstanding receive of fd, in buffer order,
// and completes it with the number of bytes copied. An empty data
// completes it with 0, the EOF report.
func (c *Completer) Fill(fd uintptr, data []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	if h.recv == nil {
		return 0
	}
	n := 0
	for _, b := range h.recv {
		m := copy(b, data[n:])
		n += m
		if m < len(b) {
			break
		}
	}
	h.recv = nil
	c.post(fd, reactor.OpRead, n, nil)
	return n
}

// CompleteRecv completes the outstanding receive of fd as given.
func (c *Completer) CompleteRecv(fd uintptr, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	h.recv = nil
	c.post(fd, reactor.OpRead, n, err)
}

// CompleteSend completes the outstanding send of fd with n bytes.
func (c *Completer) CompleteSend(fd uintptr, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	h.send = nil
	c.post(fd, reactor.OpWrite, n, err)
}

// CompleteAccept completes the outstanding accept on ln and returns the
// accepted handle.
func (c *Completer) CompleteAccept(ln uintptr, err error) uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(ln)
	if !h.accepting {
		return 0
	}
	h.accepting = false
	c.post(ln, reactor.OpAccept, 0, err)
	return h.accept
}

// CompleteConnect completes the outstanding connect of fd.
func (c *Completer) CompleteConnect(fd uintptr, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	if !h.connecting {
		return
	}
	h.connecting = false
	c.post(fd, reactor.OpConnect, 0, err)
}

// Outstanding returns the buffers of the pending receive and send of fd,
// nil when none.
func (c *Completer) Outstanding(fd uintptr) (recv, send [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	return h.recv, h.send
}

// Submissions returns how many receives and sends fd posted.
func (c *Completer) Submissions(fd uintptr) (recvs, sends int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	return h.recvs, h.sends
}

// HandleState reports the lifecycle flags recorded for fd.
func (c *Completer) HandleState(fd uintptr) (accepted, connected, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.get(fd)
	return h.accepted, h.connected, h.closed
}
