// File: reactor/event.go
// Author: momentics <momentics@gmail.com>
//
// Event record: the per-descriptor state shared by every socket kind.

package reactor

import (
	"github.com/momentics/hioload-reactor/api"
)

// NoFd marks an Event with no descriptor attached.
const NoFd = ^uintptr(0)

// Handler is the dispatch target of an Event. Readiness records receive a
// KindReady notification once per tick while queued; completion records
// receive every completion addressed to them.
type Handler interface {
	Handle(ev *Event, n Notification)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev *Event, n Notification)

// Handle calls f(ev, n).
func (f HandlerFunc) Handle(ev *Event, n Notification) {
	f(ev, n)
}

type linkState uint8

const (
	unlinked linkState = iota
	queued
)

// link is one queue membership. A record carries one per queue so status
// and ready membership never alias.
type link struct {
	state linkState
	next  *Event
}

// Event is the minimal per-descriptor record. It is meant to be embedded by
// value in the socket type that owns it.
type Event struct {
	fd      uintptr
	token   Token
	loop    *Loop
	handler Handler

	interest   api.Interest
	kernel     api.Interest
	registered bool

	readable bool
	writable bool
	failed   bool
	eof      bool
	cause    error
	state    api.Lifecycle

	status link
	ready  link
}

// Bind attaches fd to l and dispatches to h. Both directions start out
// assumed ready so the first I/O attempt is never deferred.
func (ev *Event) Bind(l *Loop, fd uintptr, h Handler) error {
	if l.closed {
		return api.ErrLoopClosed
	}
	ev.fd = fd
	ev.loop = l
	ev.handler = h
	ev.interest = api.Interest{}
	ev.kernel = api.Interest{}
	ev.registered = false
	ev.readable = true
	ev.writable = true
	ev.failed = false
	ev.eof = false
	ev.cause = nil
	ev.state = api.Idle
	ev.token = l.slab.alloc(ev)
	return nil
}

// Fd returns the bound descriptor or NoFd.
func (ev *Event) Fd() uintptr {
	if ev.token == NoToken {
		return NoFd
	}
	return ev.fd
}

// Token returns the kernel-facing handle, NoToken once released.
func (ev *Event) Token() Token { return ev.token }

// Loop returns the owning loop.
func (ev *Event) Loop() *Loop { return ev.loop }

// Bound reports whether the record holds a live token.
func (ev *Event) Bound() bool { return ev.token != NoToken }

func (ev *Event) Readable() bool { return ev.readable }
func (ev *Event) Writable() bool { return ev.writable }
func (ev *Event) ClearReadable() { ev.readable = false }
func (ev *Event) ClearWritable() { ev.writable = false }

// Failed reports whether the record carries a permanent error.
func (ev *Event) Failed() bool { return ev.failed }

// Err returns the recorded failure cause.
func (ev *Event) Err() error { return ev.cause }

// EOF reports whether the peer closed its sending side.
func (ev *Event) EOF() bool { return ev.eof }

// SetEOF records an orderly peer shutdown.
func (ev *Event) SetEOF() { ev.eof = true }

// State returns the lifecycle state.
func (ev *Event) State() api.Lifecycle { return ev.state }

// SetState moves the lifecycle state.
func (ev *Event) SetState(s api.Lifecycle) { ev.state = s }

// Interest returns the requested interest.
func (ev *Event) Interest() api.Interest { return ev.interest }

// Registered reports whether the backend currently knows the descriptor.
func (ev *Event) Registered() bool { return ev.registered }

// Fail sets the error flag permanently and queues the record for dispatch so
// outstanding requests get flushed. The first cause wins.
func (ev *Event) Fail(cause error) {
	if !ev.failed {
		ev.failed = true
		ev.cause = cause
	}
	ev.readable = false
	ev.writable = false
	ev.MarkReady()
}

// RequestInterest asks the loop to watch the given directions. The kernel
// call is deferred to the next status flush and issued once however often
// this is called before it.
func (ev *Event) RequestInterest(read, write bool) {
	ev.interest = ev.interest.Union(api.Interest{Read: read, Write: write})
	if ev.token == NoToken || ev.failed || ev.fd == NoFd {
		return
	}
	if ev.registered && ev.kernel.Covers(ev.interest) {
		return
	}
	ev.loop.pushStatus(ev)
}

// Register performs the kernel registration immediately. Completion records
// use it to associate a handle before posting the first operation.
func (ev *Event) Register() error {
	if ev.token == NoToken {
		return api.ErrClosed
	}
	return ev.loop.register(ev)
}

// MarkReady queues the record for dispatch in the current or next tick.
// Queuing an already queued record is a no-op.
func (ev *Event) MarkReady() {
	if ev.token == NoToken {
		return
	}
	ev.loop.pushReady(ev)
}

// Deregister removes the descriptor from the backend but keeps the token so
// queued dispatch and late completions still reach the handler.
func (ev *Event) Deregister() {
	if !ev.registered {
		return
	}
	ev.loop.deregister(ev)
}

// Release deregisters and frees the token. Kernel reports still in flight
// for the old token are dropped.
func (ev *Event) Release() {
	if ev.token == NoToken {
		return
	}
	ev.Deregister()
	ev.loop.slab.release(ev.token)
	ev.token = NoToken
	ev.state = api.Closed
	ev.readable = false
	ev.writable = false
}

func (ev *Event) apply(n Notification) {
	if n.Read || n.HangUp {
		ev.readable = true
	}
	if n.Write {
		ev.writable = true
	}
	if n.Error && !ev.failed {
		ev.Fail(api.ErrPeerReset)
		return
	}
	ev.MarkReady()
}
