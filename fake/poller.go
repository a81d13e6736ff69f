// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the reactor backends and
// the socket syscall surfaces.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

type registration struct {
	tok reactor.Token
	in  api.Interest
}

// Poller is a scripted readiness backend. Nothing becomes ready until the
// test calls Signal; Wait never blocks.
type Poller struct {
	mu       sync.Mutex
	regs     map[uintptr]registration
	pending  []reactor.Notification
	addErr   error
	modErr   error
	adds     int
	modifies int
	deletes  int
	waits    int
	timeout  time.Duration
	wakeups  int
	closed   bool
}

// NewPoller creates an empty poller.
func NewPoller() *Poller {
	return &Poller{regs: make(map[uintptr]registration)}
}

func (p *Poller) Model() reactor.Model { return reactor.Readiness }
func (p *Poller) Name() string         { return "fake-poller" }

// SetAddError makes every following Add fail with err.
func (p *Poller) SetAddError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addErr = err
}

// SetModifyError makes every following Modify fail with err.
func (p *Poller) SetModifyError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modErr = err
}

func (p *Poller) Add(fd uintptr, tok reactor.Token, in api.Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adds++
	if p.addErr != nil {
		return p.addErr
	}
	p.regs[fd] = registration{tok: tok, in: in}
	return nil
}

func (p *Poller) Modify(fd uintptr, tok reactor.Token, in api.Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modifies++
	if p.modErr != nil {
		return p.modErr
	}
	p.regs[fd] = registration{tok: tok, in: in}
	return nil
}

func (p *Poller) Delete(fd uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes++
	delete(p.regs, fd)
	return nil
}

// Calls returns the number of Add, Modify and Delete calls so far.
func (p *Poller) Calls() (adds, modifies, deletes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adds, p.modifies, p.deletes
}

// Registered returns the interest fd is registered with.
func (p *Poller) Registered(fd uintptr) (api.Interest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	return r.in, ok
}

// Token returns the token fd is registered under.
func (p *Poller) Token(fd uintptr) (reactor.Token, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	return r.tok, ok
}

// Signal reports fd ready once. Unregistered descriptors are ignored, like
// the kernel would.
func (p *Poller) Signal(fd uintptr, read, write bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	if !ok {
		return
	}
	p.pending = append(p.pending, reactor.Notification{
		Token: r.tok,
		Kind:  reactor.KindReady,
		Read:  read && r.in.Read,
		Write: write && r.in.Write,
	})
}

// HangUp reports an orderly peer shutdown on fd.
func (p *Poller) HangUp(fd uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.regs[fd]; ok {
		p.pending = append(p.pending, reactor.Notification{Token: r.tok, Kind: reactor.KindReady, HangUp: true})
	}
}

// Error reports a socket error on fd.
func (p *Poller) Error(fd uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.regs[fd]; ok {
		p.pending = append(p.pending, reactor.Notification{Token: r.tok, Kind: reactor.KindReady, Error: true})
	}
}

// Inject queues a raw notification, e.g. one carrying a stale token.
func (p *Poller) Inject(n reactor.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, n)
}

func (p *Poller) Wait(out []reactor.Notification, timeout time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, api.ErrClosed
	}
	p.waits++
	p.timeout = timeout
	n := copy(out, p.pending)
	p.pending = append(p.pending[:0], p.pending[n:]...)
	return n, nil
}

// Waits returns the number of Wait calls.
func (p *Poller) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

// LastTimeout returns the timeout of the latest Wait.
func (p *Poller) LastTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

// Wakeups returns the number of Wakeup calls.
func (p *Poller) Wakeups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wakeups
}

func (p *Poller) Wakeup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakeups++
	return nil
}

func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Poller) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
