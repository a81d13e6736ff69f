// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
//
// Per-thread event loop: status flush, kernel wait, timer wheel, ready
// dispatch, completion dispatch, deferred tasks.

package reactor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/timer"
)

const pkgName = "reactor"

type completion struct {
	ev *Event
	n  Notification
}

// Loop multiplexes the sockets of one thread.
type Loop struct {
	backend Backend
	cfg     Config
	log     logrus.FieldLogger

	wheel   *timer.Wheel
	expired timer.Queue
	events  []Notification
	start   time.Time
	now     uint64
	elapsed uint64

	statusHead, statusTail *Event
	readyHead, readyTail   *Event
	completions            []completion
	deferred               *queue.Queue

	slab    slab
	stopped atomic.Bool
	closed  bool
}

// New creates a loop over the platform's default backend.
func New(opts ...Option) (*Loop, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.normalize()
	b, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return newLoop(b, cfg), nil
}

// NewWithBackend creates a loop over b. The loop owns b from now on.
func NewWithBackend(b Backend, opts ...Option) *Loop {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.normalize()
	return newLoop(b, cfg)
}

func newLoop(b Backend, cfg *Config) *Loop {
	l := &Loop{
		backend:  b,
		cfg:      *cfg,
		events:   make([]Notification, cfg.MaxEvents),
		start:    cfg.Clock(),
		wheel:    timer.New(0),
		deferred: queue.New(),
	}
	l.log = cfg.Logger.WithField("backend", b.Name())
	return l
}

// Backend returns the multiplexer the loop drives.
func (l *Loop) Backend() Backend { return l.backend }

// Model is a shortcut for Backend().Model().
func (l *Loop) Model() Model { return l.backend.Model() }

// Logger returns the loop's logger, pre-tagged with the backend name.
func (l *Loop) Logger() logrus.FieldLogger { return l.log }

// Now returns the current tick, monotonic since loop creation.
func (l *Loop) Now() uint64 { return l.now }

// Elapsed returns the number of ticks the timer wheel has been advanced.
func (l *Loop) Elapsed() uint64 { return l.elapsed }

// Tick returns the duration of one tick.
func (l *Loop) Tick() time.Duration { return l.cfg.Tick }

// Bound returns the number of records holding a token.
func (l *Loop) Bound() int { return l.slab.live }

// Arm schedules e to fire ticks from now on this loop.
func (l *Loop) Arm(e *timer.Entry, ticks uint64) {
	l.wheel.Link(e, l.now+ticks)
}

// Cancel disarms e. No-op when e is not armed.
func (l *Loop) Cancel(e *timer.Entry) {
	l.wheel.Unlink(e)
}

// Defer runs fn after the current tick's dispatch, never synchronously.
func (l *Loop) Defer(fn func()) {
	l.deferred.Add(fn)
}

// Run drives the loop until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()
	for !l.stopped.Load() {
		if err := l.RunOnce(true); err != nil {
			return err
		}
	}
	return nil
}

// Stop makes Run return after the current tick. Safe from any goroutine.
func (l *Loop) Stop() {
	if l.stopped.Swap(true) {
		return
	}
	if err := l.backend.Wakeup(); err != nil {
		l.log.WithError(err).Warn("wakeup failed")
	}
}

// RunOnce performs one wait-dispatch cycle. With block false the kernel
// wait does not sleep.
func (l *Loop) RunOnce(block bool) error {
	if l.closed {
		return api.ErrLoopClosed
	}
	l.flushStatus()

	n, err := l.backend.Wait(l.events, l.waitTimeout(block))
	if err != nil {
		return api.Wrap(pkgName, api.OpWait, "backend wait failed", err)
	}
	for i := 0; i < n; i++ {
		l.deliver(l.events[i])
		l.events[i] = Notification{}
	}

	l.advance()
	ready := l.dispatchReady()
	completed := l.dispatchCompletions()
	l.runDeferred()
	l.cfg.Recorder.Tick(l.backend.Name(), ready, completed)
	return nil
}

// Close releases the backend. Every record must have been released first.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	if l.slab.live > 0 {
		return api.ErrLoopBusy
	}
	l.closed = true
	return l.backend.Close()
}

func (l *Loop) waitTimeout(block bool) time.Duration {
	if !block || l.readyHead != nil || l.deferred.Length() > 0 || l.statusHead != nil {
		return 0
	}
	delta := l.wheel.Timeout()
	if delta == timer.Never {
		return -1
	}
	deadline := time.Duration(l.now+delta) * l.cfg.Tick
	if left := deadline - l.cfg.Clock().Sub(l.start); left > 0 {
		return left
	}
	return 0
}

func (l *Loop) deliver(n Notification) {
	ev := l.slab.get(n.Token)
	if ev == nil {
		return
	}
	switch n.Kind {
	case KindReady:
		ev.apply(n)
	case KindCompletion:
		l.completions = append(l.completions, completion{ev: ev, n: n})
	}
}

func (l *Loop) advance() {
	now := uint64(l.cfg.Clock().Sub(l.start) / l.cfg.Tick)
	if now <= l.now && l.wheel.Timeout() != 0 {
		return
	}
	if now > l.now {
		l.elapsed += now - l.now
		l.now = now
	}
	l.wheel.RunExpired(&l.expired, l.now)
	fired := 0
	for e := l.expired.Pop(); e != nil; e = l.expired.Pop() {
		e.Fire()
		fired++
	}
	if fired > 0 {
		l.cfg.Recorder.TimersFired(fired)
	}
}

func (l *Loop) pushStatus(ev *Event) {
	if ev.status.state == queued {
		return
	}
	ev.status = link{state: queued}
	if l.statusTail == nil {
		l.statusHead = ev
	} else {
		l.statusTail.status.next = ev
	}
	l.statusTail = ev
}

func (l *Loop) pushReady(ev *Event) {
	if ev.ready.state == queued {
		return
	}
	ev.ready = link{state: queued}
	if l.readyTail == nil {
		l.readyHead = ev
	} else {
		l.readyTail.ready.next = ev
	}
	l.readyTail = ev
}

func (l *Loop) flushStatus() {
	ev := l.statusHead
	l.statusHead, l.statusTail = nil, nil
	for ev != nil {
		next := ev.status.next
		ev.status = link{}
		if ev.token != NoToken && !ev.failed && ev.state != api.Closing &&
			!(ev.registered && ev.kernel.Covers(ev.interest)) {
			_ = l.register(ev)
		}
		ev = next
	}
}

func (l *Loop) register(ev *Event) error {
	var err error
	op := api.OpAdd
	if ev.registered {
		op = api.OpModify
		err = l.backend.Modify(ev.fd, ev.token, ev.interest)
	} else {
		err = l.backend.Add(ev.fd, ev.token, ev.interest)
	}
	l.cfg.Recorder.Registration(l.backend.Name(), err)
	if err != nil {
		l.log.WithFields(logrus.Fields{
			"fd": ev.fd,
			"op": op,
		}).WithError(err).Error("registration failed")
		ev.Fail(api.From(api.ErrRegister, pkgName, op, err))
		return err
	}
	ev.registered = true
	ev.kernel = ev.interest
	return nil
}

func (l *Loop) deregister(ev *Event) {
	if err := l.backend.Delete(ev.fd); err != nil {
		l.log.WithFields(logrus.Fields{
			"fd": ev.fd,
			"op": api.OpDelete,
		}).WithError(err).Debug("deregistration failed")
	}
	ev.registered = false
	ev.kernel = api.Interest{}
	ev.interest = api.Interest{}
}

// dispatchReady hands every queued record to its handler once. Records
// queued while dispatching wait for the next tick.
func (l *Loop) dispatchReady() int {
	ev := l.readyHead
	l.readyHead, l.readyTail = nil, nil
	count := 0
	for ev != nil {
		next := ev.ready.next
		ev.ready = link{}
		if ev.token != NoToken && ev.handler != nil {
			ev.handler.Handle(ev, Notification{Token: ev.token, Kind: KindReady})
			count++
		}
		ev = next
	}
	return count
}

func (l *Loop) dispatchCompletions() int {
	if len(l.completions) == 0 {
		return 0
	}
	batch := l.completions
	l.completions = nil
	count := 0
	for i := range batch {
		c := batch[i]
		batch[i] = completion{}
		if c.ev.token != c.n.Token || c.ev.handler == nil {
			continue
		}
		c.ev.handler.Handle(c.ev, c.n)
		count++
	}
	if l.completions == nil {
		l.completions = batch[:0]
	}
	return count
}

func (l *Loop) runDeferred() {
	n := l.deferred.Length()
	for i := 0; i < n; i++ {
		fn := l.deferred.Remove().(func())
		fn()
	}
	if n > 0 {
		l.cfg.Recorder.Deferred(n)
	}
}
