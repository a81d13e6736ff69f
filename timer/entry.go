// File: timer/entry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer entries and the caller-owned expiry queue.

package timer

// Func is invoked when an entry expires.
type Func func(e *Entry)

type location uint8

const (
	nowhere location = iota
	inSlot
	inDue
	inOverflow
	inQueue
)

// Entry is one armed (or idle) timeout. The entry never owns memory; it is
// embedded in whatever structure the timeout guards.
type Entry struct {
	prev, next *Entry
	wheel      *Wheel
	queue      *Queue
	cb         Func
	expire     uint64
	level      uint8
	slot       uint8
	loc        location
}

// NewEntry returns an unlinked entry calling cb on expiry.
func NewEntry(cb Func) *Entry {
	return &Entry{cb: cb}
}

// Init resets e to an unlinked entry calling cb. It must not be called on a
// linked entry.
func (e *Entry) Init(cb Func) {
	*e = Entry{cb: cb}
}

// SetCallback replaces the expiry callback.
func (e *Entry) SetCallback(cb Func) {
	e.cb = cb
}

// Linked reports whether e is armed in a wheel or parked in a Queue.
func (e *Entry) Linked() bool {
	return e.loc != nowhere
}

// ExpireAt returns the absolute tick e was last armed for.
func (e *Entry) ExpireAt() uint64 {
	return e.expire
}

// Fire invokes the entry callback.
func (e *Entry) Fire() {
	if e.cb != nil {
		e.cb(e)
	}
}

// Unlink cancels e. Calling it on an unlinked entry is a no-op.
func (e *Entry) Unlink() {
	switch e.loc {
	case nowhere:
		return
	case inQueue:
		detach(e)
		e.queue.n--
		e.queue = nil
	default:
		w := e.wheel
		detach(e)
		if e.loc == inSlot && w.slots[e.level][e.slot].empty() {
			w.occupied[e.level] &^= 1 << e.slot
		}
		w.count--
		e.wheel = nil
	}
	e.loc = nowhere
}

// Queue collects expired entries for caller-driven dispatch. The zero value
// is ready to use.
type Queue struct {
	l list
	n int
}

func (q *Queue) lazyInit() {
	if q.l.root.next == nil {
		q.l.init()
	}
}

func (q *Queue) push(e *Entry) {
	q.lazyInit()
	q.l.push(e)
	e.loc = inQueue
	e.queue = q
	q.n++
}

// Pop removes and returns the oldest entry, or nil when empty.
func (q *Queue) Pop() *Entry {
	q.lazyInit()
	e := q.l.front()
	if e == nil {
		return nil
	}
	e.Unlink()
	return e
}

// Len returns the number of parked entries.
func (q *Queue) Len() int {
	return q.n
}
