// File: timer/wheel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hierarchical timer wheel: six levels of 32 slots. An entry sits on the
// lowest level whose digit differs from the current tick; it cascades down
// when the clock reaches its slot boundary and fires from level zero.

package timer

import "math/bits"

const (
	wheelBits  = 5
	wheelSlots = 1 << wheelBits
	wheelMask  = wheelSlots - 1
	numWheels  = 6
	spanBits   = wheelBits * numWheels
	spanMask   = 1<<spanBits - 1
)

// Never is returned by Timeout when no entry is armed.
const Never = ^uint64(0)

// Wheel schedules entries by absolute tick. It is not safe for concurrent
// use; the owning reactor thread is the only caller.
type Wheel struct {
	cur      uint64
	slots    [numWheels][wheelSlots]list
	occupied [numWheels]uint32
	due      list
	overflow list
	count    int
	ticking  bool
}

// New creates a wheel anchored at tick now.
func New(now uint64) *Wheel {
	w := &Wheel{cur: now}
	for i := range w.slots {
		for j := range w.slots[i] {
			w.slots[i][j].init()
		}
	}
	w.due.init()
	w.overflow.init()
	return w
}

// Now returns the last tick the wheel advanced to.
func (w *Wheel) Now() uint64 {
	return w.cur
}

// Len returns the number of armed entries.
func (w *Wheel) Len() int {
	return w.count
}

// Link arms e to fire at tick at. An already linked entry is moved.
// Deadlines at or before the current tick fire on the next Run.
func (w *Wheel) Link(e *Entry, at uint64) {
	e.Unlink()
	e.expire = at
	e.wheel = w
	w.count++
	w.place(e)
}

// Unlink cancels e; no-op when e is not linked.
func (w *Wheel) Unlink(e *Entry) {
	e.Unlink()
}

// Run advances the wheel to now and invokes the callback of every entry
// whose deadline is at or before now. Moving backwards is a no-op.
func (w *Wheel) Run(now uint64) {
	w.advance(now, nil)
}

// RunExpired is Run without callbacks: expired entries are moved to q in
// expiry order and the caller dispatches them.
func (w *Wheel) RunExpired(q *Queue, now uint64) {
	w.advance(now, q)
}

// Timeout returns the number of ticks until the earliest deadline, 0 if an
// entry is already due, or Never when the wheel is empty.
func (w *Wheel) Timeout() uint64 {
	if w.count == 0 {
		return Never
	}
	if !w.due.empty() {
		return 0
	}
	if pending := above(w.occupied[0], uint(w.cur&wheelMask)+1); pending != 0 {
		return (w.cur&^wheelMask + uint64(bits.TrailingZeros32(pending))) - w.cur
	}
	for lvl := 1; lvl < numWheels; lvl++ {
		digit := uint((w.cur >> (lvl * wheelBits)) & wheelMask)
		if pending := above(w.occupied[lvl], digit+1); pending != 0 {
			slot := bits.TrailingZeros32(pending)
			return earliest(&w.slots[lvl][slot]) - w.cur
		}
	}
	if !w.overflow.empty() {
		return earliest(&w.overflow) - w.cur
	}
	return Never
}

func (w *Wheel) place(e *Entry) {
	if e.expire <= w.cur {
		if w.ticking {
			// reached during a cascade of the tick being processed
			w.putSlot(e, 0, uint8(w.cur&wheelMask))
			return
		}
		w.due.push(e)
		e.loc = inDue
		return
	}
	lvl := (bits.Len64(w.cur^e.expire) - 1) / wheelBits
	if lvl >= numWheels {
		w.overflow.push(e)
		e.loc = inOverflow
		return
	}
	w.putSlot(e, uint8(lvl), uint8((e.expire>>(lvl*wheelBits))&wheelMask))
}

func (w *Wheel) putSlot(e *Entry, lvl, slot uint8) {
	w.slots[lvl][slot].push(e)
	w.occupied[lvl] |= 1 << slot
	e.level = lvl
	e.slot = slot
	e.loc = inSlot
}

func (w *Wheel) advance(now uint64, q *Queue) {
	if now < w.cur {
		return
	}
	w.drain(&w.due, q)
	for w.cur < now {
		if w.count == 0 {
			w.cur = now
			return
		}
		t := w.nextEvent()
		if t > now {
			w.cur = now
			return
		}
		w.cur = t
		if t&wheelMask == 0 {
			w.cascade(t)
		}
		w.drainSlot(uint8(t&wheelMask), q)
	}
}

// nextEvent returns the first tick after cur at which a level-zero slot
// fires or an occupied higher slot cascades. Empty boundaries are skipped.
func (w *Wheel) nextEvent() uint64 {
	c := w.cur
	if pending := above(w.occupied[0], uint(c&wheelMask)+1); pending != 0 {
		return c&^wheelMask + uint64(bits.TrailingZeros32(pending))
	}
	for lvl := 1; lvl < numWheels; lvl++ {
		shift := lvl * wheelBits
		digit := uint((c >> shift) & wheelMask)
		if pending := above(w.occupied[lvl], digit+1); pending != 0 {
			block := c &^ (1<<(shift+wheelBits) - 1)
			return block + uint64(bits.TrailingZeros32(pending))<<shift
		}
	}
	if !w.overflow.empty() {
		return c | spanMask + 1
	}
	return Never
}

func (w *Wheel) cascade(t uint64) {
	w.ticking = true
	if t&spanMask == 0 {
		w.relink(&w.overflow)
	}
	for lvl := numWheels - 1; lvl >= 1; lvl-- {
		if t&(1<<(lvl*wheelBits)-1) != 0 {
			continue
		}
		slot := uint8((t >> (lvl * wheelBits)) & wheelMask)
		w.occupied[lvl] &^= 1 << slot
		w.relink(&w.slots[lvl][slot])
	}
	w.ticking = false
}

func (w *Wheel) relink(src *list) {
	var tmp list
	tmp.init()
	src.spliceInto(&tmp)
	for e := tmp.front(); e != nil; e = tmp.front() {
		detach(e)
		w.place(e)
	}
}

func (w *Wheel) drainSlot(slot uint8, q *Queue) {
	if w.occupied[0]&(1<<slot) == 0 {
		return
	}
	w.occupied[0] &^= 1 << slot
	w.drain(&w.slots[0][slot], q)
}

// drain expires every entry of src. The list is detached first so callbacks
// may link new entries into the same slot without being revisited.
func (w *Wheel) drain(src *list, q *Queue) {
	if src.empty() {
		return
	}
	var tmp list
	tmp.init()
	src.spliceInto(&tmp)
	for e := tmp.front(); e != nil; e = tmp.front() {
		detach(e)
		e.loc = nowhere
		e.wheel = nil
		w.count--
		if q != nil {
			q.push(e)
			continue
		}
		e.Fire()
	}
}

func above(mask uint32, from uint) uint32 {
	if from >= wheelSlots {
		return 0
	}
	return mask >> from << from
}

func earliest(l *list) uint64 {
	soonest := Never
	for e := l.root.next; e != &l.root; e = e.next {
		if e.expire < soonest {
			soonest = e.expire
		}
	}
	return soonest
}
