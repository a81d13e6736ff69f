// File: tcp/ring.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity ring of buffers for the completion model. A 16-bit mask
// marks the slots whose callback must run; vectored requests mark only
// their last slot.

package tcp

import "fmt"

// Ring sizes of OverlappedConn.
const (
	ReadRingSize  = 8
	WriteRingSize = 16

	maxRingSize = 16 // width of ring.notify
)

// OverlappedCallback receives the bytes transferred by a request, 0 on EOF
// or api.ErrorBytes.
type OverlappedCallback func(c *OverlappedConn, n int, attr any)

type ringSlot struct {
	buf  []byte
	cb   OverlappedCallback
	attr any
}

// ring cursors grow monotonically. [r, s) is submitted to the kernel,
// [s, w) waits for submission. acc carries the bytes of a vectored
// request already consumed by earlier completions.
type ring struct {
	slots  []ringSlot
	mask   uint32
	notify uint16
	r, s   uint32
	w      uint32
	acc    int
}

func newRing(size int) *ring {
	if size <= 0 || size > maxRingSize || size&(size-1) != 0 {
		panic(fmt.Sprintf("tcp: ring size %d is not a power of two in [1, %d]", size, maxRingSize))
	}
	return &ring{slots: make([]ringSlot, size), mask: uint32(size - 1)}
}

func (q *ring) cap() int { return len(q.slots) }

func (q *ring) len() int { return int(q.w - q.r) }

func (q *ring) free() int { return q.cap() - q.len() }

func (q *ring) empty() bool { return q.r == q.w }

// unsent reports whether slots wait for submission.
func (q *ring) unsent() bool { return q.s != q.w }

// inflight reports whether submitted slots await completion.
func (q *ring) inflight() bool { return q.r != q.s }

// push reserves len(bufs) contiguous slots, all or nothing. Only the last
// slot is marked for callback.
func (q *ring) push(bufs [][]byte, cb OverlappedCallback, attr any) bool {
	n := len(bufs)
	if n == 0 || n > q.free() {
		return false
	}
	for i, b := range bufs {
		idx := (q.w + uint32(i)) & q.mask
		q.slots[idx] = ringSlot{buf: b}
		q.notify &^= 1 << idx
	}
	last := (q.w + uint32(n-1)) & q.mask
	q.slots[last].cb = cb
	q.slots[last].attr = attr
	q.notify |= 1 << last
	q.w += uint32(n)
	return true
}

// submit marks every waiting slot submitted and returns their buffers.
func (q *ring) submit(dst [][]byte) [][]byte {
	dst = dst[:0]
	for i := q.s; i != q.w; i++ {
		dst = append(dst, q.slots[i&q.mask].buf)
	}
	q.s = q.w
	return dst
}

// head returns the front slot and whether it ends its request.
func (q *ring) head() (*ringSlot, bool) {
	idx := q.r & q.mask
	return &q.slots[idx], q.notify&(1<<idx) != 0
}

// pop releases the front slot.
func (q *ring) pop() {
	idx := q.r & q.mask
	q.slots[idx] = ringSlot{}
	q.notify &^= 1 << idx
	q.r++
}

// completed is a finished request ready for its callback. Callbacks run
// after the ring is consistent so they may queue more work.
type completed struct {
	cb   OverlappedCallback
	attr any
	n    int
}

// consumeRead distributes n received bytes over the submitted slots in
// order. A request the data ends inside completes with what it got; the
// remaining submitted slots go back to waiting.
func (q *ring) consumeRead(n int, out []completed) []completed {
	for q.inflight() {
		// Data ended on a request boundary.
		if n == 0 && q.acc == 0 {
			break
		}
		sl, last := q.head()
		take := len(sl.buf)
		if n < take {
			take = n
		}
		n -= take
		q.acc += take
		short := take < len(sl.buf)
		if short {
			// Skip to the end of the request.
			for !last && q.r+1 != q.s {
				q.pop()
				sl, last = q.head()
			}
		}
		if last {
			out = append(out, completed{cb: sl.cb, attr: sl.attr, n: q.acc})
			q.acc = 0
		}
		q.pop()
		if short {
			break
		}
	}
	q.s = q.r
	return out
}

// consumeWrite retires n sent bytes. A slot sent partially keeps its tail
// and is resubmitted.
func (q *ring) consumeWrite(n int, out []completed) []completed {
	for q.inflight() {
		sl, last := q.head()
		if n < len(sl.buf) {
			sl.buf = sl.buf[n:]
			q.acc += n
			break
		}
		n -= len(sl.buf)
		q.acc += len(sl.buf)
		if last {
			out = append(out, completed{cb: sl.cb, attr: sl.attr, n: q.acc})
			q.acc = 0
		}
		q.pop()
	}
	q.s = q.r
	return out
}

// drain empties the ring. The first request receives first, every later one
// receives rest.
func (q *ring) drain(first, rest int, out []completed) []completed {
	n := first
	for !q.empty() {
		sl, last := q.head()
		if last {
			out = append(out, completed{cb: sl.cb, attr: sl.attr, n: n})
			n = rest
		}
		q.pop()
	}
	q.s = q.r
	q.acc = 0
	return out
}
