// File: tcp/request.go
// Author: momentics <momentics@gmail.com>
//
// Per-direction FIFO of pending readiness-model requests.

package tcp

// Callback receives the bytes transferred or api.ErrorBytes.
type Callback func(c *Conn, n int, attr any)

type request struct {
	next *request
	buf  []byte
	bufs [][]byte
	done int
	cb   Callback
	attr any
}

// remaining returns the unsent tail of a write request.
func (r *request) remaining() [][]byte {
	if r.bufs == nil {
		return [][]byte{r.buf[r.done:]}
	}
	skip := r.done
	out := r.bufs
	for len(out) > 0 && skip >= len(out[0]) {
		skip -= len(out[0])
		out = out[1:]
	}
	if skip > 0 {
		head := make([][]byte, len(out))
		copy(head, out)
		head[0] = head[0][skip:]
		out = head
	}
	return out
}

func (r *request) size() int {
	if r.bufs == nil {
		return len(r.buf)
	}
	n := 0
	for _, b := range r.bufs {
		n += len(b)
	}
	return n
}

func (r *request) complete(c *Conn, n int) {
	if r.cb != nil {
		r.cb(c, n, r.attr)
	}
}

type requestQueue struct {
	head, tail *request
	n          int
}

func (q *requestQueue) empty() bool { return q.head == nil }

func (q *requestQueue) len() int { return q.n }

func (q *requestQueue) push(r *request) {
	r.next = nil
	if q.tail == nil {
		q.head = r
	} else {
		q.tail.next = r
	}
	q.tail = r
	q.n++
}

func (q *requestQueue) front() *request { return q.head }

func (q *requestQueue) pop() *request {
	r := q.head
	if r == nil {
		return nil
	}
	q.head = r.next
	if q.head == nil {
		q.tail = nil
	}
	r.next = nil
	q.n--
	return r
}

// detach empties the queue and returns its former contents in order.
func (q *requestQueue) detach() *request {
	r := q.head
	q.head, q.tail, q.n = nil, nil, 0
	return r
}
