// File: reactor/token.go
// Author: momentics <momentics@gmail.com>
//
// Generation-checked handles handed to the kernel instead of pointers.

package reactor

// Token identifies a bound Event: slab index in the low half, generation in
// the high half. A released slot bumps its generation, so kernel reports that
// arrive after a close resolve to nothing.
type Token uint64

// NoToken is never issued.
const NoToken Token = 0

// wakeToken marks the backend's own wakeup descriptor.
const wakeToken Token = ^Token(0)

func makeToken(idx, gen uint32) Token {
	return Token(uint64(gen)<<32 | uint64(idx))
}

func (t Token) index() uint32 {
	return uint32(t)
}

func (t Token) generation() uint32 {
	return uint32(t >> 32)
}

type slot struct {
	ev  *Event
	gen uint32
}

type slab struct {
	slots []slot
	free  []uint32
	live  int
}

func (s *slab) alloc(ev *Event) Token {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
	}
	sl := &s.slots[idx]
	sl.gen++
	if sl.gen == 0 || makeToken(idx, sl.gen) == wakeToken {
		sl.gen = 1
	}
	sl.ev = ev
	s.live++
	return makeToken(idx, sl.gen)
}

func (s *slab) get(t Token) *Event {
	idx := t.index()
	if t == NoToken || int(idx) >= len(s.slots) {
		return nil
	}
	sl := &s.slots[idx]
	if sl.gen != t.generation() {
		return nil
	}
	return sl.ev
}

func (s *slab) release(t Token) {
	if s.get(t) == nil {
		return
	}
	sl := &s.slots[t.index()]
	sl.ev = nil
	sl.gen++
	s.free = append(s.free, t.index())
	s.live--
}
