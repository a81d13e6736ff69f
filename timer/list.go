// File: timer/list.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Intrusive circular list of entries with a sentinel root.

package timer

type list struct {
	root Entry
}

func (l *list) init() {
	l.root.prev = &l.root
	l.root.next = &l.root
}

func (l *list) empty() bool {
	return l.root.next == &l.root
}

func (l *list) front() *Entry {
	if l.empty() {
		return nil
	}
	return l.root.next
}

func (l *list) push(e *Entry) {
	e.prev = l.root.prev
	e.next = &l.root
	l.root.prev.next = e
	l.root.prev = e
}

// spliceInto moves every entry of l to the empty list dst.
func (l *list) spliceInto(dst *list) {
	if l.empty() {
		return
	}
	dst.root.next = l.root.next
	dst.root.prev = l.root.prev
	dst.root.next.prev = &dst.root
	dst.root.prev.next = &dst.root
	l.init()
}

func detach(e *Entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}
