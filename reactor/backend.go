// File: reactor/backend.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral backend contract for cross-platform IO multiplexing.

package reactor

import (
	"time"

	"github.com/momentics/hioload-reactor/api"
)

// Model tells how a backend reports I/O.
type Model uint8

const (
	// Readiness backends report that a descriptor can be read or written.
	Readiness Model = iota
	// Completion backends report that a submitted operation finished.
	Completion
)

func (m Model) String() string {
	if m == Completion {
		return "completion"
	}
	return "readiness"
}

// Op identifies the kernel operation a completion belongs to.
type Op uint8

const (
	OpNone Op = iota
	OpRead
	OpWrite
	OpAccept
	OpConnect
)

func (op Op) String() string {
	switch op {
	case OpRead:
		return api.OpRead
	case OpWrite:
		return api.OpWrite
	case OpAccept:
		return api.OpAccept
	case OpConnect:
		return api.OpConnect
	default:
		return "none"
	}
}

// Kind tags a Notification.
type Kind uint8

const (
	KindReady Kind = iota
	KindCompletion
)

// Notification is one kernel report translated by a backend. Readiness
// backends fill the flag fields, completion backends fill Op, Bytes and Err.
type Notification struct {
	Token  Token
	Kind   Kind
	Read   bool
	Write  bool
	HangUp bool
	Error  bool
	Op     Op
	Bytes  int
	Err    error
}

// Backend owns the kernel notification object.
type Backend interface {
	// Model reports readiness or completion semantics.
	Model() Model

	// Name is a short identifier used in logs and metrics.
	Name() string

	// Add registers fd (or associates a handle) under tok.
	Add(fd uintptr, tok Token, in api.Interest) error

	// Modify replaces the interest of a registered fd.
	Modify(fd uintptr, tok Token, in api.Interest) error

	// Delete drops fd from the kernel interest set.
	Delete(fd uintptr) error

	// Wait blocks at most timeout (negative: forever) and fills out.
	// It returns the number of notifications written.
	Wait(out []Notification, timeout time.Duration) (int, error)

	// Wakeup interrupts a blocked Wait. Safe from any goroutine.
	Wakeup() error

	// Close releases the kernel object.
	Close() error
}

func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}
