//go:build windows

// File: reactor/overlapped_windows.go
// Author: momentics <momentics@gmail.com>
//
// Per-operation OVERLAPPED header carrying the operation kind back through
// the completion port.

package reactor

import (
	"golang.org/x/sys/windows"
)

// Overlapped must stay the first field of whatever embeds it so the kernel
// pointer can be converted back.
type Overlapped struct {
	windows.Overlapped
	Op Op
}

// NewOverlapped returns a zeroed header for op.
func NewOverlapped(op Op) *Overlapped {
	return &Overlapped{Op: op}
}

// Reset clears the kernel part before the header is reused.
func (o *Overlapped) Reset() {
	o.Overlapped = windows.Overlapped{}
}
