//go:build windows

// File: reactor/backend_iocp_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows IOCP (I/O Completion Port) backend. The completion key is the
// record token; the OVERLAPPED pointer carries the operation kind.

package reactor

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-reactor/api"
)

type iocpBackend struct {
	port windows.Handle
}

// NewBackend constructs the platform backend for Windows.
func NewBackend(cfg *Config) (Backend, error) {
	return NewIOCP()
}

// NewIOCP creates a completion port serviced by a single thread.
func NewIOCP() (Backend, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, api.Wrap(pkgName, "create", "CreateIoCompletionPort failed", err)
	}
	return &iocpBackend{port: port}, nil
}

func (b *iocpBackend) Model() Model { return Completion }
func (b *iocpBackend) Name() string { return "iocp" }

// Add associates the handle with the port. Interest is meaningless here.
func (b *iocpBackend) Add(fd uintptr, tok Token, _ api.Interest) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), b.port, uintptr(tok), 0)
	return err
}

// Modify is a no-op; an association cannot be changed.
func (b *iocpBackend) Modify(uintptr, Token, api.Interest) error { return nil }

// Delete is a no-op; closing the handle dissolves the association.
func (b *iocpBackend) Delete(uintptr) error { return nil }

func (b *iocpBackend) Wait(out []Notification, timeout time.Duration) (int, error) {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeoutMillis(timeout))
	}
	k := 0
	for k < len(out) {
		var (
			qty uint32
			key uintptr
			ov  *windows.Overlapped
		)
		err := windows.GetQueuedCompletionStatus(b.port, &qty, &key, &ov, ms)
		ms = 0
		if ov == nil {
			if err == nil {
				// Posted by Wakeup.
				continue
			}
			if err == windows.WAIT_TIMEOUT {
				break
			}
			if k > 0 {
				break
			}
			return 0, err
		}
		o := (*Overlapped)(unsafe.Pointer(ov))
		n := Notification{
			Token: Token(key),
			Kind:  KindCompletion,
			Op:    o.Op,
			Bytes: int(qty),
		}
		if err != nil {
			n.Err = err
			n.Bytes = 0
		}
		out[k] = n
		k++
	}
	return k, nil
}

func (b *iocpBackend) Wakeup() error {
	return windows.PostQueuedCompletionStatus(b.port, 0, 0, nil)
}

func (b *iocpBackend) Close() error {
	return windows.CloseHandle(b.port)
}
