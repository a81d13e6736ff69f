// File: tcp/sys.go
// Author: momentics <momentics@gmail.com>
//
// Socket syscall surface of the readiness model. DefaultSys talks to the
// kernel; tests substitute a scripted implementation.

package tcp

import (
	"net/netip"
	"syscall"
)

const pkgName = "tcp"

// DefaultBacklog is the listen backlog used when Options leaves it zero.
const DefaultBacklog = 1024

// Sys is the set of non-blocking socket calls a readiness Conn needs.
// Would-block is reported as syscall.EAGAIN, a pending connect as
// syscall.EINPROGRESS.
type Sys interface {
	// Socket opens a non-blocking, close-on-exec stream socket.
	Socket(ipv6 bool) (int, error)
	// Listen binds fd to addr and starts listening.
	Listen(fd int, addr netip.AddrPort, backlog int) error
	// Accept returns a non-blocking accepted descriptor.
	Accept(fd int) (int, error)
	// Connect starts a connection attempt.
	Connect(fd int, addr netip.AddrPort) error
	// SocketError fetches and clears SO_ERROR.
	SocketError(fd int) error
	Read(fd int, p []byte) (int, error)
	Writev(fd int, bufs [][]byte) (int, error)
	SetNoDelay(fd int, on bool) error
	SetReuse(fd int, addr, port bool) error
	Close(fd int) error
}

// Options tunes sockets created by Listen and Connect.
type Options struct {
	ReuseAddr bool
	ReusePort bool
	NoDelay   bool
	Backlog   int
}

// DefaultOptions returns the options used by the echo server.
func DefaultOptions() Options {
	return Options{
		ReuseAddr: true,
		NoDelay:   true,
		Backlog:   DefaultBacklog,
	}
}

func wouldBlock(err error) bool {
	return err == syscall.EAGAIN || err == syscall.EWOULDBLOCK
}

func interrupted(err error) bool {
	return err == syscall.EINTR
}
