// File: tcp/port.go
// Author: momentics <momentics@gmail.com>
//
// Socket surface of the completion model.

package tcp

import "net/netip"

// Port starts overlapped socket operations. Each successful Recv, Send,
// Accept or Connect produces exactly one completion through the loop's
// backend, tagged with the matching reactor.Op, unless the handle is closed
// first. Handles must be associated with the loop (Event.Register) before
// the first operation.
type Port interface {
	// Socket opens an overlapped stream socket.
	Socket(ipv6 bool) (uintptr, error)
	// Listen binds fd to addr and starts listening.
	Listen(fd uintptr, addr netip.AddrPort, backlog int) error
	// Recv posts one scatter receive over bufs.
	Recv(fd uintptr, bufs [][]byte) error
	// Send posts one gather send of bufs.
	Send(fd uintptr, bufs [][]byte) error
	// Accept posts one accept-ahead on ln and returns the socket that will
	// carry the connection.
	Accept(ln uintptr) (uintptr, error)
	// Accepted finishes a socket whose accept completed.
	Accepted(fd, ln uintptr) error
	// Connect posts a connect to addr.
	Connect(fd uintptr, addr netip.AddrPort) error
	// Connected finishes a socket whose connect completed.
	Connected(fd uintptr) error
	// Cancel aborts every outstanding operation on fd. The aborted
	// operations still complete, with an error.
	Cancel(fd uintptr) error
	// CloseSocket closes fd. The port itself stays open.
	CloseSocket(fd uintptr) error
}
