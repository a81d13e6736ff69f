// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements non-blocking TCP sockets on top of a reactor.Loop.
//
// Two state machines share one callback contract. Conn and Listener serve
// readiness backends (epoll, kqueue): requests queue per direction and drain
// to EAGAIN when the kernel reports readiness. OverlappedConn and Acceptor
// serve completion backends (IOCP): buffers go into fixed rings and are
// submitted as one kernel operation per direction.
//
// Callbacks receive a byte count or api.ErrorBytes. They are never invoked
// from inside the call that queued the request.
package tcp
