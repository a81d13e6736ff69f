// File: fake/socket.go
// Author: momentics <momentics@gmail.com>
//
// Scripted non-blocking socket calls for the readiness model.

package fake

import (
	"net/netip"
	"sync"
	"syscall"
)

// Unlimited write capacity.
const Unlimited = -1

type stream struct {
	in        []byte
	eof       bool
	readErr   error
	reads     int
	out       []byte
	capacity  int
	writeErr  error
	writes    int
	backlog   []int
	listening bool
	local     netip.AddrPort
	remote    netip.AddrPort
	soErr     error
	noDelay   bool
	reuseAddr bool
	reusePort bool
	closed    bool
}

// Sockets implements tcp.Sys over in-memory streams. Reads drain the bytes
// fed so far and then report EAGAIN, the way a non-blocking socket does.
type Sockets struct {
	mu         sync.Mutex
	streams    map[int]*stream
	next       int
	connectErr error
}

// NewSockets creates an empty socket table. Connect reports EINPROGRESS
// until SetConnectResult says otherwise.
func NewSockets() *Sockets {
	return &Sockets{
		streams:    make(map[int]*stream),
		next:       3,
		connectErr: syscall.EINPROGRESS,
	}
}

func (s *Sockets) open() int {
	fd := s.next
	s.next++
	s.streams[fd] = &stream{capacity: Unlimited}
	return fd
}

func (s *Sockets) get(fd int) *stream {
	st := s.streams[fd]
	if st == nil {
		st = &stream{capacity: Unlimited}
		s.streams[fd] = st
	}
	return st
}

// Open creates a connected stream and returns its descriptor.
func (s *Sockets) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open()
}

// Feed appends bytes to the receive buffer of fd.
func (s *Sockets) Feed(fd int, data ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	for _, d := range data {
		st.in = append(st.in, d...)
	}
}

// SetEOF makes reads of fd return 0 once the buffered bytes are consumed.
func (s *Sockets) SetEOF(fd int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(fd).eof = true
}

// SetReadError makes reads of fd fail with err.
func (s *Sockets) SetReadError(fd int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(fd).readErr = err
}

// SetWriteError makes writes of fd fail with err.
func (s *Sockets) SetWriteError(fd int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(fd).writeErr = err
}

// SetWriteCapacity bounds how many more bytes fd accepts before EAGAIN.
func (s *Sockets) SetWriteCapacity(fd int, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(fd).capacity = n
}

// Written returns everything written to fd so far.
func (s *Sockets) Written(fd int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.get(fd).out...)
}

// Calls returns the number of Read and Writev calls made on fd.
func (s *Sockets) Calls(fd int) (reads, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	return st.reads, st.writes
}

// Incoming queues a connection on listener ln and returns its descriptor.
func (s *Sockets) Incoming(ln int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd := s.open()
	l := s.get(ln)
	l.backlog = append(l.backlog, fd)
	return fd
}

// SetConnectResult sets what the following Connect calls return.
func (s *Sockets) SetConnectResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// SetSocketError sets the SO_ERROR value of fd.
func (s *Sockets) SetSocketError(fd int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(fd).soErr = err
}

// Closed reports whether fd was closed.
func (s *Sockets) Closed(fd int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(fd).closed
}

// Options reports the socket options set on fd.
func (s *Sockets) Options(fd int) (noDelay, reuseAddr, reusePort bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	return st.noDelay, st.reuseAddr, st.reusePort
}

// Remote returns the address fd connected to.
func (s *Sockets) Remote(fd int) netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(fd).remote
}

// Last returns the most recently created descriptor.
func (s *Sockets) Last() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next - 1
}

func (s *Sockets) Socket(bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(), nil
}

func (s *Sockets) Listen(fd int, addr netip.AddrPort, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	st.listening = true
	st.local = addr
	return nil
}

func (s *Sockets) Accept(fd int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	if st.closed {
		return -1, syscall.EBADF
	}
	if len(st.backlog) == 0 {
		return -1, syscall.EAGAIN
	}
	nfd := st.backlog[0]
	st.backlog = st.backlog[1:]
	return nfd, nil
}

func (s *Sockets) Connect(fd int, addr netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(fd).remote = addr
	return s.connectErr
}

func (s *Sockets) SocketError(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	err := st.soErr
	st.soErr = nil
	return err
}

func (s *Sockets) Read(fd int, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	st.reads++
	switch {
	case st.closed:
		return 0, syscall.EBADF
	case st.readErr != nil:
		return 0, st.readErr
	case len(st.in) == 0 && st.eof:
		return 0, nil
	case len(st.in) == 0:
		return 0, syscall.EAGAIN
	}
	n := copy(p, st.in)
	st.in = st.in[n:]
	return n, nil
}

func (s *Sockets) Writev(fd int, bufs [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	st.writes++
	switch {
	case st.closed:
		return 0, syscall.EBADF
	case st.writeErr != nil:
		return 0, st.writeErr
	case st.capacity == 0:
		return 0, syscall.EAGAIN
	}
	n := 0
	for _, b := range bufs {
		if st.capacity != Unlimited && len(b) > st.capacity-n {
			b = b[:st.capacity-n]
		}
		st.out = append(st.out, b...)
		n += len(b)
		if st.capacity != Unlimited && n == st.capacity {
			break
		}
	}
	if st.capacity != Unlimited {
		st.capacity -= n
	}
	return n, nil
}

func (s *Sockets) SetNoDelay(fd int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(fd).noDelay = on
	return nil
}

func (s *Sockets) SetReuse(fd int, addr, port bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	st.reuseAddr = addr
	st.reusePort = port
	return nil
}

func (s *Sockets) Close(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(fd)
	if st.closed {
		return syscall.EBADF
	}
	st.closed = true
	return nil
}
