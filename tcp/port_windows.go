//go:build windows

// File: tcp/port_windows.go
// Author: momentics <momentics@gmail.com>
//
// Overlapped Winsock calls: WSARecv, WSASend, AcceptEx, ConnectEx and
// CancelIoEx. Completions surface through the IOCP backend.

package tcp

import (
	"net/netip"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

const acceptAddrLen = uint32(unsafe.Sizeof(windows.RawSockaddrAny{}) + 16)

var wsaOnce sync.Once
var wsaErr error

// handleState pins the kernel-visible memory of one socket's operations.
type handleState struct {
	read    *reactor.Overlapped
	write   *reactor.Overlapped
	accept  *reactor.Overlapped
	connect *reactor.Overlapped
	rbufs   []windows.WSABuf
	wbufs   []windows.WSABuf
	rflags  uint32
	qty     uint32
	ipv6    bool
	abuf    [2 * acceptAddrLen]byte
}

type winPort struct {
	states map[windows.Handle]*handleState
}

// NewPort returns the Winsock Port. One Port serves one loop.
func NewPort() (Port, error) {
	wsaOnce.Do(func() {
		var data windows.WSAData
		wsaErr = windows.WSAStartup(uint32(0x202), &data)
	})
	if wsaErr != nil {
		return nil, api.Wrap(pkgName, "startup", "WSAStartup failed", wsaErr)
	}
	return &winPort{states: make(map[windows.Handle]*handleState)}, nil
}

func (p *winPort) state(fd uintptr) *handleState {
	h := windows.Handle(fd)
	st := p.states[h]
	if st == nil {
		st = &handleState{
			read:    reactor.NewOverlapped(reactor.OpRead),
			write:   reactor.NewOverlapped(reactor.OpWrite),
			accept:  reactor.NewOverlapped(reactor.OpAccept),
			connect: reactor.NewOverlapped(reactor.OpConnect),
		}
		p.states[h] = st
	}
	return st
}

func pending(err error) error {
	if err == windows.ERROR_IO_PENDING {
		return nil
	}
	return err
}

func (p *winPort) Socket(ipv6 bool) (uintptr, error) {
	af := int32(windows.AF_INET)
	if ipv6 {
		af = windows.AF_INET6
	}
	h, err := windows.WSASocket(af, windows.SOCK_STREAM, windows.IPPROTO_TCP, nil, 0,
		windows.WSA_FLAG_OVERLAPPED|windows.WSA_FLAG_NO_HANDLE_INHERIT)
	if err != nil {
		return 0, err
	}
	p.state(uintptr(h)).ipv6 = ipv6
	return uintptr(h), nil
}

func sockaddr(addr netip.AddrPort) windows.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		return &windows.SockaddrInet4{Port: int(addr.Port()), Addr: ip.Unmap().As4()}
	}
	return &windows.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
}

func (p *winPort) Listen(fd uintptr, addr netip.AddrPort, backlog int) error {
	h := windows.Handle(fd)
	if err := windows.Bind(h, sockaddr(addr)); err != nil {
		return err
	}
	return windows.Listen(h, backlog)
}

func wsabufs(dst []windows.WSABuf, bufs [][]byte) []windows.WSABuf {
	dst = dst[:0]
	for _, b := range bufs {
		wb := windows.WSABuf{Len: uint32(len(b))}
		if len(b) > 0 {
			wb.Buf = &b[0]
		}
		dst = append(dst, wb)
	}
	return dst
}

func (p *winPort) Recv(fd uintptr, bufs [][]byte) error {
	st := p.state(fd)
	st.rbufs = wsabufs(st.rbufs, bufs)
	st.read.Reset()
	st.rflags = 0
	err := windows.WSARecv(windows.Handle(fd), &st.rbufs[0], uint32(len(st.rbufs)), nil, &st.rflags, &st.read.Overlapped, nil)
	return pending(err)
}

func (p *winPort) Send(fd uintptr, bufs [][]byte) error {
	st := p.state(fd)
	st.wbufs = wsabufs(st.wbufs, bufs)
	st.write.Reset()
	err := windows.WSASend(windows.Handle(fd), &st.wbufs[0], uint32(len(st.wbufs)), nil, 0, &st.write.Overlapped, nil)
	return pending(err)
}

func (p *winPort) Accept(ln uintptr) (uintptr, error) {
	st := p.state(ln)
	s, err := p.Socket(st.ipv6)
	if err != nil {
		return 0, err
	}
	st.accept.Reset()
	err = windows.AcceptEx(windows.Handle(ln), windows.Handle(s), &st.abuf[0], 0,
		acceptAddrLen, acceptAddrLen, &st.qty, &st.accept.Overlapped)
	if err = pending(err); err != nil {
		_ = p.CloseSocket(s)
		return 0, err
	}
	return s, nil
}

func (p *winPort) Accepted(fd, ln uintptr) error {
	l := windows.Handle(ln)
	return windows.Setsockopt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_UPDATE_ACCEPT_CONTEXT,
		(*byte)(unsafe.Pointer(&l)), int32(unsafe.Sizeof(l)))
}

func (p *winPort) Connect(fd uintptr, addr netip.AddrPort) error {
	h := windows.Handle(fd)
	st := p.state(fd)
	var local windows.Sockaddr = &windows.SockaddrInet4{}
	if st.ipv6 {
		local = &windows.SockaddrInet6{}
	}
	// ConnectEx needs a bound socket.
	if err := windows.Bind(h, local); err != nil {
		return err
	}
	st.connect.Reset()
	return pending(windows.ConnectEx(h, sockaddr(addr), nil, 0, nil, &st.connect.Overlapped))
}

func (p *winPort) Connected(fd uintptr) error {
	return windows.Setsockopt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_UPDATE_CONNECT_CONTEXT, nil, 0)
}

func (p *winPort) Cancel(fd uintptr) error {
	err := windows.CancelIoEx(windows.Handle(fd), nil)
	if err == windows.ERROR_NOT_FOUND {
		return nil
	}
	return err
}

func (p *winPort) CloseSocket(fd uintptr) error {
	h := windows.Handle(fd)
	delete(p.states, h)
	return windows.Closesocket(h)
}
