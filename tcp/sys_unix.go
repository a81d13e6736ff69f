//go:build linux || darwin || freebsd || netbsd || openbsd

// File: tcp/sys_unix.go
// Author: momentics <momentics@gmail.com>
//
// Kernel socket calls via golang.org/x/sys/unix.

package tcp

import (
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

type unixSys struct{}

// DefaultSys returns the kernel-backed Sys.
func DefaultSys() Sys { return unixSys{} }

func (unixSys) Socket(ipv6 bool) (int, error) {
	family := unix.AF_INET
	if ipv6 {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := prepare(fd); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func prepare(fd int) error {
	unix.CloseOnExec(fd)
	return unix.SetNonblock(fd, true)
}

func sockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.Unmap().As4()}
	}
	return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
}

func (unixSys) Listen(fd int, addr netip.AddrPort, backlog int) error {
	if err := unix.Bind(fd, sockaddr(addr)); err != nil {
		return err
	}
	return unix.Listen(fd, backlog)
}

func (unixSys) Accept(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, err
	}
	if err := prepare(nfd); err != nil {
		_ = unix.Close(nfd)
		return -1, err
	}
	return nfd, nil
}

func (unixSys) Connect(fd int, addr netip.AddrPort) error {
	return unix.Connect(fd, sockaddr(addr))
}

func (unixSys) SocketError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return syscall.Errno(v)
	}
	return nil
}

func (unixSys) Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (unixSys) Writev(fd int, bufs [][]byte) (int, error) {
	n, err := writev(fd, bufs)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (unixSys) SetNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolint(on))
}

func (unixSys) SetReuse(fd int, addr, port bool) error {
	if addr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return err
		}
	}
	if port {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}
	return nil
}

func (unixSys) Close(fd int) error {
	return unix.Close(fd)
}

func boolint(b bool) int {
	if b {
		return 1
	}
	return 0
}
