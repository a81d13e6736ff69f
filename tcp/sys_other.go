//go:build !(linux || darwin || freebsd || netbsd || openbsd)

// File: tcp/sys_other.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without a readiness socket surface. Windows uses the completion
// model through Port instead.

package tcp

import (
	"net/netip"

	"github.com/momentics/hioload-reactor/api"
)

type unsupportedSys struct{}

// DefaultSys returns a Sys whose calls all fail with api.ErrNotSupported.
func DefaultSys() Sys { return unsupportedSys{} }

func (unsupportedSys) Socket(bool) (int, error)              { return -1, api.ErrNotSupported }
func (unsupportedSys) Listen(int, netip.AddrPort, int) error { return api.ErrNotSupported }
func (unsupportedSys) Accept(int) (int, error)               { return -1, api.ErrNotSupported }
func (unsupportedSys) Connect(int, netip.AddrPort) error     { return api.ErrNotSupported }
func (unsupportedSys) SocketError(int) error                 { return api.ErrNotSupported }
func (unsupportedSys) Read(int, []byte) (int, error)         { return 0, api.ErrNotSupported }
func (unsupportedSys) Writev(int, [][]byte) (int, error)     { return 0, api.ErrNotSupported }
func (unsupportedSys) SetNoDelay(int, bool) error            { return api.ErrNotSupported }
func (unsupportedSys) SetReuse(int, bool, bool) error        { return api.ErrNotSupported }
func (unsupportedSys) Close(int) error                       { return api.ErrNotSupported }
