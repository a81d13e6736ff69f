//go:build linux || darwin

// File: tcp/writev_vec.go
// Author: momentics <momentics@gmail.com>
//
// Gather write via writev(2).

package tcp

import "golang.org/x/sys/unix"

func writev(fd int, bufs [][]byte) (int, error) {
	if len(bufs) == 1 {
		return unix.Write(fd, bufs[0])
	}
	return unix.Writev(fd, bufs)
}
