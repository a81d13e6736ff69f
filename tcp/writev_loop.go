//go:build freebsd || netbsd || openbsd

// File: tcp/writev_loop.go
// Author: momentics <momentics@gmail.com>
//
// Gather write for platforms without unix.Writev.

package tcp

import "golang.org/x/sys/unix"

// writev emulates a gather write; it stops at the first short write so the
// caller sees one contiguous prefix.
func writev(fd int, bufs [][]byte) (int, error) {
	total := 0
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		n, err := unix.Write(fd, b)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		total += n
		if n < len(b) {
			break
		}
	}
	return total, nil
}
