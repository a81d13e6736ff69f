//go:build unix

// File: reactor/limits_unix.go
// Author: momentics <momentics@gmail.com>

package reactor

import "golang.org/x/sys/unix"

func fdLimit() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0
	}
	cur := uint64(rl.Cur)
	if cur > maxEventsCap {
		return maxEventsCap
	}
	return int(cur)
}
