//go:build !unix

// File: reactor/limits_other.go
// Author: momentics <momentics@gmail.com>

package reactor

// Windows has no descriptor limit comparable to RLIMIT_NOFILE; the batch
// buffer falls back to the hard cap.
func fdLimit() int {
	return 0
}
