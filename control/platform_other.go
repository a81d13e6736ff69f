//go:build !linux && !windows

// control/platform_other.go
// Author: momentics <momentics@gmail.com>
//
// Debug probes for the BSD family and everything else.

package control

import (
	"runtime"
)

// RegisterPlatformProbes sets generic debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.backend", func() any {
		switch runtime.GOOS {
		case "darwin", "dragonfly", "freebsd", "netbsd", "openbsd":
			return "kqueue"
		}
		return "none"
	})
}
