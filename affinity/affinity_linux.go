//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific implementation for setting thread CPU affinity.

package affinity

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// cpuSetSize is CPU_SETSIZE, the bit width of unix.CPUSet.
const cpuSetSize = 1024

// setAffinityPlatform sets the calling thread's affinity with
// sched_setaffinity; pid 0 addresses the current thread.
func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return api.Wrap("affinity", "pin", "sched_setaffinity failed", err)
	}
	return nil
}

// Current returns the CPUs the calling thread may run on.
func Current() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, api.Wrap("affinity", "query", "sched_getaffinity failed", err)
	}
	var cpus []int
	for i := 0; i < cpuSetSize && len(cpus) < set.Count(); i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
