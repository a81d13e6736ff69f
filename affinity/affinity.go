// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_windows.go, etc.) guarded by build tags.

package affinity

import (
	"runtime"

	"github.com/momentics/hioload-reactor/api"
)

// SetAffinity pins the current OS thread to a given logical CPU on supported
// platforms. The caller must hold the thread with runtime.LockOSThread.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return api.Wrap("affinity", "pin", "cpu out of range", api.ErrNotSupported)
	}
	return setAffinityPlatform(cpuID)
}

// Pin locks the calling goroutine to its OS thread and pins that thread to
// cpuID. The returned function undoes the lock; the affinity mask stays.
// A loop goroutine calls Pin once before Run.
func Pin(cpuID int) (func(), error) {
	runtime.LockOSThread()
	if err := SetAffinity(cpuID); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return runtime.UnlockOSThread, nil
}
