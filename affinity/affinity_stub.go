//go:build !linux && !windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package affinity

import "github.com/momentics/hioload-reactor/api"

func setAffinityPlatform(int) error {
	return api.ErrNotSupported
}
