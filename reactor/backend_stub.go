//go:build !linux && !windows && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

// File: reactor/backend_stub.go
// Author: momentics <momentics@gmail.com>
//
// Fallback for platforms without a native backend.

package reactor

import "github.com/momentics/hioload-reactor/api"

// NewBackend reports that no native backend exists. NewWithBackend still
// works with an injected one.
func NewBackend(*Config) (Backend, error) {
	return nil, api.ErrNotSupported
}
