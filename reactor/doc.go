// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the per-thread event loop and the cross-platform
// backends it multiplexes through: epoll (Linux) and kqueue (BSD, Darwin) in
// the readiness model, IOCP (Windows) in the completion model.
//
// A Loop is owned by exactly one goroutine, ideally locked to its OS thread.
// Nothing except Loop.Stop may be called from another goroutine.
package reactor
