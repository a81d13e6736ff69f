// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error sentinels and error construction helpers for hioload-reactor.

package api

import (
	"github.com/brickingsoft/errors"
)

// Common errors used across the library.
var (
	ErrClosed       = errors.Define("use of closed connection")
	ErrTimeout      = errors.Define("operation timeout")
	ErrQueueFull    = errors.Define("request queue is full")
	ErrLoopBusy     = errors.Define("loop still has bound records")
	ErrLoopClosed   = errors.Define("loop is closed")
	ErrStaleToken   = errors.Define("stale event token")
	ErrNotSupported = errors.Define("operation not supported")
	ErrRegister     = errors.Define("backend registration failed")
	ErrPeerReset    = errors.Define("connection reset by peer")
)

// Metadata keys attached to wrapped errors.
const (
	MetaPkg = "pkg"
	MetaOp  = "op"
)

// Operation names used in error metadata and log fields.
const (
	OpAdd     = "add"
	OpModify  = "modify"
	OpDelete  = "delete"
	OpWait    = "wait"
	OpAccept  = "accept"
	OpConnect = "connect"
	OpRead    = "read"
	OpWrite   = "write"
	OpClose   = "close"
	OpCancel  = "cancel"
)

// Wrap annotates cause with package and operation metadata.
func Wrap(pkg, op, msg string, cause error) error {
	return errors.New(
		msg,
		errors.WithMeta(MetaPkg, pkg),
		errors.WithMeta(MetaOp, op),
		errors.WithWrap(cause),
	)
}

// From derives an error from sentinel so errors.Is(err, sentinel) holds,
// with cause wrapped underneath.
func From(sentinel error, pkg, op string, cause error) error {
	if cause == nil {
		return errors.From(sentinel, errors.WithMeta(MetaPkg, pkg), errors.WithMeta(MetaOp, op))
	}
	return errors.From(
		sentinel,
		errors.WithMeta(MetaPkg, pkg),
		errors.WithMeta(MetaOp, op),
		errors.WithWrap(cause),
	)
}

// IsClosed reports whether err is or wraps ErrClosed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsTimeout reports whether err is or wraps ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
