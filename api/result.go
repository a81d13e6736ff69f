// Package api
// Author: momentics@gmail.com
//
// Synchronous submission status and the callback byte-count sentinel.

package api

// ErrorBytes is the byte count handed to a completion callback when the
// operation failed. It is all ones, so it never collides with a real count
// or with the zero-byte EOF completion.
const ErrorBytes = -1

// Status is the synchronous outcome of submitting an I/O request.
type Status uint8

const (
	// StatusDone means the operation completed inline; its callback is not invoked.
	StatusDone Status = iota
	// StatusPending means the request was queued; its callback fires later.
	StatusPending
	// StatusError means the request was rejected; its callback is not invoked.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
