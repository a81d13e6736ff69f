// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// Lifecycle enumerates the connection state of an event record.
type Lifecycle uint8

const (
	Idle Lifecycle = iota
	Connecting
	Connected
	Closing
	Closed
)

func (s Lifecycle) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Interest is the pair of directions a record wants the backend to watch.
type Interest struct {
	Read  bool
	Write bool
}

// Covers reports whether every direction of o is already part of i.
func (i Interest) Covers(o Interest) bool {
	return (i.Read || !o.Read) && (i.Write || !o.Write)
}

// Union merges two interests.
func (i Interest) Union(o Interest) Interest {
	return Interest{Read: i.Read || o.Read, Write: i.Write || o.Write}
}

// Empty reports whether no direction is requested.
func (i Interest) Empty() bool {
	return !i.Read && !i.Write
}

func (i Interest) String() string {
	switch {
	case i.Read && i.Write:
		return "rw"
	case i.Read:
		return "r"
	case i.Write:
		return "w"
	default:
		return "-"
	}
}
