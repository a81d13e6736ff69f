// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer recycling for connection handlers. Pools are owned by one loop
// and used from its goroutine only, so they carry no locks.
package pool
