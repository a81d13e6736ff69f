// File: fake/completer_test.go
// Author: momentics <momentics@gmail.com>

package fake_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/fake"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/tcp"
)

var (
	_ reactor.Backend = (*fake.Completer)(nil)
	_ tcp.Port        = (*fake.Completer)(nil)
	_ reactor.Backend = (*fake.Poller)(nil)
	_ tcp.Sys         = (*fake.Sockets)(nil)
)

func TestCompleter_SocketCloseLeavesBackendOpen(t *testing.T) {
	comp := fake.NewCompleter()
	fd, err := comp.Socket(false)
	require.NoError(t, err)
	require.NoError(t, comp.Add(fd, 1, api.Interest{}))

	require.NoError(t, comp.CloseSocket(fd))
	_, _, closed := comp.HandleState(fd)
	assert.True(t, closed)
	assert.ErrorIs(t, comp.Recv(fd, [][]byte{make([]byte, 1)}), api.ErrClosed)

	out := make([]reactor.Notification, 4)
	n, err := comp.Wait(out, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, comp.Close())
	_, err = comp.Wait(out, 0)
	assert.ErrorIs(t, err, api.ErrClosed)
}
