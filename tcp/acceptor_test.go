// File: tcp/acceptor_test.go
// Author: momentics <momentics@gmail.com>

package tcp_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/tcp"
)

func TestAcceptor_OneOutstandingAccept(t *testing.T) {
	l, comp := completionLoop(t)
	a, err := tcp.ListenOverlapped(l, local, comp, tcp.DefaultOptions())
	require.NoError(t, err)
	lfd := a.Fd()

	var got []*tcp.OverlappedConn
	cb := func(_ *tcp.Acceptor, c *tcp.OverlappedConn, attr any) {
		assert.Equal(t, "acc", attr)
		got = append(got, c)
	}
	require.NoError(t, a.Accept(cb, "acc"))
	assert.ErrorIs(t, a.Accept(cb, "acc"), api.ErrQueueFull)

	s := comp.CompleteAccept(lfd, nil)
	require.NotZero(t, s)
	require.NoError(t, l.RunOnce(false))

	require.Len(t, got, 1)
	require.NotNil(t, got[0])
	assert.Equal(t, s, got[0].Fd())
	assert.Equal(t, api.Connected, got[0].State())
	accepted, _, _ := comp.HandleState(s)
	assert.True(t, accepted)

	// The next accept may be posted from here on.
	require.NoError(t, a.Accept(cb, "acc"))
}

func TestAcceptor_FailedAcceptClosesSocket(t *testing.T) {
	l, comp := completionLoop(t)
	a, err := tcp.ListenOverlapped(l, local, comp, tcp.Options{})
	require.NoError(t, err)

	var got []*tcp.OverlappedConn
	require.NoError(t, a.Accept(func(_ *tcp.Acceptor, c *tcp.OverlappedConn, _ any) {
		got = append(got, c)
	}, nil))
	s := comp.CompleteAccept(a.Fd(), errors.New("WSAECONNRESET"))
	require.NoError(t, l.RunOnce(false))

	require.Len(t, got, 1)
	assert.Nil(t, got[0])
	_, _, closed := comp.HandleState(s)
	assert.True(t, closed)
	assert.Equal(t, api.Connected, a.State())
}

func TestAcceptor_CloseCancelsPendingAccept(t *testing.T) {
	l, comp := completionLoop(t)
	a, err := tcp.ListenOverlapped(l, local, comp, tcp.Options{})
	require.NoError(t, err)
	lfd := a.Fd()

	var order []string
	require.NoError(t, a.Accept(func(_ *tcp.Acceptor, c *tcp.OverlappedConn, _ any) {
		assert.Nil(t, c)
		order = append(order, "accept")
	}, nil))
	require.NoError(t, a.Close(func(*tcp.Acceptor) { order = append(order, "close") }))
	assert.ErrorIs(t, a.Accept(nil, nil), api.ErrClosed)

	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []string{"accept", "close"}, order)
	_, _, closed := comp.HandleState(lfd)
	assert.True(t, closed)
	assert.Equal(t, 0, l.Bound())
}

func TestDialOverlapped_QueuedUntilConnected(t *testing.T) {
	l, comp := completionLoop(t)
	rec := &recorder{}

	c, err := tcp.DialOverlapped(l, peer, comp, rec.overlapped, "dial")
	require.NoError(t, err)
	fd := c.Fd()
	assert.Equal(t, api.Connecting, c.State())

	require.True(t, c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "read"))
	require.True(t, c.WriteQueueAdd([]byte("hi"), rec.overlapped, "write"))
	recv, send := comp.Outstanding(fd)
	assert.Nil(t, recv)
	assert.Nil(t, send)

	comp.CompleteConnect(fd, nil)
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, api.Connected, c.State())
	assert.Equal(t, []int{0}, rec.n)
	_, connected, _ := comp.HandleState(fd)
	assert.True(t, connected)

	recv, send = comp.Outstanding(fd)
	assert.Len(t, recv, 1)
	assert.Len(t, send, 1)
}

func TestDialOverlapped_Failure(t *testing.T) {
	l, comp := completionLoop(t)
	rec := &recorder{}

	c, err := tcp.DialOverlapped(l, peer, comp, rec.overlapped, "dial")
	require.NoError(t, err)
	c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "read")

	comp.CompleteConnect(c.Fd(), errors.New("WSAECONNREFUSED"))
	require.NoError(t, l.RunOnce(false))

	assert.True(t, c.Failed())
	assert.Equal(t, []int{api.ErrorBytes, api.ErrorBytes}, rec.n)
	assert.Equal(t, []any{"dial", "read"}, rec.attrs)
}
