// File: tcp/overlapped_conn_test.go
// Author: momentics <momentics@gmail.com>

package tcp_test

import (
	"errors"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/fake"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/tcp"
)

func completionLoop(t *testing.T) (*reactor.Loop, *fake.Completer) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	comp := fake.NewCompleter()
	return reactor.NewWithBackend(comp, reactor.WithLogger(logger)), comp
}

func openOverlapped(t *testing.T, l *reactor.Loop, comp *fake.Completer) (*tcp.OverlappedConn, uintptr) {
	t.Helper()
	fd, err := comp.Socket(false)
	require.NoError(t, err)
	c, err := tcp.NewOverlappedConn(l, fd, comp)
	require.NoError(t, err)
	return c, fd
}

func TestOverlapped_NewAssociatesHandle(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)

	assert.Equal(t, 1, comp.Associations())
	assert.True(t, c.Registered())
	assert.Equal(t, api.Connected, c.State())
	assert.Equal(t, fd, c.Fd())
}

func TestOverlapped_SingleOutstandingReceive(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	a, b, d := make([]byte, 4), make([]byte, 4), make([]byte, 4)
	require.True(t, c.ReadQueueAdd(a, rec.overlapped, "a"))
	require.True(t, c.ReadQueueAdd(b, rec.overlapped, "b"))
	require.True(t, c.ReadQueueAdd(d, rec.overlapped, "d"))

	recv, _ := comp.Outstanding(fd)
	require.Len(t, recv, 1, "only the first buffer was posted")
	recvs, _ := comp.Submissions(fd)
	assert.Equal(t, 1, recvs)

	// Short completion: the head request gets what arrived.
	assert.Equal(t, 2, comp.Fill(fd, []byte("xy")))
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{2}, rec.n)
	assert.Equal(t, "xy", string(a[:2]))

	recv, _ = comp.Outstanding(fd)
	require.Len(t, recv, 2, "the rest is posted as one operation")

	comp.Fill(fd, []byte("123456"))
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{2, 4, 2}, rec.n)
	assert.Equal(t, []any{"a", "b", "d"}, rec.attrs)
	assert.Equal(t, "1234", string(b))
	assert.Equal(t, "56", string(d[:2]))

	reads, _ := c.Queued()
	assert.Equal(t, 0, reads)
}

func TestOverlapped_CompletionOnRequestBoundaryKeepsNextPending(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	for _, attr := range []string{"a", "b", "d"} {
		require.True(t, c.ReadQueueAdd(make([]byte, 4), rec.overlapped, attr))
	}
	comp.Fill(fd, []byte("xy"))
	require.NoError(t, l.RunOnce(false))
	comp.Fill(fd, []byte("1234"))
	require.NoError(t, l.RunOnce(false))

	assert.Equal(t, []int{2, 4}, rec.n)
	assert.Equal(t, []any{"a", "b"}, rec.attrs)
	assert.False(t, c.EOF())
	reads, _ := c.Queued()
	assert.Equal(t, 1, reads)
	recv, _ := comp.Outstanding(fd)
	require.Len(t, recv, 1, "the next request is posted again")

	comp.Fill(fd, []byte("zz"))
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{2, 4, 2}, rec.n)
	assert.Equal(t, "d", rec.attrs[2])
}

func TestOverlapped_ReadRingBackPressure(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	nine := make([][]byte, tcp.ReadRingSize+1)
	for i := range nine {
		nine[i] = make([]byte, 1)
	}
	assert.False(t, c.ReadQueueAddVec(nine, rec.overlapped, nil))
	recv, _ := comp.Outstanding(fd)
	assert.Nil(t, recv)

	for i := 0; i < 3; i++ {
		require.True(t, c.ReadQueueAdd(make([]byte, 1), rec.overlapped, i))
	}
	assert.False(t, c.ReadQueueAddVec(nine[:6], rec.overlapped, nil))
	reads, _ := c.Queued()
	assert.Equal(t, 3, reads)

	assert.False(t, c.ReadQueueAdd(nil, rec.overlapped, nil))
	assert.False(t, c.ReadQueueAddVec([][]byte{{}, {}}, rec.overlapped, nil))
	assert.Empty(t, rec.n)
}

func TestOverlapped_VectoredReadCallsBackOnce(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	parts := [][]byte{make([]byte, 2), make([]byte, 2), make([]byte, 2)}
	require.True(t, c.ReadQueueAddVec(parts, rec.overlapped, "vec"))
	comp.Fill(fd, []byte("abcde"))
	require.NoError(t, l.RunOnce(false))

	assert.Equal(t, []int{5}, rec.n)
	assert.Equal(t, "ab", string(parts[0]))
	assert.Equal(t, "cd", string(parts[1]))
	assert.Equal(t, "e", string(parts[2][:1]))
}

func TestOverlapped_PartialSendResubmitsTail(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	require.True(t, c.WriteQueueAdd([]byte("hello"), rec.overlapped, "w1"))
	require.True(t, c.WriteQueueAddVec([][]byte{[]byte("ab"), []byte("cd")}, rec.overlapped, "w2"))
	_, send := comp.Outstanding(fd)
	require.Len(t, send, 1)

	comp.CompleteSend(fd, 3, nil)
	require.NoError(t, l.RunOnce(false))
	assert.Empty(t, rec.n)
	_, send = comp.Outstanding(fd)
	require.Len(t, send, 3)
	assert.Equal(t, "lo", string(send[0]))

	comp.CompleteSend(fd, 6, nil)
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{5, 4}, rec.n)
	assert.Equal(t, []any{"w1", "w2"}, rec.attrs)
	_, writes := c.Queued()
	assert.Equal(t, 0, writes)
}

func TestOverlapped_EndOfStream(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "head")
	c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "queued")
	comp.Fill(fd, nil)
	require.NoError(t, l.RunOnce(false))

	assert.True(t, c.EOF())
	assert.Equal(t, []int{0, api.ErrorBytes}, rec.n)

	require.True(t, c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "late"))
	assert.Len(t, rec.n, 2, "never called back synchronously")
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{0, api.ErrorBytes, 0}, rec.n)
	recvs, _ := comp.Submissions(fd)
	assert.Equal(t, 1, recvs)
}

func TestOverlapped_ErrorDrainsBothRings(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "r1")
	c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "r2")
	c.WriteQueueAdd([]byte("out"), rec.overlapped, "w1")
	comp.CompleteSend(fd, 3, nil)
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{3}, rec.n)

	c.WriteQueueAdd([]byte("more"), rec.overlapped, "w2")
	c.WriteQueueAdd([]byte("again"), rec.overlapped, "w3")
	reset := errors.New("connection reset")
	comp.CompleteRecv(fd, 0, reset)
	require.NoError(t, l.RunOnce(false))
	assert.True(t, c.Failed())
	assert.Equal(t, []int{3, api.ErrorBytes, api.ErrorBytes}, rec.n)

	// The send in flight still owns w2 and w3 until it completes; what it
	// carried counts, the rest is failed.
	comp.CompleteSend(fd, 4, nil)
	require.NoError(t, l.RunOnce(false))
	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []any{"w1", "r1", "r2", "w2", "w3"}, rec.attrs)
	assert.Equal(t, []int{3, api.ErrorBytes, api.ErrorBytes, 4, api.ErrorBytes}, rec.n)

	assert.False(t, c.ReadQueueAdd(make([]byte, 1), rec.overlapped, nil))
	assert.False(t, c.WriteQueueAdd([]byte("x"), rec.overlapped, nil))
}

func TestOverlapped_SubmitFailureAbortsQueued(t *testing.T) {
	l, comp := completionLoop(t)
	c, _ := openOverlapped(t, l, comp)
	rec := &recorder{}

	comp.SetRecvError(errors.New("WSAENOTCONN"))
	require.True(t, c.ReadQueueAdd(make([]byte, 4), rec.overlapped, nil))
	assert.True(t, c.Failed())
	assert.Empty(t, rec.n)

	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{api.ErrorBytes}, rec.n)
}

func TestOverlapped_CloseCancelsOutstanding(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)
	rec := &recorder{}

	c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "r1")
	c.ReadQueueAdd(make([]byte, 4), rec.overlapped, "r2")
	c.WriteQueueAdd([]byte("bye"), rec.overlapped, "w1")

	closed := 0
	require.NoError(t, c.Close(func(*tcp.OverlappedConn) { closed++ }))
	assert.ErrorIs(t, c.Close(nil), api.ErrClosed)
	assert.Empty(t, rec.n)
	assert.False(t, c.ReadQueueAdd(make([]byte, 1), rec.overlapped, nil))

	require.NoError(t, l.RunOnce(false))
	assert.Equal(t, []int{api.ErrorBytes, api.ErrorBytes, api.ErrorBytes}, rec.n)
	assert.Equal(t, []any{"r1", "r2", "w1"}, rec.attrs)
	assert.Equal(t, 1, closed)
	_, _, handleClosed := comp.HandleState(fd)
	assert.True(t, handleClosed)
	assert.Equal(t, 0, l.Bound())
}

func TestOverlapped_IdleCloseIsDeferred(t *testing.T) {
	l, comp := completionLoop(t)
	c, fd := openOverlapped(t, l, comp)

	closed := false
	require.NoError(t, c.Close(func(*tcp.OverlappedConn) { closed = true }))
	assert.False(t, closed)
	require.NoError(t, l.RunOnce(false))
	assert.True(t, closed)
	_, _, handleClosed := comp.HandleState(fd)
	assert.True(t, handleClosed)
	require.NoError(t, l.Close())
}
