// File: tcp/ring_test.go
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
)

func bufs(sizes ...int) [][]byte {
	out := make([][]byte, len(sizes))
	for i, n := range sizes {
		out[i] = make([]byte, n)
	}
	return out
}

func counts(done []completed) []int {
	out := make([]int, len(done))
	for i, d := range done {
		out[i] = d.n
	}
	return out
}

func TestRing_SizeMustBePowerOfTwoWithinMask(t *testing.T) {
	for _, n := range []int{0, 3, 12, 32} {
		assert.Panics(t, func() { newRing(n) }, "size %d", n)
	}
	for _, n := range []int{1, 2, 8, 16} {
		assert.NotPanics(t, func() { newRing(n) }, "size %d", n)
	}
}

func TestRing_PushIsAllOrNothing(t *testing.T) {
	q := newRing(ReadRingSize)
	require.True(t, q.push(bufs(1, 1, 1), nil, nil))
	assert.Equal(t, 3, q.len())

	assert.False(t, q.push(bufs(1, 1, 1, 1, 1, 1), nil, nil))
	assert.Equal(t, 3, q.len())
	assert.False(t, q.push(nil, nil, nil))

	require.True(t, q.push(bufs(1, 1, 1, 1, 1), nil, nil))
	assert.Equal(t, 0, q.free())
	assert.False(t, q.push(bufs(1), nil, nil))
}

func TestRing_OnlyLastSlotOfGroupNotifies(t *testing.T) {
	q := newRing(ReadRingSize)
	require.True(t, q.push(bufs(2, 2, 2), nil, "group"))
	require.True(t, q.push(bufs(2), nil, "single"))

	var marks []bool
	for !q.empty() {
		_, last := q.head()
		marks = append(marks, last)
		q.pop()
	}
	assert.Equal(t, []bool{false, false, true, true}, marks)
}

func TestRing_ConsumeReadAcrossGroups(t *testing.T) {
	q := newRing(ReadRingSize)
	q.push(bufs(2, 2), nil, "vec")
	q.push(bufs(4), nil, "one")
	q.push(bufs(4), nil, "two")
	iov := q.submit(nil)
	require.Len(t, iov, 4)
	assert.False(t, q.unsent())

	done := q.consumeRead(7, nil)
	assert.Equal(t, []int{4, 3}, counts(done))
	assert.Equal(t, "vec", done[0].attr)
	assert.Equal(t, "one", done[1].attr)

	// The untouched request goes back to waiting.
	assert.Equal(t, 1, q.len())
	assert.True(t, q.unsent())
	assert.False(t, q.inflight())
}

func TestRing_ConsumeReadEndingOnRequestBoundary(t *testing.T) {
	q := newRing(ReadRingSize)
	q.push(bufs(4), nil, "a")
	q.push(bufs(2, 2), nil, "vec")
	q.push(bufs(4), nil, "b")
	q.submit(nil)

	done := q.consumeRead(4, nil)
	assert.Equal(t, []int{4}, counts(done))
	assert.Equal(t, "a", done[0].attr)
	assert.Equal(t, 3, q.len())
	assert.True(t, q.unsent())
	assert.False(t, q.inflight())

	// Inside a group a slot boundary still ends the group.
	q.submit(nil)
	done = q.consumeRead(2, nil)
	require.Len(t, done, 1)
	assert.Equal(t, 2, done[0].n)
	assert.Equal(t, "vec", done[0].attr)
	assert.Equal(t, 1, q.len())
	assert.True(t, q.unsent())
}

func TestRing_ShortReadInsideGroupCompletesGroup(t *testing.T) {
	q := newRing(ReadRingSize)
	q.push(bufs(2, 2, 2), nil, "vec")
	q.push(bufs(2), nil, "next")
	q.submit(nil)

	done := q.consumeRead(1, nil)
	require.Len(t, done, 1)
	assert.Equal(t, 1, done[0].n)
	assert.Equal(t, "vec", done[0].attr)
	assert.Equal(t, 1, q.len())
}

func TestRing_ConsumeWriteTrimsPartialSlot(t *testing.T) {
	q := newRing(WriteRingSize)
	q.push([][]byte{[]byte("hello")}, nil, nil)
	q.push([][]byte{[]byte("ab"), []byte("cd")}, nil, nil)
	q.submit(nil)

	done := q.consumeWrite(3, nil)
	assert.Empty(t, done)
	iov := q.submit(nil)
	require.Len(t, iov, 3)
	assert.Equal(t, "lo", string(iov[0]))

	done = q.consumeWrite(5, nil)
	assert.Equal(t, []int{5}, counts(done))
	iov = q.submit(nil)
	require.Len(t, iov, 1)
	assert.Equal(t, "d", string(iov[0]))

	done = q.consumeWrite(1, nil)
	assert.Equal(t, []int{4}, counts(done))
	assert.True(t, q.empty())
}

func TestRing_DrainFirstAndRest(t *testing.T) {
	q := newRing(ReadRingSize)
	q.push(bufs(1, 1), nil, nil)
	q.push(bufs(1), nil, nil)
	q.push(bufs(1), nil, nil)
	q.submit(nil)

	done := q.drain(0, api.ErrorBytes, nil)
	assert.Equal(t, []int{0, api.ErrorBytes, api.ErrorBytes}, counts(done))
	assert.True(t, q.empty())
	assert.Equal(t, ReadRingSize, q.free())

	// Cursors keep counting across a drain.
	assert.Equal(t, uint32(4), q.r)
	assert.False(t, q.unsent())
	assert.False(t, q.inflight())
	require.True(t, q.push(bufs(1), nil, "after"))
	_, last := q.head()
	assert.True(t, last)
}

func TestRing_WrapsAround(t *testing.T) {
	q := newRing(2)
	for i := 0; i < 5; i++ {
		require.True(t, q.push(bufs(1, 1), nil, i))
		q.submit(nil)
		done := q.consumeRead(2, nil)
		require.Len(t, done, 1)
		assert.Equal(t, i, done[0].attr)
		assert.True(t, q.empty())
	}
}
