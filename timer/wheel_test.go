// File: timer/wheel_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package timer_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/timer"
)

func TestWheel_ArmRunScenario(t *testing.T) {
	w := timer.New(0)
	fired := 0
	e := timer.NewEntry(func(*timer.Entry) { fired++ })

	w.Link(e, 100)
	assert.Equal(t, uint64(100), w.Timeout())

	w.Run(50)
	assert.Equal(t, 0, fired)
	assert.True(t, e.Linked())
	assert.Equal(t, uint64(50), w.Timeout())

	w.Run(150)
	assert.Equal(t, 1, fired)
	assert.False(t, e.Linked())
	assert.Equal(t, timer.Never, w.Timeout())

	w.Run(10_000)
	assert.Equal(t, 1, fired)
}

func TestWheel_EmptyTimeoutIsNever(t *testing.T) {
	w := timer.New(42)
	assert.Equal(t, timer.Never, w.Timeout())
	w.Run(1 << 40)
	assert.Equal(t, uint64(1<<40), w.Now())
}

func TestWheel_UnlinkIsIdempotent(t *testing.T) {
	w := timer.New(0)
	fired := false
	e := timer.NewEntry(func(*timer.Entry) { fired = true })

	e.Unlink()
	w.Link(e, 10)
	w.Unlink(e)
	w.Unlink(e)
	assert.Equal(t, 0, w.Len())

	w.Run(20)
	assert.False(t, fired)
	assert.Equal(t, timer.Never, w.Timeout())
}

func TestWheel_RelinkMoves(t *testing.T) {
	w := timer.New(0)
	var at []uint64
	e := timer.NewEntry(nil)
	e.SetCallback(func(*timer.Entry) { at = append(at, w.Now()) })

	w.Link(e, 10)
	w.Link(e, 3000)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, uint64(3000), w.Timeout())

	w.Run(2999)
	assert.Empty(t, at)
	w.Run(3000)
	assert.Equal(t, []uint64{3000}, at)
}

func TestWheel_PastDeadlineFiresOnNextRun(t *testing.T) {
	w := timer.New(500)
	fired := 0
	e := timer.NewEntry(func(*timer.Entry) { fired++ })

	w.Link(e, 100)
	assert.Equal(t, uint64(0), w.Timeout())
	w.Run(500)
	assert.Equal(t, 1, fired)
}

func TestWheel_BackwardsRunIsNoop(t *testing.T) {
	w := timer.New(100)
	fired := 0
	w.Link(timer.NewEntry(func(*timer.Entry) { fired++ }), 120)
	w.Run(50)
	assert.Equal(t, uint64(100), w.Now())
	assert.Equal(t, 0, fired)
}

func TestWheel_RunExpiredCollects(t *testing.T) {
	w := timer.New(0)
	a := timer.NewEntry(nil)
	b := timer.NewEntry(nil)
	c := timer.NewEntry(nil)
	w.Link(a, 5)
	w.Link(b, 40)
	w.Link(c, 90)

	var q timer.Queue
	w.RunExpired(&q, 40)
	require.Equal(t, 2, q.Len())
	assert.Same(t, a, q.Pop())
	assert.Same(t, b, q.Pop())
	assert.Nil(t, q.Pop())
	assert.Equal(t, uint64(50), w.Timeout())

	// parked entries can be re-armed straight from the queue
	w.RunExpired(&q, 90)
	require.Equal(t, 1, q.Len())
	w.Link(c, 200)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 1, w.Len())
}

func TestWheel_CallbackMayRearm(t *testing.T) {
	w := timer.New(0)
	var ticks []uint64
	var e *timer.Entry
	e = timer.NewEntry(func(*timer.Entry) {
		ticks = append(ticks, w.Now())
		if len(ticks) < 3 {
			w.Link(e, w.Now()+7)
		}
	})
	w.Link(e, 7)
	w.Run(100)
	assert.Equal(t, []uint64{7, 14, 21}, ticks)
}

func TestWheel_OverflowDeadline(t *testing.T) {
	w := timer.New(0)
	far := uint64(1)<<31 + 17
	fired := uint64(0)
	w.Link(timer.NewEntry(func(*timer.Entry) { fired = w.Now() }), far)
	assert.Equal(t, far, w.Timeout())

	w.Run(far - 1)
	assert.Zero(t, fired)
	w.Run(far)
	assert.Equal(t, far, fired)
}

// Every entry with expiry <= now fires exactly once and Timeout reports the
// soonest remaining deadline.
func TestWheel_RandomizedMonotonicity(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	w := timer.New(0)

	const n = 2000
	entries := make([]*timer.Entry, n)
	fired := make(map[*timer.Entry]int, n)
	for i := range entries {
		entries[i] = timer.NewEntry(func(e *timer.Entry) {
			if e.ExpireAt() > w.Now() {
				t.Errorf("entry for %d fired at %d", e.ExpireAt(), w.Now())
			}
			fired[e]++
		})
		w.Link(entries[i], uint64(rnd.Int63n(200_000)))
	}
	cancelled := make(map[*timer.Entry]bool)
	for i := 0; i < n/4; i++ {
		e := entries[rnd.Intn(n)]
		e.Unlink()
		cancelled[e] = true
	}

	now := uint64(0)
	for now < 210_000 {
		live := make([]uint64, 0, n)
		for _, e := range entries {
			if e.Linked() {
				live = append(live, e.ExpireAt())
			}
		}
		sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
		if len(live) == 0 {
			require.Equal(t, timer.Never, w.Timeout())
		} else {
			require.Equal(t, live[0]-now, w.Timeout(), "now=%d", now)
		}
		now += uint64(rnd.Int63n(3000)) + 1
		w.Run(now)
	}

	for _, e := range entries {
		if cancelled[e] {
			assert.Zero(t, fired[e])
			continue
		}
		assert.Equal(t, 1, fired[e])
	}
}
