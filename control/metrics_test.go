// control/metrics_test.go
// Author: momentics <momentics@gmail.com>

package control_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/fake"
	"github.com/momentics/hioload-reactor/reactor"
)

func TestMetrics_RecordsLoopActivity(t *testing.T) {
	m := control.NewMetrics("test")
	logger, _ := logtest.NewNullLogger()
	p := fake.NewPoller()
	l := reactor.NewWithBackend(p, reactor.WithLogger(logger), reactor.WithRecorder(m))

	var ev reactor.Event
	require.NoError(t, ev.Bind(l, 3, reactor.HandlerFunc(func(*reactor.Event, reactor.Notification) {})))
	ev.RequestInterest(true, false)
	ev.MarkReady()
	l.Defer(func() {})
	require.NoError(t, l.RunOnce(false))

	var other reactor.Event
	require.NoError(t, other.Bind(l, 4, reactor.HandlerFunc(func(*reactor.Event, reactor.Notification) {})))
	p.SetAddError(errors.New("EBADF"))
	other.RequestInterest(true, false)
	require.NoError(t, l.RunOnce(false))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ticks.WithLabelValues("fake-poller")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("fake-poller", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("fake-poller", "error")))
	// The failed record is dispatched in the second cycle.
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Dispatched.WithLabelValues("fake-poller", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Tasks))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Timers))
}

func TestMetrics_RegistersAsCollector(t *testing.T) {
	m := control.NewMetrics("reactor")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))

	m.Tick("epoll", 3, 0)
	m.TimersFired(2)

	n, err := testutil.GatherAndCount(reg, "reactor_loop_ticks_total", "reactor_loop_timers_fired_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDebugProbes_DumpAndCounters(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("loops", func() any { return 4 })
	control.RegisterPlatformProbes(dp)

	m := control.NewMetrics("reactor")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))
	control.RegisterCounterProbe(dp, reg)
	m.Deferred(5)
	m.Tick("epoll", 1, 0)
	m.Tick("kqueue", 1, 0)

	state := dp.DumpState()
	assert.Equal(t, 4, state["loops"])
	assert.Contains(t, state, "platform.cpus")
	assert.Contains(t, state, "platform.backend")

	counters, ok := state["counters"].(map[string]float64)
	require.True(t, ok)
	assert.Equal(t, 5.0, counters["reactor_loop_deferred_total"])
	assert.Equal(t, 2.0, counters["reactor_loop_ticks_total"])

	fields := dp.Fields()
	assert.Equal(t, 4, fields["loops"])

	dp.RegisterProbe("loops", func() any { return 8 })
	assert.Equal(t, 8, dp.DumpState()["loops"])
}
