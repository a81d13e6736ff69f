// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named probes dumped on demand, e.g. when a server shuts down.

package control

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DebugProbes holds registered probe functions. Probes may be called from
// any goroutine and must only read goroutine-safe state.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts or replaces a named probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns the output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// Fields returns DumpState as log fields.
func (dp *DebugProbes) Fields() logrus.Fields {
	return logrus.Fields(dp.DumpState())
}

// RegisterCounterProbe exposes the counter totals gathered from g under
// "counters", summed across label values.
func RegisterCounterProbe(dp *DebugProbes, g prometheus.Gatherer) {
	dp.RegisterProbe("counters", func() any {
		families, err := g.Gather()
		if err != nil {
			return err.Error()
		}
		out := make(map[string]float64)
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				if c := m.GetCounter(); c != nil {
					out[mf.GetName()] += c.GetValue()
				}
			}
		}
		return out
	})
}
