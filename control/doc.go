// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for reactor loops.
//
// Provides:
//   - Metrics, a Prometheus collector plugged into loops as their Recorder
//   - DebugProbes, named state reporters dumped on demand
//   - platform probes, build-tag-partitioned
package control
