//go:build linux

// File: affinity/affinity_linux_test.go
// Author: momentics <momentics@gmail.com>

package affinity_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/affinity"
)

func TestPin_RestrictsThread(t *testing.T) {
	allowed, err := affinity.Current()
	require.NoError(t, err)
	require.NotEmpty(t, allowed)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Exiting while locked retires the pinned thread.
		_, err := affinity.Pin(allowed[0])
		if !assert.NoError(t, err) {
			return
		}
		got, err := affinity.Current()
		assert.NoError(t, err)
		assert.Equal(t, []int{allowed[0]}, got)
	}()
	<-done
}

func TestSetAffinity_RejectsOutOfRange(t *testing.T) {
	assert.Error(t, affinity.SetAffinity(-1))
	assert.Error(t, affinity.SetAffinity(runtime.NumCPU()))
}
