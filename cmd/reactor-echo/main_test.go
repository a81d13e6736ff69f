// File: cmd/reactor-echo/main_test.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Flags(t *testing.T) {
	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--addr", "127.0.0.1:7000",
		"--loops", "2",
		"--tick", "5ms",
		"--idle-timeout", "1s",
		"--log-format", "json",
	}))

	addr, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", addr)
	loops, _ := cmd.Flags().GetInt("loops")
	assert.Equal(t, 2, loops)
	tick, _ := cmd.Flags().GetDuration("tick")
	assert.Equal(t, 5*time.Millisecond, tick)
	bufSize, _ := cmd.Flags().GetInt("buf-size")
	assert.Equal(t, 4096, bufSize)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(&config{logLevel: "debug", logFormat: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	_, err = newLogger(&config{logLevel: "loud", logFormat: "text"})
	assert.Error(t, err)
	_, err = newLogger(&config{logLevel: "info", logFormat: "xml"})
	assert.Error(t, err)
}

func TestIdleTicks(t *testing.T) {
	assert.Equal(t, uint64(0), idleTicks(&config{tick: time.Millisecond}))
	assert.Equal(t, uint64(250), idleTicks(&config{tick: 2 * time.Millisecond, idle: 500 * time.Millisecond}))
}
