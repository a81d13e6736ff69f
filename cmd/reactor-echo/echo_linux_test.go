//go:build linux

// File: cmd/reactor-echo/echo_linux_test.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Echoes(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	logger, _ := logtest.NewNullLogger()
	cfg := &config{addr: addr, loops: 1, tick: time.Millisecond, bufSize: 512}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", addr)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	msg := []byte("the quick brown fox")
	_, err = conn.Write(msg)
	require.NoError(t, err)
	back := make([]byte, len(msg))
	_, err = io.ReadFull(conn, back)
	require.NoError(t, err)
	assert.Equal(t, msg, back)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
