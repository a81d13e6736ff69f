//go:build !windows

// File: cmd/reactor-echo/echo_unix.go
// Author: momentics <momentics@gmail.com>
//
// Readiness-model echo: Listener accepts, each Conn reads then writes back.

package main

import (
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/pool"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/tcp"
)

type server struct {
	l        *reactor.Loop
	ln       *tcp.Listener
	log      *logrus.Entry
	bufs     *pool.BytePool
	idle     uint64
	sessions map[*session]struct{}
	stopping bool
}

type session struct {
	srv *server
	c   *tcp.Conn
	buf []byte
}

func newServer(l *reactor.Loop, addr netip.AddrPort, cfg *config, log *logrus.Entry) (*server, error) {
	opts := tcp.DefaultOptions()
	opts.ReusePort = cfg.loops > 1
	ln, err := tcp.Listen(l, addr, tcp.DefaultSys(), opts)
	if err != nil {
		return nil, err
	}
	s := &server{
		l:        l,
		ln:       ln,
		log:      log,
		bufs:     pool.NewBytePool(cfg.bufSize, maxIdleBuffers),
		idle:     idleTicks(cfg),
		sessions: make(map[*session]struct{}),
	}
	s.accept()
	return s, nil
}

func (s *server) accept() {
	for !s.stopping {
		c, st := s.ln.Accept(s.onAccept, nil)
		if st != api.StatusDone {
			return
		}
		s.start(c)
	}
}

func (s *server) onAccept(_ *tcp.Listener, c *tcp.Conn, _ any) {
	if c != nil {
		s.start(c)
	}
	s.accept()
}

func (s *server) start(c *tcp.Conn) {
	if s.stopping {
		_ = c.Close(nil)
		return
	}
	ss := &session{srv: s, c: c, buf: s.bufs.GetBuffer()}
	s.sessions[ss] = struct{}{}
	s.log.WithField("fd", c.Fd()).Debug("connection accepted")
	ss.read()
}

func (s *server) shutdown() {
	s.stopping = true
	_ = s.ln.Close(nil)
	for ss := range s.sessions {
		ss.close()
	}
	drain(s.l)
	s.log.WithField("buffers", s.bufs.Stats()).Debug("listener drained")
}

func (ss *session) read() {
	for {
		if ss.srv.idle > 0 {
			ss.c.SetTimeout(ss.srv.idle)
		}
		n, st := ss.c.Read(ss.buf, ss.onRead, nil)
		switch {
		case st == api.StatusPending:
			return
		case st == api.StatusError || n == 0:
			ss.close()
			return
		}
		if !ss.echo(n) {
			return
		}
	}
}

func (ss *session) onRead(_ *tcp.Conn, n int, _ any) {
	if n <= 0 {
		ss.close()
		return
	}
	if ss.echo(n) {
		ss.read()
	}
}

// echo reports whether the write finished synchronously.
func (ss *session) echo(n int) bool {
	_, st := ss.c.Write(ss.buf[:n], ss.onWrite, nil)
	switch st {
	case api.StatusDone:
		return true
	case api.StatusPending:
		return false
	}
	ss.close()
	return false
}

func (ss *session) onWrite(_ *tcp.Conn, n int, _ any) {
	if n < 0 {
		ss.close()
		return
	}
	ss.read()
}

func (ss *session) close() {
	err := ss.c.Close(func(*tcp.Conn) {
		delete(ss.srv.sessions, ss)
		ss.srv.bufs.PutBuffer(ss.buf)
	})
	if err == nil && ss.c.Err() != nil {
		ss.srv.log.WithError(ss.c.Err()).Debug("connection failed")
	}
}
