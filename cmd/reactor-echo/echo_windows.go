//go:build windows

// File: cmd/reactor-echo/echo_windows.go
// Author: momentics <momentics@gmail.com>
//
// Completion-model echo: Acceptor posts AcceptEx, each OverlappedConn
// queues a receive and sends back what arrived.

package main

import (
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/pool"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/tcp"
)

type server struct {
	l        *reactor.Loop
	acc      *tcp.Acceptor
	port     tcp.Port
	log      *logrus.Entry
	bufs     *pool.BytePool
	sessions map[*session]struct{}
	stopping bool
}

type session struct {
	srv *server
	c   *tcp.OverlappedConn
	buf []byte
}

func newServer(l *reactor.Loop, addr netip.AddrPort, cfg *config, log *logrus.Entry) (*server, error) {
	port, err := tcp.NewPort()
	if err != nil {
		return nil, err
	}
	acc, err := tcp.ListenOverlapped(l, addr, port, tcp.DefaultOptions())
	if err != nil {
		return nil, err
	}
	s := &server{
		l:        l,
		acc:      acc,
		port:     port,
		log:      log,
		bufs:     pool.NewBytePool(cfg.bufSize, maxIdleBuffers),
		sessions: make(map[*session]struct{}),
	}
	s.accept()
	return s, nil
}

func (s *server) accept() {
	if s.stopping {
		return
	}
	if err := s.acc.Accept(s.onAccept, nil); err != nil {
		s.log.WithError(err).Warn("accept failed")
	}
}

func (s *server) onAccept(_ *tcp.Acceptor, c *tcp.OverlappedConn, _ any) {
	if c != nil {
		if s.stopping {
			_ = c.Close(nil)
		} else {
			ss := &session{srv: s, c: c, buf: s.bufs.GetBuffer()}
			s.sessions[ss] = struct{}{}
			ss.read()
		}
	}
	s.accept()
}

func (s *server) shutdown() {
	s.stopping = true
	_ = s.acc.Close(nil)
	for ss := range s.sessions {
		ss.close()
	}
	drain(s.l)
	s.log.WithField("buffers", s.bufs.Stats()).Debug("listener drained")
}

func (ss *session) read() {
	if !ss.c.ReadQueueAdd(ss.buf, ss.onRead, nil) {
		ss.close()
	}
}

func (ss *session) onRead(_ *tcp.OverlappedConn, n int, _ any) {
	if n <= 0 {
		ss.close()
		return
	}
	if !ss.c.WriteQueueAdd(ss.buf[:n], ss.onWrite, nil) {
		ss.close()
	}
}

func (ss *session) onWrite(_ *tcp.OverlappedConn, n int, _ any) {
	if n < 0 {
		ss.close()
		return
	}
	ss.read()
}

func (ss *session) close() {
	_ = ss.c.Close(func(*tcp.OverlappedConn) {
		delete(ss.srv.sessions, ss)
		ss.srv.bufs.PutBuffer(ss.buf)
	})
}
