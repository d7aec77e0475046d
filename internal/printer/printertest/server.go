// Package printertest provides an in-process raw TCP printer for tests.
package printertest

import (
	"bytes"
	"net"
	"sync"
	"testing"
)

// Server answers DLE EOT status requests from a reply table and records
// every other byte it receives.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	replies  map[byte]byte
	silent   bool
	received bytes.Buffer
	conns    []net.Conn
}

// NewServer listens on a loopback port and stops when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("printertest: listen: %v", err)
	}
	s := &Server{ln: ln, replies: map[byte]byte{}}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// SetReply sets the status byte returned for a DLE EOT class.
func (s *Server) SetReply(class, b byte) {
	s.mu.Lock()
	s.replies[class] = b
	s.mu.Unlock()
}

// SetSilent stops answering status requests while keeping connections open.
func (s *Server) SetSilent(v bool) {
	s.mu.Lock()
	s.silent = v
	s.mu.Unlock()
}

// Received returns the non-status bytes written so far.
func (s *Server) Received() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.received.Bytes()...)
}

// DropClients closes every accepted connection, like a printer reboot.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.DropClients()
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)

		for len(pending) > 0 {
			i := bytes.IndexByte(pending, 0x10)
			if i < 0 {
				s.record(pending)
				pending = nil
				break
			}
			if i > 0 {
				s.record(pending[:i])
				pending = pending[i:]
			}
			// Wait for the rest of a split request.
			if len(pending) < 3 && (len(pending) == 1 || pending[1] == 0x04) {
				break
			}
			if pending[1] != 0x04 {
				s.record(pending[:1])
				pending = pending[1:]
				continue
			}
			s.answer(conn, pending[2])
			pending = pending[3:]
		}
	}
}

func (s *Server) record(b []byte) {
	s.mu.Lock()
	s.received.Write(b)
	s.mu.Unlock()
}

func (s *Server) answer(conn net.Conn, class byte) {
	s.mu.Lock()
	reply, ok := s.replies[class]
	silent := s.silent
	s.mu.Unlock()
	if ok && !silent {
		_, _ = conn.Write([]byte{reply})
	}
}
