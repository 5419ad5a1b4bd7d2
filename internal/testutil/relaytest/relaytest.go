// Package relaytest runs an in-process websocket peer that stands in for a
// realm server in tests.
package relaytest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Frame is one message received from a client.
type Frame struct {
	Op   ws.OpCode
	Data []byte
}

// Server accepts websocket clients, greets each with a fixed set of frames
// and records everything the clients send.
type Server struct {
	t        testing.TB
	http     *httptest.Server
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	accepted int
	greeting []Frame
	received chan Frame
	joined   chan struct{}
	wg       sync.WaitGroup
}

// New starts a Server. It is closed automatically when the test ends.
func New(t testing.TB, greeting ...Frame) *Server {
	t.Helper()
	s := &Server{
		t:        t,
		conns:    make(map[net.Conn]struct{}),
		greeting: greeting,
		received: make(chan Frame, 64),
		joined:   make(chan struct{}, 16),
	}
	s.http = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Binary builds a binary greeting frame.
func Binary(data []byte) Frame {
	return Frame{Op: ws.OpBinary, Data: data}
}

// Text builds a text greeting frame.
func Text(s string) Frame {
	return Frame{Op: ws.OpText, Data: []byte(s)}
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http")
}

// Received delivers frames sent by clients.
func (s *Server) Received() <-chan Frame {
	return s.received
}

// Joined receives a value each time a client has been greeted.
func (s *Server) Joined() <-chan struct{} {
	return s.joined
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Send writes one frame to every connected client.
func (s *Server) Send(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := wsutil.WriteServerMessage(conn, f.Op, f.Data); err != nil {
			s.t.Logf("relaytest: write failed: %v", err)
		}
	}
}

// Kick drops every connected client without a close handshake.
func (s *Server) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Close stops the server and waits for all handlers.
func (s *Server) Close() {
	s.Kick()
	s.http.CloseClientConnections()
	s.http.Close()
	s.wg.Wait()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.t.Logf("relaytest: upgrade failed: %v", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.accepted++
	for _, f := range s.greeting {
		if err := wsutil.WriteServerMessage(conn, f.Op, f.Data); err != nil {
			s.t.Logf("relaytest: greeting failed: %v", err)
		}
	}
	s.mu.Unlock()

	select {
	case s.joined <- struct{}{}:
	default:
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		select {
		case s.received <- Frame{Op: op, Data: data}:
		default:
			s.t.Logf("relaytest: receive buffer full, dropping frame")
		}
	}
}
