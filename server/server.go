// Package server accepts client TCP connections and runs one handler
// goroutine per connection. The protocol is one JSON object per read with
// no framing; a read that splits or coalesces messages is not handled.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"

	"hubcore/clients"
	"hubcore/wire"
)

// Router routes one inbound message to its handler and returns the
// encoded reply.
type Router interface {
	Route(data []byte, conn clients.Conn) []byte
}

type Server struct {
	addr   string
	router Router

	listener net.Listener
	wg       sync.WaitGroup
}

func New(addr string, router Router) *Server {
	return &Server{addr: addr, router: router}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = listener
	log.Printf("server: listening on %s", s.addr)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, useful when the configured port
// was 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener. Connection handlers finish on their own when
// their client disconnects.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			log.Printf("server: accept loop exiting: %v", err)
			return
		}
		go s.handle(conn)
	}
}

// handle reads one message at a time, routes it, and writes the reply on
// the same socket. A reply tagged with the disconnect sentinel ends the
// loop after it is written.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	log.Printf("server: connection from %s", remote)

	adapter := &connAdapter{conn: conn}
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Printf("server: %s closed: %v", remote, err)
			return
		}
		reply := s.router.Route(buf[:n], adapter)
		if err := adapter.Send(reply); err != nil {
			log.Printf("server: write to %s: %v", remote, err)
			return
		}
		if isDisconnectReply(reply) {
			log.Printf("server: %s disconnected", remote)
			return
		}
	}
}

func isDisconnectReply(reply []byte) bool {
	var resp wire.Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return false
	}
	return resp.Order == wire.OrderDisconnect
}

// connAdapter serializes writes to one socket. Handler replies and
// asynchronous pushes from the registry share it.
type connAdapter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *connAdapter) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(payload)
	return err
}
