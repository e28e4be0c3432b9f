// Package registry maps logical client ids to their live connections so the
// server can push asynchronous messages to clients other than the one that
// originated the current request.
package registry

import (
	"fmt"
	"sync"
)

// Conn is the write side of a client connection. Implementations must be
// safe for concurrent Send calls; the registry never serializes writes.
type Conn interface {
	Send(payload []byte) error
}

type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

func (r *Registry) Add(clientID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[clientID] = conn
}

func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, clientID)
}

func (r *Registry) get(clientID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[clientID]
	return conn, ok
}

// Send pushes a payload to the named client. The registry lock covers only
// the map lookup, never the socket write.
func (r *Registry) Send(clientID string, payload []byte) error {
	conn, ok := r.get(clientID)
	if !ok {
		return fmt.Errorf("client %s not connected", clientID)
	}
	return conn.Send(payload)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
