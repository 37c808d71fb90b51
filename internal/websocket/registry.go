package websocket

import (
	"sync"

	"freecord/internal/models"
)

// Conn is a live connection bound to one scope and one user for its lifetime.
type Conn interface {
	ID() string
	UserID() int64
	Username() string
	Scope() models.Scope
	Send(data []byte) error
	Close() error
}

// Registry holds the open connections of every scope.
type Registry struct {
	mu     sync.RWMutex
	scopes map[models.Scope]map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{scopes: make(map[models.Scope]map[string]Conn)}
}

func (r *Registry) Connect(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.scopes[conn.Scope()]
	if !ok {
		conns = make(map[string]Conn)
		r.scopes[conn.Scope()] = conns
	}
	conns[conn.ID()] = conn
}

// Disconnect reports whether conn was registered. Removing an absent
// connection is a no-op.
func (r *Registry) Disconnect(scope models.Scope, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.scopes[scope]
	if !ok {
		return false
	}
	if _, ok := conns[conn.ID()]; !ok {
		return false
	}
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(r.scopes, scope)
	}
	return true
}

// Snapshot copies the scope's connections so callers can iterate without
// holding the lock.
func (r *Registry) Snapshot(scope models.Scope) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.scopes[scope]
	out := make([]Conn, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

func (r *Registry) Count(scope models.Scope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scopes[scope])
}
