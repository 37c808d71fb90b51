package websocket

import "sync"

// Presence tracks every open connection of each user across all scopes. Add
// and Remove decide online/offline transitions under one lock, so two
// concurrent disconnects can never both observe the last connection.
type Presence struct {
	mu    sync.Mutex
	users map[int64]map[string]Conn
	gates map[int64]*userGate
}

// userGate serialises one user's transitions together with the status
// writes and broadcasts that follow them.
type userGate struct {
	mu   sync.Mutex
	refs int
}

func NewPresence() *Presence {
	return &Presence{
		users: make(map[int64]map[string]Conn),
		gates: make(map[int64]*userGate),
	}
}

// Lock holds userID's transition gate until the returned func is called.
// A transition decided under the gate is published before the next one of
// the same user can be decided.
func (p *Presence) Lock(userID int64) (unlock func()) {
	p.mu.Lock()
	g, ok := p.gates[userID]
	if !ok {
		g = &userGate{}
		p.gates[userID] = g
	}
	g.refs++
	p.mu.Unlock()

	g.mu.Lock()
	return func() {
		g.mu.Unlock()

		p.mu.Lock()
		g.refs--
		if g.refs == 0 {
			delete(p.gates, userID)
		}
		p.mu.Unlock()
	}
}

// Add reports whether conn is now the user's only connection.
func (p *Presence) Add(userID int64, conn Conn) (becameOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userID]
	if !ok {
		conns = make(map[string]Conn)
		p.users[userID] = conns
	}
	conns[conn.ID()] = conn
	return len(conns) == 1
}

// Remove reports whether the user has no connections left. It is false when
// conn was not tracked.
func (p *Presence) Remove(userID int64, conn Conn) (becameOffline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[conn.ID()]; !ok {
		return false
	}
	delete(conns, conn.ID())
	if len(conns) > 0 {
		return false
	}
	delete(p.users, userID)
	return true
}

func (p *Presence) Connections(userID int64) []Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Conn, 0, len(p.users[userID]))
	for _, conn := range p.users[userID] {
		out = append(out, conn)
	}
	return out
}

func (p *Presence) IsOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users[userID]) > 0
}

func (p *Presence) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}
