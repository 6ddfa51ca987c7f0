package server

import (
	"net"
	"sync"

	"gridworld/agent"
	"gridworld/protocol"
)

// clientRecord is one connected-or-orphaned client: its granted
// permission, the agents/semaphores it owns, and (while connected) the
// socket to write STEP broadcasts and responses to. Survives across a lost
// connection so a later reconnect handshake can hand the same ids back,
// per spec.md §4.5's "owned agents remain in the world" failure semantics.
type clientRecord struct {
	id         uint64
	permission protocol.Permission

	mu   sync.Mutex // guards everything below
	conn net.Conn
	// sendMu serializes frame writes to conn: the connection's own
	// request-handling goroutine and the server's broadcast goroutine both
	// write responses/STEP frames to the same socket.
	sendMu          sync.Mutex
	ownedAgents     []agent.ID
	agentSet        map[agent.ID]bool
	ownedSemaphores []agent.ID
	semaphoreSet    map[agent.ID]bool
}

func newClientRecord(id uint64, perm protocol.Permission) *clientRecord {
	return &clientRecord{
		id:           id,
		permission:   perm,
		agentSet:     make(map[agent.ID]bool),
		semaphoreSet: make(map[agent.ID]bool),
	}
}

func (c *clientRecord) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *clientRecord) getConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *clientRecord) setPermission(perm protocol.Permission) {
	c.mu.Lock()
	c.permission = perm
	c.mu.Unlock()
}

func (c *clientRecord) hasPermission(want protocol.Permission) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission.Has(want)
}

func (c *clientRecord) addAgent(id agent.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentSet[id] {
		return
	}
	c.agentSet[id] = true
	c.ownedAgents = append(c.ownedAgents, id)
}

func (c *clientRecord) removeAgent(id agent.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.agentSet[id] {
		return
	}
	delete(c.agentSet, id)
	c.ownedAgents = removeID(c.ownedAgents, id)
}

func (c *clientRecord) ownsAgent(id agent.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentSet[id]
}

func (c *clientRecord) agentIDs() []agent.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]agent.ID, len(c.ownedAgents))
	copy(out, c.ownedAgents)
	return out
}

func (c *clientRecord) addSemaphore(id agent.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.semaphoreSet[id] {
		return
	}
	c.semaphoreSet[id] = true
	c.ownedSemaphores = append(c.ownedSemaphores, id)
}

func (c *clientRecord) removeSemaphore(id agent.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.semaphoreSet[id] {
		return
	}
	delete(c.semaphoreSet, id)
	c.ownedSemaphores = removeID(c.ownedSemaphores, id)
}

func (c *clientRecord) ownsSemaphore(id agent.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.semaphoreSet[id]
}

func (c *clientRecord) semaphoreIDs() []agent.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]agent.ID, len(c.ownedSemaphores))
	copy(out, c.ownedSemaphores)
	return out
}

func removeID(ids []agent.ID, target agent.ID) []agent.ID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
