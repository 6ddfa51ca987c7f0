package server

import (
	"gridworld/persist"
	"gridworld/protocol"
)

// SnapshotClients returns every client record (connected or orphaned) in a
// form package persist can serialize alongside the simulator's own
// snapshot, plus the next client id to hand out so restored and freshly
// connecting clients never collide.
func (s *Server) SnapshotClients() ([]persist.ClientRecord, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persist.ClientRecord, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, persist.ClientRecord{
			ClientID:          c.id,
			PermissionBits:    uint64(c.permission),
			OwnedAgentIDs:     c.agentIDs(),
			OwnedSemaphoreIDs: c.semaphoreIDs(),
		})
	}
	return out, s.nextClientID
}

// RestoreClients repopulates the server's client table from a persisted
// snapshot. Every restored client starts disconnected; it regains its
// connection (and write access to its owned agents) on its next handshake,
// exactly as an orphaned-but-not-removed client would after a process
// restart.
func (s *Server) RestoreClients(records []persist.ClientRecord, nextClientID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		record := newClientRecord(r.ClientID, protocol.Permission(r.PermissionBits))
		for _, id := range r.OwnedAgentIDs {
			record.addAgent(id)
		}
		for _, id := range r.OwnedSemaphoreIDs {
			record.addSemaphore(id)
		}
		s.clients[r.ClientID] = record
	}
	if nextClientID > s.nextClientID {
		s.nextClientID = nextClientID
	}
}
