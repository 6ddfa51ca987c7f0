package server

import (
	"bufio"
	"fmt"
	"net"

	"gridworld/protocol"
	"gridworld/simulator"
)

// handshake reads and answers the connection-setup frame spec.md §4.5
// describes: a fresh client_id of zero is allocated a new one, a nonzero
// client_id attempts reconnection to a prior session's state.
func (s *Server) handshake(conn net.Conn, reader *bufio.Reader) (*clientRecord, error) {
	opcode, payload, err := protocol.ReadFrame(reader, true)
	if err != nil {
		return nil, fmt.Errorf("server: read handshake frame: %w", err)
	}
	if opcode != protocol.Handshake {
		writeHandshakeStatus(conn, protocol.ServerParseMessageError)
		return nil, fmt.Errorf("server: expected handshake opcode, got %d", opcode)
	}
	req, err := protocol.DecodeHandshakeRequest(payload)
	if err != nil {
		writeHandshakeStatus(conn, protocol.ServerParseMessageError)
		return nil, fmt.Errorf("server: decode handshake: %w", err)
	}

	var record *clientRecord
	if req.ClientID == 0 {
		s.mu.Lock()
		s.nextClientID++
		id := s.nextClientID
		record = newClientRecord(id, req.PermissionRequest)
		s.clients[id] = record
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		existing, ok := s.clients[req.ClientID]
		s.mu.Unlock()
		if !ok {
			// The client claims an identity this server has no record of.
			// spec.md reserves AGENT_ALREADY_EXISTS for exactly this
			// reconnection edge case.
			writeHandshakeStatus(conn, protocol.AgentAlreadyExists)
			return nil, fmt.Errorf("server: unknown client id %d on reconnect", req.ClientID)
		}
		existing.setPermission(req.PermissionRequest)
		record = existing
	}

	record.setConn(conn)
	resp := protocol.HandshakeResponse{
		Status:      protocol.OK,
		ClientID:    record.id,
		CurrentTime: s.sim.CurrentTime(),
		OwnedAgents: ownedAgentStates(s.sim, record),
	}
	payload = protocol.EncodeHandshakeResponse(resp)
	if err := protocol.WriteFrame(conn, protocol.Handshake, payload); err != nil {
		return nil, fmt.Errorf("server: write handshake response: %w", err)
	}
	return record, nil
}

func writeHandshakeStatus(conn net.Conn, status protocol.Status) {
	resp := protocol.HandshakeResponse{Status: status}
	_ = protocol.WriteFrame(conn, protocol.Handshake, protocol.EncodeHandshakeResponse(resp))
}

// ownedAgentStates returns the current state of every agent record owns,
// in the order it acquired them.
func ownedAgentStates(sim *simulator.Simulator, record *clientRecord) []protocol.AgentState {
	owned := record.agentIDs()
	if len(owned) == 0 {
		return nil
	}
	byID := indexStates(sim.GetAgentStates())
	out := make([]protocol.AgentState, 0, len(owned))
	for _, id := range owned {
		if st, ok := byID[id]; ok {
			out = append(out, toProtocolState(st))
		}
	}
	return out
}
