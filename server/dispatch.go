package server

import (
	"gridworld/patch"
	"gridworld/protocol"
)

// dispatch runs one already-permission-gated-or-not opcode against the
// simulator and returns the response payload to send back (nil if the
// opcode itself is malformed and the connection should simply be
// terminated) together with the opcode to frame it under, and whether the
// connection must close after this exchange.
func (s *Server) dispatch(record *clientRecord, opcode protocol.Opcode, payload []byte) (resp []byte, respOpcode protocol.Opcode, fatal bool) {
	if required := protocol.RequiredPermission(opcode); required != 0 && !record.hasPermission(required) {
		return deniedResponse(opcode), opcode, false
	}

	switch opcode {
	case protocol.AddAgent:
		return s.handleAddAgent(record)
	case protocol.RemoveAgent:
		return s.handleRemoveAgent(record, payload)
	case protocol.Move:
		return s.handleMove(record, payload)
	case protocol.Turn:
		return s.handleTurn(record, payload)
	case protocol.DoNothing:
		return s.handleDoNothing(record, payload)
	case protocol.GetMap:
		return s.handleGetMap(payload)
	case protocol.GetAgentIDs:
		return s.handleGetAgentIDs(record)
	case protocol.GetAgentStates:
		return s.handleGetAgentStates(record, payload)
	case protocol.SetActive:
		return s.handleSetActive(record, payload)
	case protocol.IsActive:
		return s.handleIsActive(record, payload)
	case protocol.AddSemaphore:
		return s.handleAddSemaphore(record)
	case protocol.RemoveSemaphore:
		return s.handleRemoveSemaphore(record, payload)
	case protocol.SignalSemaphore:
		return s.handleSignalSemaphore(payload)
	case protocol.GetSemaphores:
		return s.handleGetSemaphores()
	default:
		// Step is server -> client only; anything else is an opcode the
		// server never defined. Either way this is a framing violation:
		// spec.md §7 says the offending side closes the connection.
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), opcode, true
	}
}

// deniedResponse encodes a VIOLATED_PERMISSIONS status in the response
// shape each opcode's decoder expects, since not every response is a bare
// status frame.
func deniedResponse(opcode protocol.Opcode) []byte {
	switch opcode {
	case protocol.AddAgent:
		return protocol.EncodeAddAgentResponse(protocol.ViolatedPermissions, protocol.AgentState{})
	case protocol.GetMap:
		return protocol.EncodeGetMapResponse(protocol.ViolatedPermissions, nil)
	case protocol.GetAgentIDs:
		return protocol.EncodeGetAgentIDsResponse(protocol.ViolatedPermissions, nil)
	case protocol.GetAgentStates:
		return protocol.EncodeAgentStatesResponse(protocol.ViolatedPermissions, nil)
	case protocol.IsActive:
		return protocol.EncodeIsActiveResponse(protocol.ViolatedPermissions, false)
	case protocol.AddSemaphore:
		return protocol.EncodeAddSemaphoreResponse(protocol.ViolatedPermissions, 0)
	case protocol.GetSemaphores:
		return protocol.EncodeGetSemaphoresResponse(protocol.ViolatedPermissions, nil)
	default:
		return protocol.EncodeStatusResponse(protocol.ViolatedPermissions)
	}
}

func (s *Server) handleAddAgent(record *clientRecord) ([]byte, protocol.Opcode, bool) {
	id := s.sim.AddAgent(s.defaultSpawn, s.defaultFacing)
	record.addAgent(id)
	st := indexStates(s.sim.GetAgentStates())[id]
	return protocol.EncodeAddAgentResponse(protocol.OK, toProtocolState(st)), protocol.AddAgent, false
}

func (s *Server) handleRemoveAgent(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	id, err := protocol.DecodeRemoveAgentRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.RemoveAgent, true
	}
	if !record.ownsAgent(id) {
		return protocol.EncodeStatusResponse(protocol.InvalidAgentID), protocol.RemoveAgent, false
	}
	s.sim.RemoveAgent(id)
	record.removeAgent(id)
	return protocol.EncodeStatusResponse(protocol.OK), protocol.RemoveAgent, false
}

func (s *Server) handleMove(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	id, dir, steps, err := protocol.DecodeMoveRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.Move, true
	}
	if !record.ownsAgent(id) {
		return protocol.EncodeStatusResponse(protocol.InvalidAgentID), protocol.Move, false
	}
	current, ok := indexStates(s.sim.GetAgentStates())[id]
	if !ok {
		return protocol.EncodeStatusResponse(protocol.InvalidAgentID), protocol.Move, false
	}
	path := movePath(current.Position, dir, steps)
	err = s.sim.MoveSteps(id, path)
	return protocol.EncodeStatusResponse(statusForErr(err)), protocol.Move, false
}

func (s *Server) handleTurn(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	id, wireTurn, err := protocol.DecodeTurnRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.Turn, true
	}
	if !record.ownsAgent(id) {
		return protocol.EncodeStatusResponse(protocol.InvalidAgentID), protocol.Turn, false
	}
	err = s.sim.Turn(id, rotationFromWire(wireTurn))
	return protocol.EncodeStatusResponse(statusForErr(err)), protocol.Turn, false
}

func (s *Server) handleDoNothing(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	id, err := protocol.DecodeIDRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.DoNothing, true
	}
	if !record.ownsAgent(id) {
		return protocol.EncodeStatusResponse(protocol.InvalidAgentID), protocol.DoNothing, false
	}
	err = s.sim.DoNothing(id)
	return protocol.EncodeStatusResponse(statusForErr(err)), protocol.DoNothing, false
}

func (s *Server) handleGetMap(payload []byte) ([]byte, protocol.Opcode, bool) {
	box, err := protocol.DecodeGetMapRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.GetMap, true
	}
	patches := s.sim.GetMap(box)
	records := make([]protocol.PatchRecord, 0, len(patches))
	for coord, p := range patches {
		p.Lock()
		items := make([]patch.Item, len(p.Items))
		copy(items, p.Items)
		fixed := p.Fixed
		scent := make([]float64, len(p.Scent))
		for i, cell := range p.Scent {
			scent[i] = cell.AtomicRead()
		}
		vision := make([]float64, len(p.Vision))
		copy(vision, p.Vision)
		p.Unlock()
		records = append(records, protocol.PatchRecord{Coord: coord, Items: items, Fixed: fixed, Scent: scent, Vision: vision})
	}
	return protocol.EncodeGetMapResponse(protocol.OK, records), protocol.GetMap, false
}

func (s *Server) handleGetAgentIDs(record *clientRecord) ([]byte, protocol.Opcode, bool) {
	return protocol.EncodeGetAgentIDsResponse(protocol.OK, record.agentIDs()), protocol.GetAgentIDs, false
}

func (s *Server) handleGetAgentStates(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	ids, err := protocol.DecodeGetAgentStatesRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.GetAgentStates, true
	}
	for _, id := range ids {
		if !record.ownsAgent(id) {
			return protocol.EncodeAgentStatesResponse(protocol.InvalidAgentID, nil), protocol.GetAgentStates, false
		}
	}
	byID := indexStates(s.sim.GetAgentStates())
	states := make([]protocol.AgentState, 0, len(ids))
	for _, id := range ids {
		if st, ok := byID[id]; ok {
			states = append(states, toProtocolState(st))
		}
	}
	return protocol.EncodeAgentStatesResponse(protocol.OK, states), protocol.GetAgentStates, false
}

func (s *Server) handleSetActive(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	id, active, err := protocol.DecodeSetActiveRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.SetActive, true
	}
	if !record.ownsAgent(id) {
		return protocol.EncodeStatusResponse(protocol.InvalidAgentID), protocol.SetActive, false
	}
	err = s.sim.SetActive(id, active)
	return protocol.EncodeStatusResponse(statusForErr(err)), protocol.SetActive, false
}

func (s *Server) handleIsActive(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	id, err := protocol.DecodeIDRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.IsActive, true
	}
	if !record.ownsAgent(id) {
		return protocol.EncodeIsActiveResponse(protocol.InvalidAgentID, false), protocol.IsActive, false
	}
	active, err := s.sim.IsActive(id)
	return protocol.EncodeIsActiveResponse(statusForErr(err), active), protocol.IsActive, false
}

func (s *Server) handleAddSemaphore(record *clientRecord) ([]byte, protocol.Opcode, bool) {
	id := s.sim.AddSemaphore()
	record.addSemaphore(id)
	return protocol.EncodeAddSemaphoreResponse(protocol.OK, id), protocol.AddSemaphore, false
}

func (s *Server) handleRemoveSemaphore(record *clientRecord, payload []byte) ([]byte, protocol.Opcode, bool) {
	id, err := protocol.DecodeIDRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.RemoveSemaphore, true
	}
	if !record.ownsSemaphore(id) {
		return protocol.EncodeStatusResponse(protocol.InvalidAgentID), protocol.RemoveSemaphore, false
	}
	s.sim.RemoveSemaphore(id)
	record.removeSemaphore(id)
	return protocol.EncodeStatusResponse(protocol.OK), protocol.RemoveSemaphore, false
}

// handleSignalSemaphore does not check ownership: semaphores are shared
// coordination objects (spec.md's external-scheduler gate), and any client
// holding PermSignalSemaphore and the id may signal it, not only its creator.
func (s *Server) handleSignalSemaphore(payload []byte) ([]byte, protocol.Opcode, bool) {
	id, err := protocol.DecodeIDRequest(payload)
	if err != nil {
		return protocol.EncodeStatusResponse(protocol.ServerParseMessageError), protocol.SignalSemaphore, true
	}
	err = s.sim.SignalSemaphore(id)
	return protocol.EncodeStatusResponse(statusForErr(err)), protocol.SignalSemaphore, false
}

func (s *Server) handleGetSemaphores() ([]byte, protocol.Opcode, bool) {
	states := s.sim.GetSemaphoreStates()
	out := make([]protocol.SemaphoreState, len(states))
	for i, st := range states {
		out[i] = protocol.SemaphoreState{ID: st.ID, Signaled: st.Signaled}
	}
	return protocol.EncodeGetSemaphoresResponse(protocol.OK, out), protocol.GetSemaphores, false
}
