package server

import (
	"gridworld/protocol"
)

// broadcastLoop relays one StepEvent per committed turn to every connected
// client, each seeing only the agents it owns, per spec.md §4.5's "clients
// observe step broadcasts in the server's serialization order."
func (s *Server) broadcastLoop() error {
	stepCh := s.sim.Subscribe(s.groupCtx.Done(), 1)[0]
	for {
		select {
		case <-s.groupCtx.Done():
			return nil
		case _, ok := <-stepCh:
			if !ok {
				return nil
			}
			s.broadcastStep()
		}
	}
}

func (s *Server) broadcastStep() {
	byID := indexStates(s.sim.GetAgentStates())

	s.mu.Lock()
	records := make([]*clientRecord, 0, len(s.clients))
	for _, r := range s.clients {
		records = append(records, r)
	}
	s.mu.Unlock()

	for _, r := range records {
		conn := r.getConn()
		if conn == nil {
			continue // orphaned; its agents still step, it catches up on reconnect
		}
		owned := r.agentIDs()
		states := make([]protocol.AgentState, 0, len(owned))
		for _, id := range owned {
			if st, ok := byID[id]; ok {
				states = append(states, toProtocolState(st))
			}
		}
		payload := protocol.EncodeStepBroadcast(protocol.OK, owned, states)
		if err := s.writeFrame(r, protocol.Step, payload); err != nil {
			s.orphan(r, conn)
		}
	}
}
