package server

import (
	"gridworld/agent"
	"gridworld/position"
	"gridworld/protocol"
	"gridworld/simulator"
)

func toProtocolState(st simulator.AgentState) protocol.AgentState {
	return protocol.AgentState{
		ID:              st.ID,
		Position:        st.Position,
		Facing:          st.Facing,
		Active:          st.Active,
		CollectedCounts: st.CollectedCounts,
		Observation:     st.Observation,
	}
}

func indexStates(states []simulator.AgentState) map[agent.ID]simulator.AgentState {
	out := make(map[agent.ID]simulator.AgentState, len(states))
	for _, st := range states {
		out[st.ID] = st
	}
	return out
}

// rotationFromWire maps the wire's relative-turn axis onto the simulator's
// RotationRequest; the two are identical in meaning, kept as distinct types
// so protocol never needs to import simulator.
func rotationFromWire(t protocol.WireTurn) simulator.RotationRequest {
	switch t {
	case protocol.Reverse:
		return simulator.ReverseRotation
	case protocol.TurnLeft:
		return simulator.LeftRotation
	case protocol.TurnRight:
		return simulator.RightRotation
	default:
		return simulator.NoChangeRotation
	}
}

// movePath builds the full cell-by-cell walk of steps cells from current in
// dir, the world-relative movement axis, one entry per cell stepped through
// in order. The simulator resolves this path cell-by-cell at commit time,
// stopping the agent at the last open cell before any mid-path
// movement-blocking item, matching spec.md's "multi-step moves are
// processed cell-by-cell to allow collision with items mid-path."
func movePath(current position.Position, dir protocol.WireDirection, steps uint32) []position.Position {
	path := make([]position.Position, 0, steps)
	cell := current
	for i := uint32(0); i < steps; i++ {
		switch dir {
		case protocol.Up:
			cell = cell.Up()
		case protocol.Down:
			cell = cell.Down()
		case protocol.Left:
			cell = cell.Left()
		case protocol.Right:
			cell = cell.Right()
		}
		path = append(path, cell)
	}
	return path
}
