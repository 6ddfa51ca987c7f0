package server

import (
	"errors"

	"gridworld/protocol"
	"gridworld/simulator"
)

// statusForErr classifies an error returned by package simulator into the
// wire-level protocol.Status the client actually sees, via errors.Is rather
// than string matching, so simulator never needs to import protocol (it
// sits below protocol/server in the dependency graph).
func statusForErr(err error) protocol.Status {
	switch {
	case err == nil:
		return protocol.OK
	case errors.Is(err, simulator.ErrUnknownAgent), errors.Is(err, simulator.ErrUnknownSemaphore):
		return protocol.InvalidAgentID
	case errors.Is(err, simulator.ErrAgentAlreadyActed):
		return protocol.AgentAlreadyActed
	// "Agent not active" and "disallowed by policy" are both read here as a
	// request the requester wasn't entitled to make, since spec.md's Status
	// table has no dedicated precondition-failure value for either.
	case errors.Is(err, simulator.ErrAgentNotActive), errors.Is(err, simulator.ErrActionDisallowed):
		return protocol.ViolatedPermissions
	default:
		return protocol.IOError
	}
}
