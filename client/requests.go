package client

import (
	"fmt"

	"gridworld/agent"
	"gridworld/position"
	"gridworld/protocol"
)

// roundTrip registers a pending await for opcode, writes the request
// frame, and blocks for the matching response (or until the connection is
// lost). Only one request per opcode may be outstanding at a time, per
// spec.md §4.5's client state machine.
func (c *Client) roundTrip(opcode protocol.Opcode, payload []byte) ([]byte, error) {
	ch := make(chan pendingResponse, 1)

	c.pendingMu.Lock()
	if _, exists := c.pending[opcode]; exists {
		c.pendingMu.Unlock()
		return nil, ErrAlreadyAwaiting
	}
	c.pending[opcode] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err := protocol.WriteFrame(c.conn, opcode, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, opcode)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("client: write %v request: %w", opcode, err)
	}

	resp := <-ch
	return resp.payload, resp.err
}

// AddAgent requests a fresh agent and returns its initial state.
func (c *Client) AddAgent() (protocol.AgentState, error) {
	payload, err := c.roundTrip(protocol.AddAgent, protocol.EncodeAddAgentRequest())
	if err != nil {
		return protocol.AgentState{}, err
	}
	status, state, err := protocol.DecodeAddAgentResponse(payload)
	if err != nil {
		return protocol.AgentState{}, err
	}
	if status != protocol.OK {
		return protocol.AgentState{}, status
	}
	return state, nil
}

// RemoveAgent deletes an owned agent.
func (c *Client) RemoveAgent(id agent.ID) error {
	payload, err := c.roundTrip(protocol.RemoveAgent, protocol.EncodeRemoveAgentRequest(id))
	if err != nil {
		return err
	}
	return statusOnlyErr(payload)
}

// Move submits a move action for id.
func (c *Client) Move(id agent.ID, dir protocol.WireDirection, steps uint32) error {
	payload, err := c.roundTrip(protocol.Move, protocol.EncodeMoveRequest(id, dir, steps))
	if err != nil {
		return err
	}
	return statusOnlyErr(payload)
}

// Turn submits a rotation action for id.
func (c *Client) Turn(id agent.ID, turn protocol.WireTurn) error {
	payload, err := c.roundTrip(protocol.Turn, protocol.EncodeTurnRequest(id, turn))
	if err != nil {
		return err
	}
	return statusOnlyErr(payload)
}

// DoNothing submits a no-op action for id.
func (c *Client) DoNothing(id agent.ID) error {
	payload, err := c.roundTrip(protocol.DoNothing, protocol.EncodeIDRequest(id))
	if err != nil {
		return err
	}
	return statusOnlyErr(payload)
}

// GetMap fetches the materialized patches intersecting box.
func (c *Client) GetMap(box position.BoundingBox) ([]protocol.PatchRecord, error) {
	payload, err := c.roundTrip(protocol.GetMap, protocol.EncodeGetMapRequest(box))
	if err != nil {
		return nil, err
	}
	status, records, err := protocol.DecodeGetMapResponse(payload)
	if err != nil {
		return nil, err
	}
	if status != protocol.OK {
		return nil, status
	}
	return records, nil
}

// GetAgentIDs returns every agent id this client owns.
func (c *Client) GetAgentIDs() ([]agent.ID, error) {
	payload, err := c.roundTrip(protocol.GetAgentIDs, nil)
	if err != nil {
		return nil, err
	}
	status, ids, err := protocol.DecodeGetAgentIDsResponse(payload)
	if err != nil {
		return nil, err
	}
	if status != protocol.OK {
		return nil, status
	}
	return ids, nil
}

// GetAgentStates fetches the current state of every requested (owned) id.
func (c *Client) GetAgentStates(ids []agent.ID) ([]protocol.AgentState, error) {
	payload, err := c.roundTrip(protocol.GetAgentStates, protocol.EncodeGetAgentStatesRequest(ids))
	if err != nil {
		return nil, err
	}
	status, states, err := protocol.DecodeAgentStatesResponse(payload)
	if err != nil {
		return nil, err
	}
	if status != protocol.OK {
		return nil, status
	}
	return states, nil
}

// SetActive toggles an owned agent's participation in the turn barrier.
func (c *Client) SetActive(id agent.ID, active bool) error {
	payload, err := c.roundTrip(protocol.SetActive, protocol.EncodeSetActiveRequest(id, active))
	if err != nil {
		return err
	}
	return statusOnlyErr(payload)
}

// IsActive reports whether an owned agent currently participates in the
// turn barrier.
func (c *Client) IsActive(id agent.ID) (bool, error) {
	payload, err := c.roundTrip(protocol.IsActive, protocol.EncodeIDRequest(id))
	if err != nil {
		return false, err
	}
	status, active, err := protocol.DecodeIsActiveResponse(payload)
	if err != nil {
		return false, err
	}
	if status != protocol.OK {
		return false, status
	}
	return active, nil
}

// AddSemaphore creates a fresh semaphore and returns its id.
func (c *Client) AddSemaphore() (agent.ID, error) {
	payload, err := c.roundTrip(protocol.AddSemaphore, nil)
	if err != nil {
		return 0, err
	}
	status, id, err := protocol.DecodeAddSemaphoreResponse(payload)
	if err != nil {
		return 0, err
	}
	if status != protocol.OK {
		return 0, status
	}
	return id, nil
}

// RemoveSemaphore deletes an owned semaphore.
func (c *Client) RemoveSemaphore(id agent.ID) error {
	payload, err := c.roundTrip(protocol.RemoveSemaphore, protocol.EncodeIDRequest(id))
	if err != nil {
		return err
	}
	return statusOnlyErr(payload)
}

// SignalSemaphore marks a semaphore (not necessarily owned by this client)
// as having acted for the current turn.
func (c *Client) SignalSemaphore(id agent.ID) error {
	payload, err := c.roundTrip(protocol.SignalSemaphore, protocol.EncodeIDRequest(id))
	if err != nil {
		return err
	}
	return statusOnlyErr(payload)
}

// GetSemaphores returns every live semaphore's id and signaled flag.
func (c *Client) GetSemaphores() ([]protocol.SemaphoreState, error) {
	payload, err := c.roundTrip(protocol.GetSemaphores, nil)
	if err != nil {
		return nil, err
	}
	status, states, err := protocol.DecodeGetSemaphoresResponse(payload)
	if err != nil {
		return nil, err
	}
	if status != protocol.OK {
		return nil, status
	}
	return states, nil
}

// statusOnlyErr decodes a bare status response and turns a non-OK status
// into an error, since protocol.Status implements error.
func statusOnlyErr(payload []byte) error {
	status, err := protocol.DecodeStatusResponse(payload)
	if err != nil {
		return err
	}
	if status != protocol.OK {
		return status
	}
	return nil
}
