package protocol

import "gridworld/agent"

// HandshakeRequest is the first frame a client sends on a new connection.
// ClientID of zero requests a fresh id; a nonzero ClientID attempts
// reconnection to a previously-allocated one.
type HandshakeRequest struct {
	Version           uint32
	ClientID          uint64
	PermissionRequest Permission
	AgentIDs          []agent.ID // present only on a reconnection attempt
}

// EncodeHandshakeRequest serializes a HandshakeRequest payload.
func EncodeHandshakeRequest(req HandshakeRequest) []byte {
	w := newPayloadWriter()
	w.u32(req.Version)
	w.u64(req.ClientID)
	w.u64(uint64(req.PermissionRequest))
	w.u64(uint64(len(req.AgentIDs)))
	for _, id := range req.AgentIDs {
		w.u64(uint64(id))
	}
	return w.bytesOut()
}

// DecodeHandshakeRequest parses a HandshakeRequest payload.
func DecodeHandshakeRequest(payload []byte) (HandshakeRequest, error) {
	r := newPayloadReader(payload)
	var req HandshakeRequest
	version, err := r.u32()
	if err != nil {
		return req, err
	}
	req.Version = version
	clientID, err := r.u64()
	if err != nil {
		return req, err
	}
	req.ClientID = clientID
	perm, err := r.u64()
	if err != nil {
		return req, err
	}
	req.PermissionRequest = Permission(perm)
	count, err := r.u64()
	if err != nil {
		return req, err
	}
	req.AgentIDs = make([]agent.ID, count)
	for i := range req.AgentIDs {
		id, err := r.u64()
		if err != nil {
			return req, err
		}
		req.AgentIDs[i] = agent.ID(id)
	}
	return req, nil
}

// HandshakeResponse is the server's reply: either a rejection (non-OK
// Status with the remaining fields zero) or an acceptance carrying the
// assigned/confirmed client id, the simulator's current time, and (on
// reconnection) the full state of every agent the client owns.
type HandshakeResponse struct {
	Status      Status
	ClientID    uint64
	CurrentTime uint64
	OwnedAgents []AgentState
}

// EncodeHandshakeResponse serializes a HandshakeResponse payload.
func EncodeHandshakeResponse(resp HandshakeResponse) []byte {
	w := newPayloadWriter()
	w.u8(uint8(resp.Status))
	w.u64(resp.ClientID)
	w.u64(resp.CurrentTime)
	w.u64(uint64(len(resp.OwnedAgents)))
	for _, a := range resp.OwnedAgents {
		encodeAgentState(w, a)
	}
	return w.bytesOut()
}

// DecodeHandshakeResponse parses a HandshakeResponse payload.
func DecodeHandshakeResponse(payload []byte) (HandshakeResponse, error) {
	r := newPayloadReader(payload)
	var resp HandshakeResponse
	statusByte, err := r.u8()
	if err != nil {
		return resp, err
	}
	resp.Status = Status(statusByte)
	clientID, err := r.u64()
	if err != nil {
		return resp, err
	}
	resp.ClientID = clientID
	currentTime, err := r.u64()
	if err != nil {
		return resp, err
	}
	resp.CurrentTime = currentTime
	count, err := r.u64()
	if err != nil {
		return resp, err
	}
	resp.OwnedAgents = make([]AgentState, count)
	for i := range resp.OwnedAgents {
		a, err := decodeAgentState(r)
		if err != nil {
			return resp, err
		}
		resp.OwnedAgents[i] = a
	}
	return resp, nil
}
