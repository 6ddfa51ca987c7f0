package protocol

import (
	"fmt"

	"gridworld/agent"
	"gridworld/observation"
	"gridworld/patch"
	"gridworld/position"
)

// AgentState is the wire form of one agent's externally-visible state:
// enough to answer GET_AGENT_STATES and to carry reconnection/STEP payloads.
type AgentState struct {
	ID              agent.ID
	Position        position.Position
	Facing          observation.Direction
	Active          bool
	CollectedCounts []int64
	Observation     observation.Observation
}

func encodeAgentState(w *payloadWriter, s AgentState) {
	w.u64(uint64(s.ID))
	w.i64(s.Position.X)
	w.i64(s.Position.Y)
	w.u8(uint8(s.Facing))
	w.bool(s.Active)
	w.u64(uint64(len(s.CollectedCounts)))
	for _, c := range s.CollectedCounts {
		w.i64(c)
	}
	w.f64(s.Observation.Scent)
	w.u64(uint64(len(s.Observation.Cells)))
	for _, c := range s.Observation.Cells {
		w.i64(c.Position.X)
		w.i64(c.Position.Y)
		w.f64(c.Scent)
		w.u64(uint64(len(c.Items)))
		for _, item := range c.Items {
			w.i64(int64(item))
		}
	}
}

func decodeAgentState(r *payloadReader) (AgentState, error) {
	var s AgentState
	id, err := r.u64()
	if err != nil {
		return s, err
	}
	s.ID = agent.ID(id)
	x, err := r.i64()
	if err != nil {
		return s, err
	}
	y, err := r.i64()
	if err != nil {
		return s, err
	}
	s.Position = position.Position{X: x, Y: y}
	facing, err := r.u8()
	if err != nil {
		return s, err
	}
	s.Facing = observation.Direction(facing)
	active, err := r.boolean()
	if err != nil {
		return s, err
	}
	s.Active = active
	countN, err := r.u64()
	if err != nil {
		return s, err
	}
	s.CollectedCounts = make([]int64, countN)
	for i := range s.CollectedCounts {
		c, err := r.i64()
		if err != nil {
			return s, err
		}
		s.CollectedCounts[i] = c
	}
	scent, err := r.f64()
	if err != nil {
		return s, err
	}
	s.Observation.Scent = scent
	cellCount, err := r.u64()
	if err != nil {
		return s, err
	}
	s.Observation.Cells = make([]observation.Cell, cellCount)
	for i := range s.Observation.Cells {
		cx, err := r.i64()
		if err != nil {
			return s, err
		}
		cy, err := r.i64()
		if err != nil {
			return s, err
		}
		cscent, err := r.f64()
		if err != nil {
			return s, err
		}
		itemCount, err := r.u64()
		if err != nil {
			return s, err
		}
		items := make([]int, itemCount)
		for j := range items {
			v, err := r.i64()
			if err != nil {
				return s, err
			}
			items[j] = int(v)
		}
		s.Observation.Cells[i] = observation.Cell{
			Position: position.Position{X: cx, Y: cy},
			Items:    items,
			Scent:    cscent,
		}
	}
	return s, nil
}

// PatchRecord is the wire form of one patch returned by GET_MAP: its items,
// whether the Gibbs sampler has fixed it, and its scent/vision grids
// (row-major, side PatchSize, matching patch.Patch's own layout) so a
// client can render or reason about a patch without separately polling an
// agent whose vision happens to cross it.
type PatchRecord struct {
	Coord  position.PatchCoord
	Items  []patch.Item
	Fixed  bool
	Scent  []float64
	Vision []float64
}

func encodeItem(w *payloadWriter, it patch.Item) {
	w.i64(int64(it.ItemType))
	w.i64(it.Location.X)
	w.i64(it.Location.Y)
	w.u64(it.CreationTime)
	w.u64(it.DeletionTime)
}

func decodeItem(r *payloadReader) (patch.Item, error) {
	var it patch.Item
	itemType, err := r.i64()
	if err != nil {
		return it, err
	}
	it.ItemType = int(itemType)
	x, err := r.i64()
	if err != nil {
		return it, err
	}
	y, err := r.i64()
	if err != nil {
		return it, err
	}
	it.Location = position.Position{X: x, Y: y}
	if it.CreationTime, err = r.u64(); err != nil {
		return it, err
	}
	if it.DeletionTime, err = r.u64(); err != nil {
		return it, err
	}
	return it, nil
}

// --- ADD_AGENT ---

// EncodeAddAgentRequest returns the (empty) ADD_AGENT request payload.
func EncodeAddAgentRequest() []byte { return nil }

// EncodeAddAgentResponse encodes {status, agent_id, agent_state}.
func EncodeAddAgentResponse(status Status, state AgentState) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	if status == OK {
		encodeAgentState(w, state)
	}
	return w.bytesOut()
}

// DecodeAddAgentResponse decodes an ADD_AGENT response.
func DecodeAddAgentResponse(payload []byte) (Status, AgentState, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, AgentState{}, err
	}
	status := Status(statusByte)
	if status != OK {
		return status, AgentState{}, nil
	}
	state, err := decodeAgentState(r)
	return status, state, err
}

// --- REMOVE_AGENT ---

func EncodeRemoveAgentRequest(id agent.ID) []byte {
	w := newPayloadWriter()
	w.u64(uint64(id))
	return w.bytesOut()
}

func DecodeRemoveAgentRequest(payload []byte) (agent.ID, error) {
	r := newPayloadReader(payload)
	id, err := r.u64()
	return agent.ID(id), err
}

func EncodeStatusResponse(status Status) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	return w.bytesOut()
}

func DecodeStatusResponse(payload []byte) (Status, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	return Status(statusByte), err
}

// --- MOVE ---

func EncodeMoveRequest(id agent.ID, dir WireDirection, steps uint32) []byte {
	w := newPayloadWriter()
	w.u64(uint64(id))
	w.u8(uint8(dir))
	w.u32(steps)
	return w.bytesOut()
}

func DecodeMoveRequest(payload []byte) (agent.ID, WireDirection, uint32, error) {
	r := newPayloadReader(payload)
	id, err := r.u64()
	if err != nil {
		return 0, 0, 0, err
	}
	dir, err := r.u8()
	if err != nil {
		return 0, 0, 0, err
	}
	steps, err := r.u32()
	if err != nil {
		return 0, 0, 0, err
	}
	return agent.ID(id), WireDirection(dir), steps, nil
}

// --- TURN ---

func EncodeTurnRequest(id agent.ID, turn WireTurn) []byte {
	w := newPayloadWriter()
	w.u64(uint64(id))
	w.u8(uint8(turn))
	return w.bytesOut()
}

func DecodeTurnRequest(payload []byte) (agent.ID, WireTurn, error) {
	r := newPayloadReader(payload)
	id, err := r.u64()
	if err != nil {
		return 0, 0, err
	}
	turn, err := r.u8()
	if err != nil {
		return 0, 0, err
	}
	return agent.ID(id), WireTurn(turn), nil
}

// --- DO_NOTHING, SIGNAL_SEMAPHORE, REMOVE_SEMAPHORE: all just an ID ---

func EncodeIDRequest(id agent.ID) []byte {
	w := newPayloadWriter()
	w.u64(uint64(id))
	return w.bytesOut()
}

func DecodeIDRequest(payload []byte) (agent.ID, error) {
	r := newPayloadReader(payload)
	id, err := r.u64()
	return agent.ID(id), err
}

// --- GET_MAP ---

func EncodeGetMapRequest(box position.BoundingBox) []byte {
	w := newPayloadWriter()
	w.i64(box.BottomLeft.X)
	w.i64(box.BottomLeft.Y)
	w.i64(box.TopRight.X)
	w.i64(box.TopRight.Y)
	return w.bytesOut()
}

func DecodeGetMapRequest(payload []byte) (position.BoundingBox, error) {
	r := newPayloadReader(payload)
	blx, err := r.i64()
	if err != nil {
		return position.BoundingBox{}, err
	}
	bly, err := r.i64()
	if err != nil {
		return position.BoundingBox{}, err
	}
	trx, err := r.i64()
	if err != nil {
		return position.BoundingBox{}, err
	}
	try, err := r.i64()
	if err != nil {
		return position.BoundingBox{}, err
	}
	return position.BoundingBox{
		BottomLeft: position.Position{X: blx, Y: bly},
		TopRight:   position.Position{X: trx, Y: try},
	}, nil
}

func encodeFloat64Slice(w *payloadWriter, s []float64) {
	w.u64(uint64(len(s)))
	for _, v := range s {
		w.f64(v)
	}
}

func decodeFloat64Slice(r *payloadReader) ([]float64, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		v, err := r.f64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func EncodeGetMapResponse(status Status, patches []PatchRecord) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	if status != OK {
		return w.bytesOut()
	}
	w.u64(uint64(len(patches)))
	for _, p := range patches {
		w.i64(p.Coord.X)
		w.i64(p.Coord.Y)
		w.bool(p.Fixed)
		w.u64(uint64(len(p.Items)))
		for _, it := range p.Items {
			encodeItem(w, it)
		}
		encodeFloat64Slice(w, p.Scent)
		encodeFloat64Slice(w, p.Vision)
	}
	return w.bytesOut()
}

func DecodeGetMapResponse(payload []byte) (Status, []PatchRecord, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, nil, err
	}
	status := Status(statusByte)
	if status != OK {
		return status, nil, nil
	}
	count, err := r.u64()
	if err != nil {
		return status, nil, err
	}
	patches := make([]PatchRecord, count)
	for i := range patches {
		x, err := r.i64()
		if err != nil {
			return status, nil, err
		}
		y, err := r.i64()
		if err != nil {
			return status, nil, err
		}
		fixed, err := r.boolean()
		if err != nil {
			return status, nil, err
		}
		itemCount, err := r.u64()
		if err != nil {
			return status, nil, err
		}
		items := make([]patch.Item, itemCount)
		for j := range items {
			it, err := decodeItem(r)
			if err != nil {
				return status, nil, err
			}
			items[j] = it
		}
		scent, err := decodeFloat64Slice(r)
		if err != nil {
			return status, nil, err
		}
		vision, err := decodeFloat64Slice(r)
		if err != nil {
			return status, nil, err
		}
		patches[i] = PatchRecord{
			Coord: position.PatchCoord{X: x, Y: y}, Items: items, Fixed: fixed,
			Scent: scent, Vision: vision,
		}
	}
	return status, patches, nil
}

// --- GET_AGENT_IDS ---

func EncodeGetAgentIDsResponse(status Status, ids []agent.ID) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	w.u64(uint64(len(ids)))
	for _, id := range ids {
		w.u64(uint64(id))
	}
	return w.bytesOut()
}

func DecodeGetAgentIDsResponse(payload []byte) (Status, []agent.ID, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, nil, err
	}
	count, err := r.u64()
	if err != nil {
		return Status(statusByte), nil, err
	}
	ids := make([]agent.ID, count)
	for i := range ids {
		id, err := r.u64()
		if err != nil {
			return Status(statusByte), nil, err
		}
		ids[i] = agent.ID(id)
	}
	return Status(statusByte), ids, nil
}

// --- GET_AGENT_STATES ---

func EncodeGetAgentStatesRequest(ids []agent.ID) []byte {
	w := newPayloadWriter()
	w.u64(uint64(len(ids)))
	for _, id := range ids {
		w.u64(uint64(id))
	}
	return w.bytesOut()
}

func DecodeGetAgentStatesRequest(payload []byte) ([]agent.ID, error) {
	r := newPayloadReader(payload)
	count, err := r.u64()
	if err != nil {
		return nil, err
	}
	ids := make([]agent.ID, count)
	for i := range ids {
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		ids[i] = agent.ID(id)
	}
	return ids, nil
}

func EncodeAgentStatesResponse(status Status, states []AgentState) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	w.u64(uint64(len(states)))
	for _, s := range states {
		encodeAgentState(w, s)
	}
	return w.bytesOut()
}

func DecodeAgentStatesResponse(payload []byte) (Status, []AgentState, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, nil, err
	}
	count, err := r.u64()
	if err != nil {
		return Status(statusByte), nil, err
	}
	states := make([]AgentState, count)
	for i := range states {
		s, err := decodeAgentState(r)
		if err != nil {
			return Status(statusByte), nil, err
		}
		states[i] = s
	}
	return Status(statusByte), states, nil
}

// --- SET_ACTIVE ---

func EncodeSetActiveRequest(id agent.ID, active bool) []byte {
	w := newPayloadWriter()
	w.u64(uint64(id))
	w.bool(active)
	return w.bytesOut()
}

func DecodeSetActiveRequest(payload []byte) (agent.ID, bool, error) {
	r := newPayloadReader(payload)
	id, err := r.u64()
	if err != nil {
		return 0, false, err
	}
	active, err := r.boolean()
	return agent.ID(id), active, err
}

// --- IS_ACTIVE ---

func EncodeIsActiveResponse(status Status, active bool) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	w.bool(active)
	return w.bytesOut()
}

func DecodeIsActiveResponse(payload []byte) (Status, bool, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, false, err
	}
	active, err := r.boolean()
	return Status(statusByte), active, err
}

// --- ADD_SEMAPHORE ---

func EncodeAddSemaphoreResponse(status Status, id agent.ID) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	w.u64(uint64(id))
	return w.bytesOut()
}

func DecodeAddSemaphoreResponse(payload []byte) (Status, agent.ID, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, 0, err
	}
	id, err := r.u64()
	return Status(statusByte), agent.ID(id), err
}

// --- GET_SEMAPHORES ---

// SemaphoreState is the wire form of one semaphore's id + signaled flag.
type SemaphoreState struct {
	ID       agent.ID
	Signaled bool
}

func EncodeGetSemaphoresResponse(status Status, states []SemaphoreState) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	w.u64(uint64(len(states)))
	for _, s := range states {
		w.u64(uint64(s.ID))
		w.bool(s.Signaled)
	}
	return w.bytesOut()
}

func DecodeGetSemaphoresResponse(payload []byte) (Status, []SemaphoreState, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, nil, err
	}
	count, err := r.u64()
	if err != nil {
		return Status(statusByte), nil, err
	}
	states := make([]SemaphoreState, count)
	for i := range states {
		id, err := r.u64()
		if err != nil {
			return Status(statusByte), nil, err
		}
		signaled, err := r.boolean()
		if err != nil {
			return Status(statusByte), nil, err
		}
		states[i] = SemaphoreState{ID: agent.ID(id), Signaled: signaled}
	}
	return Status(statusByte), states, nil
}

// --- STEP (server -> client broadcast) ---

func EncodeStepBroadcast(status Status, ownedIDs []agent.ID, ownedStates []AgentState) []byte {
	w := newPayloadWriter()
	w.u8(uint8(status))
	w.u64(uint64(len(ownedIDs)))
	for _, id := range ownedIDs {
		w.u64(uint64(id))
	}
	w.u64(uint64(len(ownedStates)))
	for _, s := range ownedStates {
		encodeAgentState(w, s)
	}
	return w.bytesOut()
}

func DecodeStepBroadcast(payload []byte) (Status, []agent.ID, []AgentState, error) {
	r := newPayloadReader(payload)
	statusByte, err := r.u8()
	if err != nil {
		return 0, nil, nil, err
	}
	idCount, err := r.u64()
	if err != nil {
		return Status(statusByte), nil, nil, err
	}
	ids := make([]agent.ID, idCount)
	for i := range ids {
		id, err := r.u64()
		if err != nil {
			return Status(statusByte), nil, nil, err
		}
		ids[i] = agent.ID(id)
	}
	stateCount, err := r.u64()
	if err != nil {
		return Status(statusByte), ids, nil, err
	}
	states := make([]AgentState, stateCount)
	for i := range states {
		s, err := decodeAgentState(r)
		if err != nil {
			return Status(statusByte), ids, nil, err
		}
		states[i] = s
	}
	return Status(statusByte), ids, states, nil
}

// unexpectedOpcodeErr reports a frame whose opcode wasn't the one a codec
// expected, as distinct from a parse failure. Nothing in this module calls
// it.
func unexpectedOpcodeErr(want, got Opcode) error {
	return fmt.Errorf("protocol: expected opcode %d, got %d", want, got)
}
