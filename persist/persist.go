// Package persist implements the abstract (world, agents, rng) round-trip
// spec.md §4.6 requires: a stream encoding of everything needed to resume a
// simulator bit-for-bit, including the server's client-reconnection records.
// There is no pack library for this; the wire shape below reuses the same
// length-prefixed primitive (uint64 length followed by payload) that package
// protocol uses for request/response framing, so both layers share one
// on-the-wire convention.
package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"gridworld/agent"
	"gridworld/energy"
	"gridworld/observation"
	"gridworld/patch"
	"gridworld/position"
	"gridworld/rng"
)

// ClientRecord is the server's persistent-across-reconnect client identity
// (spec.md §4.5's "Client identity (server side)").
type ClientRecord struct {
	ClientID         uint64
	PermissionBits    uint64
	OwnedAgentIDs     []agent.ID
	OwnedSemaphoreIDs []agent.ID
}

// ItemTypeTag is the serializable form of one gibbs.ItemType: enum tags for
// its kernels plus whatever parameter arrays config supplied, matching
// spec.md's "kernels themselves are not serialized, only their enum tags."
type ItemTypeTag struct {
	Name            string
	IntensityKind   energy.IntensityKind
	IntensityArgs   []float64
	InteractionKind []energy.InteractionKind
	InteractionArgs [][]float64
}

// World is everything persist.Save writes and persist.Load restores, in the
// order spec.md §4.6 lists: rng state, patch size, MCMC iteration count,
// initial seed, patches, item-type tags, agents, semaphores, current time,
// and the server's client bookkeeping.
type World struct {
	RNGState           string // rng.Generator.String()'s canonical decimal form
	N                  int64
	MCMCIterations     int
	InitialSeed        uint64
	Patches            map[position.PatchCoord][]patch.Item
	FixedPatches       map[position.PatchCoord]bool
	ItemCatalogue      []ItemTypeTag
	Agents             []agent.Agent
	Semaphores         []agent.Semaphore
	CurrentTime        uint64
	ServerNextClientID uint64
	ServerClients      []ClientRecord
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(s))); err != nil {
		return err
	}
	for _, v := range s {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readFloat64Slice(r io.Reader) ([]float64, error) {
	var n uint64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		if err := binary.Read(r, binary.BigEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeInt64Slice(w io.Writer, s []int64) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(s))); err != nil {
		return err
	}
	for _, v := range s {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readInt64Slice(r io.Reader) ([]int64, error) {
	var n uint64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		if err := binary.Read(r, binary.BigEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writePosition(w io.Writer, p position.Position) error {
	if err := binary.Write(w, binary.BigEndian, p.X); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, p.Y)
}

func readPosition(r io.Reader) (position.Position, error) {
	var p position.Position
	if err := binary.Read(r, binary.BigEndian, &p.X); err != nil {
		return p, err
	}
	if err := binary.Read(r, binary.BigEndian, &p.Y); err != nil {
		return p, err
	}
	return p, nil
}

func writePatchCoord(w io.Writer, c position.PatchCoord) error {
	if err := binary.Write(w, binary.BigEndian, c.X); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, c.Y)
}

func readPatchCoord(r io.Reader) (position.PatchCoord, error) {
	var c position.PatchCoord
	if err := binary.Read(r, binary.BigEndian, &c.X); err != nil {
		return c, err
	}
	if err := binary.Read(r, binary.BigEndian, &c.Y); err != nil {
		return c, err
	}
	return c, nil
}

func writeItem(w io.Writer, it patch.Item) error {
	if err := binary.Write(w, binary.BigEndian, int64(it.ItemType)); err != nil {
		return err
	}
	if err := writePosition(w, it.Location); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, it.CreationTime); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, it.DeletionTime)
}

func readItem(r io.Reader) (patch.Item, error) {
	var it patch.Item
	var itemType int64
	if err := binary.Read(r, binary.BigEndian, &itemType); err != nil {
		return it, err
	}
	it.ItemType = int(itemType)
	loc, err := readPosition(r)
	if err != nil {
		return it, err
	}
	it.Location = loc
	if err := binary.Read(r, binary.BigEndian, &it.CreationTime); err != nil {
		return it, err
	}
	if err := binary.Read(r, binary.BigEndian, &it.DeletionTime); err != nil {
		return it, err
	}
	return it, nil
}

// Save writes w in the order spec.md §4.6 requires. The PRNG is serialized
// via its canonical decimal-digit string (Design Note "Serialization of
// PRNG"), not its raw internal representation.
func Save(w io.Writer, world *World) error {
	bw := bufio.NewWriter(w)

	if err := writeString(bw, world.RNGState); err != nil {
		return fmt.Errorf("persist: write rng state: %w", err)
	}
	if err := binary.Write(bw, binary.BigEndian, world.N); err != nil {
		return fmt.Errorf("persist: write n: %w", err)
	}
	if err := binary.Write(bw, binary.BigEndian, uint64(world.MCMCIterations)); err != nil {
		return fmt.Errorf("persist: write mcmc iterations: %w", err)
	}
	if err := binary.Write(bw, binary.BigEndian, world.InitialSeed); err != nil {
		return fmt.Errorf("persist: write initial seed: %w", err)
	}

	if err := binary.Write(bw, binary.BigEndian, uint64(len(world.Patches))); err != nil {
		return fmt.Errorf("persist: write patch count: %w", err)
	}
	for coord, items := range world.Patches {
		if err := writePatchCoord(bw, coord); err != nil {
			return fmt.Errorf("persist: write patch coord: %w", err)
		}
		if err := bw.WriteByte(boolByte(world.FixedPatches[coord])); err != nil {
			return fmt.Errorf("persist: write patch fixed flag: %w", err)
		}
		if err := binary.Write(bw, binary.BigEndian, uint64(len(items))); err != nil {
			return fmt.Errorf("persist: write item count: %w", err)
		}
		for _, it := range items {
			if err := writeItem(bw, it); err != nil {
				return fmt.Errorf("persist: write item: %w", err)
			}
		}
	}

	if err := binary.Write(bw, binary.BigEndian, uint64(len(world.ItemCatalogue))); err != nil {
		return fmt.Errorf("persist: write catalogue count: %w", err)
	}
	for _, tag := range world.ItemCatalogue {
		if err := writeString(bw, tag.Name); err != nil {
			return fmt.Errorf("persist: write item type name: %w", err)
		}
		if err := binary.Write(bw, binary.BigEndian, uint64(tag.IntensityKind)); err != nil {
			return fmt.Errorf("persist: write intensity kind: %w", err)
		}
		if err := writeFloat64Slice(bw, tag.IntensityArgs); err != nil {
			return fmt.Errorf("persist: write intensity args: %w", err)
		}
		if err := binary.Write(bw, binary.BigEndian, uint64(len(tag.InteractionKind))); err != nil {
			return fmt.Errorf("persist: write interaction kind count: %w", err)
		}
		for i, kind := range tag.InteractionKind {
			if err := binary.Write(bw, binary.BigEndian, uint64(kind)); err != nil {
				return fmt.Errorf("persist: write interaction kind: %w", err)
			}
			if err := writeFloat64Slice(bw, tag.InteractionArgs[i]); err != nil {
				return fmt.Errorf("persist: write interaction args: %w", err)
			}
		}
	}

	if err := binary.Write(bw, binary.BigEndian, uint64(len(world.Agents))); err != nil {
		return fmt.Errorf("persist: write agent count: %w", err)
	}
	for _, a := range world.Agents {
		if err := writeAgent(bw, a); err != nil {
			return fmt.Errorf("persist: write agent: %w", err)
		}
	}

	if err := binary.Write(bw, binary.BigEndian, uint64(len(world.Semaphores))); err != nil {
		return fmt.Errorf("persist: write semaphore count: %w", err)
	}
	for _, s := range world.Semaphores {
		if err := binary.Write(bw, binary.BigEndian, uint64(s.ID)); err != nil {
			return fmt.Errorf("persist: write semaphore id: %w", err)
		}
		if err := bw.WriteByte(boolByte(s.Signaled)); err != nil {
			return fmt.Errorf("persist: write semaphore signaled: %w", err)
		}
		if err := bw.WriteByte(boolByte(s.Active)); err != nil {
			return fmt.Errorf("persist: write semaphore active: %w", err)
		}
	}

	if err := binary.Write(bw, binary.BigEndian, world.CurrentTime); err != nil {
		return fmt.Errorf("persist: write current time: %w", err)
	}
	if err := binary.Write(bw, binary.BigEndian, world.ServerNextClientID); err != nil {
		return fmt.Errorf("persist: write server next client id: %w", err)
	}

	if err := binary.Write(bw, binary.BigEndian, uint64(len(world.ServerClients))); err != nil {
		return fmt.Errorf("persist: write client record count: %w", err)
	}
	for _, c := range world.ServerClients {
		if err := writeClientRecord(bw, c); err != nil {
			return fmt.Errorf("persist: write client record: %w", err)
		}
	}

	return bw.Flush()
}

// Load reads a World in the exact order Save wrote it.
func Load(r io.Reader) (*World, error) {
	br := bufio.NewReader(r)
	world := &World{
		Patches:      make(map[position.PatchCoord][]patch.Item),
		FixedPatches: make(map[position.PatchCoord]bool),
	}

	var err error
	if world.RNGState, err = readString(br); err != nil {
		return nil, fmt.Errorf("persist: read rng state: %w", err)
	}
	if err := binary.Read(br, binary.BigEndian, &world.N); err != nil {
		return nil, fmt.Errorf("persist: read n: %w", err)
	}
	var mcmc uint64
	if err := binary.Read(br, binary.BigEndian, &mcmc); err != nil {
		return nil, fmt.Errorf("persist: read mcmc iterations: %w", err)
	}
	world.MCMCIterations = int(mcmc)
	if err := binary.Read(br, binary.BigEndian, &world.InitialSeed); err != nil {
		return nil, fmt.Errorf("persist: read initial seed: %w", err)
	}

	var patchCount uint64
	if err := binary.Read(br, binary.BigEndian, &patchCount); err != nil {
		return nil, fmt.Errorf("persist: read patch count: %w", err)
	}
	for i := uint64(0); i < patchCount; i++ {
		coord, err := readPatchCoord(br)
		if err != nil {
			return nil, fmt.Errorf("persist: read patch coord: %w", err)
		}
		fixedByte, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("persist: read patch fixed flag: %w", err)
		}
		var itemCount uint64
		if err := binary.Read(br, binary.BigEndian, &itemCount); err != nil {
			return nil, fmt.Errorf("persist: read item count: %w", err)
		}
		items := make([]patch.Item, itemCount)
		for j := range items {
			it, err := readItem(br)
			if err != nil {
				return nil, fmt.Errorf("persist: read item: %w", err)
			}
			items[j] = it
		}
		world.Patches[coord] = items
		world.FixedPatches[coord] = fixedByte != 0
	}

	var catalogueCount uint64
	if err := binary.Read(br, binary.BigEndian, &catalogueCount); err != nil {
		return nil, fmt.Errorf("persist: read catalogue count: %w", err)
	}
	world.ItemCatalogue = make([]ItemTypeTag, catalogueCount)
	for i := range world.ItemCatalogue {
		tag := ItemTypeTag{}
		if tag.Name, err = readString(br); err != nil {
			return nil, fmt.Errorf("persist: read item type name: %w", err)
		}
		var intensityKind uint64
		if err := binary.Read(br, binary.BigEndian, &intensityKind); err != nil {
			return nil, fmt.Errorf("persist: read intensity kind: %w", err)
		}
		tag.IntensityKind = energy.IntensityKind(intensityKind)
		if tag.IntensityArgs, err = readFloat64Slice(br); err != nil {
			return nil, fmt.Errorf("persist: read intensity args: %w", err)
		}
		var interactionCount uint64
		if err := binary.Read(br, binary.BigEndian, &interactionCount); err != nil {
			return nil, fmt.Errorf("persist: read interaction kind count: %w", err)
		}
		tag.InteractionKind = make([]energy.InteractionKind, interactionCount)
		tag.InteractionArgs = make([][]float64, interactionCount)
		for j := range tag.InteractionKind {
			var kind uint64
			if err := binary.Read(br, binary.BigEndian, &kind); err != nil {
				return nil, fmt.Errorf("persist: read interaction kind: %w", err)
			}
			tag.InteractionKind[j] = energy.InteractionKind(kind)
			if tag.InteractionArgs[j], err = readFloat64Slice(br); err != nil {
				return nil, fmt.Errorf("persist: read interaction args: %w", err)
			}
		}
		world.ItemCatalogue[i] = tag
	}

	var agentCount uint64
	if err := binary.Read(br, binary.BigEndian, &agentCount); err != nil {
		return nil, fmt.Errorf("persist: read agent count: %w", err)
	}
	world.Agents = make([]agent.Agent, agentCount)
	for i := range world.Agents {
		a, err := readAgent(br)
		if err != nil {
			return nil, fmt.Errorf("persist: read agent: %w", err)
		}
		world.Agents[i] = a
	}

	var semaphoreCount uint64
	if err := binary.Read(br, binary.BigEndian, &semaphoreCount); err != nil {
		return nil, fmt.Errorf("persist: read semaphore count: %w", err)
	}
	world.Semaphores = make([]agent.Semaphore, semaphoreCount)
	for i := range world.Semaphores {
		var id uint64
		if err := binary.Read(br, binary.BigEndian, &id); err != nil {
			return nil, fmt.Errorf("persist: read semaphore id: %w", err)
		}
		signaledByte, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("persist: read semaphore signaled: %w", err)
		}
		activeByte, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("persist: read semaphore active: %w", err)
		}
		world.Semaphores[i] = agent.Semaphore{
			ID:       agent.ID(id),
			Signaled: signaledByte != 0,
			Active:   activeByte != 0,
		}
	}

	if err := binary.Read(br, binary.BigEndian, &world.CurrentTime); err != nil {
		return nil, fmt.Errorf("persist: read current time: %w", err)
	}
	if err := binary.Read(br, binary.BigEndian, &world.ServerNextClientID); err != nil {
		return nil, fmt.Errorf("persist: read server next client id: %w", err)
	}

	var clientCount uint64
	if err := binary.Read(br, binary.BigEndian, &clientCount); err != nil {
		return nil, fmt.Errorf("persist: read client record count: %w", err)
	}
	world.ServerClients = make([]ClientRecord, clientCount)
	for i := range world.ServerClients {
		c, err := readClientRecord(br)
		if err != nil {
			return nil, fmt.Errorf("persist: read client record: %w", err)
		}
		world.ServerClients[i] = c
	}

	return world, nil
}

func writeAgent(w io.Writer, a agent.Agent) error {
	if err := binary.Write(w, binary.BigEndian, uint64(a.ID)); err != nil {
		return err
	}
	if err := writePosition(w, a.Position); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int64(a.Facing)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, boolByte(a.Active)); err != nil {
		return err
	}
	return writeInt64Slice(w, a.CollectedCounts)
}

func readAgent(r io.Reader) (agent.Agent, error) {
	var a agent.Agent
	var id uint64
	if err := binary.Read(r, binary.BigEndian, &id); err != nil {
		return a, err
	}
	a.ID = agent.ID(id)
	pos, err := readPosition(r)
	if err != nil {
		return a, err
	}
	a.Position = pos
	var facing int64
	if err := binary.Read(r, binary.BigEndian, &facing); err != nil {
		return a, err
	}
	a.Facing = observation.Direction(facing)
	var activeByte byte
	if err := binary.Read(r, binary.BigEndian, &activeByte); err != nil {
		return a, err
	}
	a.Active = activeByte != 0
	counts, err := readInt64Slice(r)
	if err != nil {
		return a, err
	}
	a.CollectedCounts = counts
	return a, nil
}

func writeClientRecord(w io.Writer, c ClientRecord) error {
	if err := binary.Write(w, binary.BigEndian, c.ClientID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, c.PermissionBits); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint64(len(c.OwnedAgentIDs))); err != nil {
		return err
	}
	for _, id := range c.OwnedAgentIDs {
		if err := binary.Write(w, binary.BigEndian, uint64(id)); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, uint64(len(c.OwnedSemaphoreIDs))); err != nil {
		return err
	}
	for _, id := range c.OwnedSemaphoreIDs {
		if err := binary.Write(w, binary.BigEndian, uint64(id)); err != nil {
			return err
		}
	}
	return nil
}

func readClientRecord(r io.Reader) (ClientRecord, error) {
	var c ClientRecord
	if err := binary.Read(r, binary.BigEndian, &c.ClientID); err != nil {
		return c, err
	}
	if err := binary.Read(r, binary.BigEndian, &c.PermissionBits); err != nil {
		return c, err
	}
	var n uint64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return c, err
	}
	c.OwnedAgentIDs = make([]agent.ID, n)
	for i := range c.OwnedAgentIDs {
		var id uint64
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			return c, err
		}
		c.OwnedAgentIDs[i] = agent.ID(id)
	}
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return c, err
	}
	c.OwnedSemaphoreIDs = make([]agent.ID, n)
	for i := range c.OwnedSemaphoreIDs {
		var id uint64
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			return c, err
		}
		c.OwnedSemaphoreIDs[i] = agent.ID(id)
	}
	return c, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// RNGFromState parses the persisted canonical PRNG state back into a live
// generator, for callers resuming a simulator after Load.
func RNGFromState(s string) (*rng.Generator, error) {
	return rng.Parse(s)
}
