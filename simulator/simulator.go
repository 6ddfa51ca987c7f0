// Package simulator implements the turn-synchronization engine: the
// per-turn barrier that holds advance_timestep until every active agent and
// semaphore has acted, collision resolution among agents proposing to move
// into the same cell, and the commit sequence (move resolution, item
// collection, item decay, scent diffusion, observation rebuild) that
// publishes the next world state.
package simulator

import (
	"errors"
	"fmt"
	"sync"

	channerics "github.com/niceyeti/channerics/channels"

	"gridworld/agent"
	"gridworld/gibbs"
	"gridworld/mapgen"
	"gridworld/observation"
	"gridworld/patch"
	"gridworld/position"
	"gridworld/rng"
)

// Sentinel errors wrapped into every public operation's returned error, so
// callers (chiefly package server) can classify a failure with errors.Is
// without string matching, then translate it into a wire-level protocol.Status.
var (
	ErrUnknownAgent      = errors.New("simulator: unknown agent")
	ErrUnknownSemaphore  = errors.New("simulator: unknown semaphore")
	ErrAgentNotActive    = errors.New("simulator: agent not active")
	ErrAgentAlreadyActed = errors.New("simulator: agent already acted this turn")
	ErrActionDisallowed  = errors.New("simulator: action disallowed by policy")
)

// CollisionPolicy decides which of several agents proposing to move into
// the same cell actually gets to, matching spec.md's three named policies.
type CollisionPolicy int

const (
	NoCollisions CollisionPolicy = iota
	FirstComeFirstServed
	RandomCollisionPolicy
)

// ActionPolicy is the outcome of validating a requested move/rotation
// against a simulator's configured movement/rotation policy, a third state
// distinct from a hard failure: an ignored action is silently dropped
// instead of rejected (the "ActionPolicyIgnored" supplement).
type ActionPolicy int

const (
	ActionAllowed ActionPolicy = iota
	ActionDisallowed
	ActionPolicyIgnored
)

// RotationRequest is the four turn actions an agent may submit, distinct
// from observation.Direction (an absolute facing): each request is relative
// to the agent's current facing.
type RotationRequest int

const (
	NoChangeRotation RotationRequest = iota
	ReverseRotation
	LeftRotation
	RightRotation
)

// rotate applies req to facing. observation.Direction increases clockwise
// (North, East, South, West), so a right turn is +1 and a left turn is -1
// mod 4.
func rotate(facing observation.Direction, req RotationRequest) observation.Direction {
	switch req {
	case ReverseRotation:
		return (facing + 2) % 4
	case LeftRotation:
		return (facing + 3) % 4
	case RightRotation:
		return (facing + 1) % 4
	default:
		return facing
	}
}

// Config bundles the parameters advance_timestep needs beyond the world
// itself.
type Config struct {
	PatchSize      int64
	MCMCIterations int
	VisionRange    int64
	FOVRadians    float64
	Collision     CollisionPolicy
	Occlusion     observation.Occlusion
	ItemEmission  []float64
	DecayFactor   float64
	DiffusionRate float64

	// BlocksMovement reports, indexed by item type, whether an item of
	// that type occupying a cell stops an agent from moving into it.
	BlocksMovement []bool

	// RequiredCounts[itemType][other] is how many items of type other an
	// agent must already have collected before it may collect one of
	// itemType; Costs[itemType][other] is how many of other collecting one
	// consumes from the agent's running counts. A short or absent row
	// means no requirement/cost for that pair.
	RequiredCounts [][]int64
	Costs          [][]int64

	// DeletedItemLifetime is how many timesteps a deleted item's record is
	// retained (so its scent keeps fading) before being purged from its
	// patch's item list entirely.
	DeletedItemLifetime uint64

	// NoOpAllowed mirrors spec.md's no_op_allowed: whether DoNothing is a
	// permitted action at all.
	NoOpAllowed bool

	// MovementPolicy decides whether a requested step to target from an
	// agent at current is Allowed, Disallowed, or silently
	// ActionPolicyIgnored. A nil MovementPolicy allows every move.
	MovementPolicy func(current, target position.Position) ActionPolicy

	// RotationPolicy decides whether a requested turn from facing is
	// Allowed, Disallowed, or silently ActionPolicyIgnored. A nil
	// RotationPolicy allows every turn.
	RotationPolicy func(facing observation.Direction, req RotationRequest) ActionPolicy
}

func (cfg Config) checkMovement(current, target position.Position) ActionPolicy {
	if cfg.MovementPolicy == nil {
		return ActionAllowed
	}
	return cfg.MovementPolicy(current, target)
}

func (cfg Config) checkRotation(facing observation.Direction, req RotationRequest) ActionPolicy {
	if cfg.RotationPolicy == nil {
		return ActionAllowed
	}
	return cfg.RotationPolicy(facing, req)
}

func (cfg Config) blocksMovement(itemType int) bool {
	if itemType < 0 || itemType >= len(cfg.BlocksMovement) {
		return false
	}
	return cfg.BlocksMovement[itemType]
}

// itemRow returns rows[itemType], or nil if itemType is out of range,
// shared by RequiredCounts and Costs lookups.
func itemRow(rows [][]int64, itemType int) []int64 {
	if itemType < 0 || itemType >= len(rows) {
		return nil
	}
	return rows[itemType]
}

// StepEvent is published to subscribers once a turn fully commits.
type StepEvent struct {
	Time uint64
}

// Simulator owns one world: its patch store, item-type catalogue cache,
// PRNG, agents, semaphores, and the turn barrier that gates
// AdvanceTimestep.
type Simulator struct {
	mu sync.Mutex // world_lock: held for the duration of any state-mutating call

	cfg   Config
	store *patch.Store
	cache *gibbs.Cache
	gen    *rng.Generator
	mapGen *mapgen.Generator

	agents      *agent.Registry
	semaphores  *agent.SemaphoreRegistry
	currentTime uint64
	initialSeed uint64

	commits     chan StepEvent
	subscribers []<-chan StepEvent
}

// New constructs a simulator over a fresh, empty world.
func New(cfg Config, catalogue []gibbs.ItemType, seed uint64) (*Simulator, error) {
	cache, err := gibbs.NewCache(catalogue, cfg.PatchSize)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	store := patch.NewStore(cfg.PatchSize)
	gen := rng.New(seed)

	return &Simulator{
		cfg:   cfg,
		store: store,
		cache: cache,
		gen:   gen,
		mapGen: &mapgen.Generator{
			Store:          store,
			Cache:          cache,
			N:              cfg.PatchSize,
			MCMCIterations: cfg.MCMCIterations,
		},
		agents:      agent.NewRegistry(len(catalogue)),
		semaphores:  agent.NewSemaphoreRegistry(),
		commits:     make(chan StepEvent, 16),
		initialSeed: seed,
	}, nil
}

// Subscribe returns n independently-readable channels of step-commit
// events, fanned out via channerics.Broadcast exactly as
// fastview.ViewBuilder.Build fans a view-model channel out to its view
// builders. Call once per simulator: the two intended subscribers are the
// wire-protocol broadcaster (package server) and the visualization
// dashboard (package dashboard), both known at wiring time.
func (s *Simulator) Subscribe(done <-chan struct{}, n int) []<-chan StepEvent {
	return channerics.Broadcast(done, s.commits, n)
}

// AddAgent inserts a new active agent at pos facing facing.
func (s *Simulator) AddAgent(pos position.Position, facing observation.Direction) agent.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents.Add(pos, facing)
}

// RemoveAgent deletes an agent from the simulator.
func (s *Simulator) RemoveAgent(id agent.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents.Remove(id)
}

// AddSemaphore inserts a new active, unsignaled semaphore.
func (s *Simulator) AddSemaphore() agent.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.semaphores.Add()
}

// RemoveSemaphore deletes a semaphore.
func (s *Simulator) RemoveSemaphore(id agent.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.semaphores.Remove(id)
}

// SetActive toggles an agent's participation in the turn barrier. Per the
// Open Question decision: if disabling this agent leaves every remaining
// active participant already having acted, the turn commits immediately
// within this call rather than waiting for some future event to notice.
func (s *Simulator) SetActive(id agent.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents.Get(id)
	if a == nil {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrUnknownAgent)
	}
	a.Active = active
	if !active && s.readyToAdvanceLocked() {
		s.commitLocked()
	}
	return nil
}

// SignalSemaphore marks a semaphore as having acted for the current turn,
// possibly triggering an immediate commit under the same rule as SetActive.
func (s *Simulator) SignalSemaphore(id agent.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem := s.semaphores.Get(id)
	if sem == nil {
		return fmt.Errorf("simulator: semaphore %d: %w", id, ErrUnknownSemaphore)
	}
	sem.Signaled = true
	if s.readyToAdvanceLocked() {
		s.commitLocked()
	}
	return nil
}

// Move submits a single-cell move action for agent id: a request to step
// into an adjacent cell. It is a thin wrapper over MoveSteps for the common
// one-step case.
func (s *Simulator) Move(id agent.ID, target position.Position) error {
	return s.MoveSteps(id, []position.Position{target})
}

// MoveSteps submits a multi-cell move action for agent id: path is the
// full sequence of cells to step through this turn, in order. At commit
// time the path is walked cell-by-cell, stopping the agent at the last cell
// before the first one occupied by a movement-blocking item, matching
// spec.md's "multi-step moves are processed cell-by-cell to allow collision
// with items mid-path." Only the resolved stopping cell, not the raw
// requested path, then competes under the simulator's collision policy
// against other agents' resolved targets. Actions are validated against the
// movement policy now (it depends only on this agent's own request), but
// collisions and item-blocking are resolved at commit time, since they
// depend on what other agents request this same turn and on item state that
// can still change before the barrier closes.
func (s *Simulator) MoveSteps(id agent.ID, path []position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents.Get(id)
	if a == nil {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrUnknownAgent)
	}
	if !a.Active {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrAgentNotActive)
	}
	if a.ActionSubmitted {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrAgentAlreadyActed)
	}
	if len(path) > 0 {
		target := path[len(path)-1]
		switch s.cfg.checkMovement(a.Position, target) {
		case ActionDisallowed:
			return fmt.Errorf("simulator: move to %v for agent %d: %w", target, id, ErrActionDisallowed)
		case ActionPolicyIgnored:
			// recorded as having acted, but the move itself is dropped.
		default:
			a.RequestedPath = append([]position.Position(nil), path...)
		}
	}
	a.ActionSubmitted = true
	if s.readyToAdvanceLocked() {
		s.commitLocked()
	}
	return nil
}

// Turn submits a rotation request for agent id, relative to its current
// facing. Like Move, the facing itself is applied at commit time.
func (s *Simulator) Turn(id agent.ID, req RotationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents.Get(id)
	if a == nil {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrUnknownAgent)
	}
	if !a.Active {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrAgentNotActive)
	}
	if a.ActionSubmitted {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrAgentAlreadyActed)
	}
	switch s.cfg.checkRotation(a.Facing, req) {
	case ActionDisallowed:
		return fmt.Errorf("simulator: turn for agent %d: %w", id, ErrActionDisallowed)
	case ActionPolicyIgnored:
		// recorded as having acted, but the rotation itself is dropped.
	default:
		facing := rotate(a.Facing, req)
		a.RequestedFacing = &facing
	}
	a.ActionSubmitted = true
	if s.readyToAdvanceLocked() {
		s.commitLocked()
	}
	return nil
}

// DoNothing submits a no-op action for agent id: it still participates in
// the barrier but requests no movement. Rejected with ErrActionDisallowed if
// the simulator's configuration disallows no-ops.
func (s *Simulator) DoNothing(id agent.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents.Get(id)
	if a == nil {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrUnknownAgent)
	}
	if !a.Active {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrAgentNotActive)
	}
	if a.ActionSubmitted {
		return fmt.Errorf("simulator: agent %d: %w", id, ErrAgentAlreadyActed)
	}
	if !s.cfg.NoOpAllowed {
		return fmt.Errorf("simulator: no-op for agent %d: %w", id, ErrActionDisallowed)
	}
	a.ActionSubmitted = true
	if s.readyToAdvanceLocked() {
		s.commitLocked()
	}
	return nil
}

// readyToAdvanceLocked reports whether every active agent has submitted an
// action and every active semaphore has been signaled. Caller holds mu.
func (s *Simulator) readyToAdvanceLocked() bool {
	for _, id := range s.agents.IDs() {
		a := s.agents.Get(id)
		if a != nil && a.Active && !a.ActionSubmitted {
			return false
		}
	}
	for _, id := range s.semaphores.IDs() {
		sem := s.semaphores.Get(id)
		if sem != nil && sem.Active && !sem.Signaled {
			return false
		}
	}
	return true
}

// itemBlocksAt reports whether a movement-blocking item currently occupies
// pos.
func (s *Simulator) itemBlocksAt(pos position.Position) bool {
	coord := position.ToPatch(pos, s.cfg.PatchSize)
	p := s.store.GetIfExists(coord)
	if p == nil {
		return false
	}
	p.Lock()
	defer p.Unlock()
	for _, it := range p.Items {
		if it.Location == pos && it.DeletionTime == 0 && s.cfg.blocksMovement(it.ItemType) {
			return true
		}
	}
	return false
}

// resolvedTarget walks path cell-by-cell from current, stopping just before
// the first cell occupied by a movement-blocking item.
func (s *Simulator) resolvedTarget(current position.Position, path []position.Position) position.Position {
	result := current
	for _, cell := range path {
		if s.itemBlocksAt(cell) {
			break
		}
		result = cell
	}
	return result
}

// resolveCollisions decides, among agents whose resolved target this turn
// is the same cell, which one (if any) actually moves, per the simulator's
// configured CollisionPolicy. targets holds each mover's resolved
// destination (post item-blocking resolution).
func (s *Simulator) resolveCollisions(movers []agent.ID, targets map[agent.ID]position.Position) map[agent.ID]bool {
	allowed := make(map[agent.ID]bool, len(movers))
	if s.cfg.Collision == NoCollisions {
		for _, id := range movers {
			allowed[id] = true
		}
		return allowed
	}

	byTarget := make(map[position.Position][]agent.ID)
	for _, id := range movers {
		byTarget[targets[id]] = append(byTarget[targets[id]], id)
	}

	for _, contenders := range byTarget {
		if len(contenders) == 1 {
			allowed[contenders[0]] = true
			continue
		}
		switch s.cfg.Collision {
		case FirstComeFirstServed:
			allowed[contenders[0]] = true
		case RandomCollisionPolicy:
			winner := contenders[s.gen.Intn(len(contenders))]
			allowed[winner] = true
		}
	}
	return allowed
}

// commitLocked runs the full advance_timestep sequence: resolve moves
// cell-by-cell against item blocking and collisions, apply them along with
// requested facings and reset per-turn state, bump the clock, collect items
// agents land on, decay items whose deletion lifetime has elapsed, fix each
// active agent's neighborhood, diffuse scent, rebuild observations, and
// publish a StepEvent. Caller holds mu.
func (s *Simulator) commitLocked() {
	ids := s.agents.IDs()

	targets := make(map[agent.ID]position.Position)
	var movers []agent.ID
	for _, id := range ids {
		a := s.agents.Get(id)
		if !a.Active || len(a.RequestedPath) == 0 {
			continue
		}
		target := s.resolvedTarget(a.Position, a.RequestedPath)
		if target != a.Position {
			targets[id] = target
			movers = append(movers, id)
		}
	}
	allowed := s.resolveCollisions(movers, targets)

	for _, id := range ids {
		a := s.agents.Get(id)
		if !a.Active {
			continue
		}
		if target, ok := targets[id]; ok && allowed[id] {
			a.Position = target
		}
		if a.RequestedFacing != nil {
			a.Facing = *a.RequestedFacing
		}
		a.RequestedPath = nil
		a.RequestedFacing = nil
		a.ActionSubmitted = false
	}
	for _, id := range s.semaphores.IDs() {
		sem := s.semaphores.Get(id)
		sem.Signaled = false
	}

	s.currentTime++

	s.collectItemsLocked(ids)
	s.decayItemsLocked()

	touched := make(map[position.PatchCoord]*patch.Patch)
	for _, id := range ids {
		a := s.agents.Get(id)
		if !a.Active {
			continue
		}
		_, _, _ = s.mapGen.GetFixedNeighborhood(a.Position, s.gen)
		coord := position.ToPatch(a.Position, s.cfg.PatchSize)
		if p := s.store.GetIfExists(coord); p != nil {
			touched[coord] = p
		}
	}

	scentParams := scentParamsFor(s.cfg)
	for coord, p := range touched {
		diffuseInPlace(s.store, coord, p, s.cfg.PatchSize, scentParams, s.currentTime)
	}

	for _, id := range ids {
		a := s.agents.Get(id)
		if !a.Active {
			continue
		}
		a.LastObservation = observation.Build(s.store, s.cfg.PatchSize, a.Position, a.Facing, observation.Config{
			VisionRange: s.cfg.VisionRange,
			FOVRadians:  s.cfg.FOVRadians,
		}, s.cfg.Occlusion)
	}

	select {
	case s.commits <- StepEvent{Time: s.currentTime}:
	default:
		// a slow subscriber must not stall the simulator; it will see a
		// later event and catch up from GetAgentStates instead.
	}
}

// collectItemsLocked lets every active agent pick up the items occupying
// its (possibly just-moved-to) cell, subject to each item type's collection
// requirements: canCollectLocked must hold first, then payCollectionCostLocked
// deducts the collection's cost before the pickup is recorded. A collected
// item is never removed from its patch immediately; it is stamped with
// DeletionTime so its scent keeps fading until decayItemsLocked purges it.
// Caller holds mu.
func (s *Simulator) collectItemsLocked(ids []agent.ID) {
	for _, id := range ids {
		a := s.agents.Get(id)
		if !a.Active {
			continue
		}
		coord := position.ToPatch(a.Position, s.cfg.PatchSize)
		p := s.store.GetIfExists(coord)
		if p == nil {
			continue
		}
		p.Lock()
		for i := range p.Items {
			it := &p.Items[i]
			if it.Location != a.Position || it.DeletionTime != 0 {
				continue
			}
			if !s.canCollectLocked(a, it.ItemType) {
				continue
			}
			s.payCollectionCostLocked(a, it.ItemType)
			if it.ItemType >= 0 && it.ItemType < len(a.CollectedCounts) {
				a.CollectedCounts[it.ItemType]++
			}
			it.DeletionTime = s.currentTime
		}
		p.Unlock()
	}
}

// canCollectLocked reports whether a already holds at least the required
// count of every other item type itemType's collection requires.
func (s *Simulator) canCollectLocked(a *agent.Agent, itemType int) bool {
	for other, required := range itemRow(s.cfg.RequiredCounts, itemType) {
		if required <= 0 {
			continue
		}
		if other >= len(a.CollectedCounts) || a.CollectedCounts[other] < required {
			return false
		}
	}
	return true
}

// payCollectionCostLocked deducts itemType's per-other-type collection cost
// from a's running counts, floored at zero.
func (s *Simulator) payCollectionCostLocked(a *agent.Agent, itemType int) {
	for other, cost := range itemRow(s.cfg.Costs, itemType) {
		if cost <= 0 || other >= len(a.CollectedCounts) {
			continue
		}
		a.CollectedCounts[other] -= cost
		if a.CollectedCounts[other] < 0 {
			a.CollectedCounts[other] = 0
		}
	}
}

// decayItemsLocked purges items deleted more than DeletedItemLifetime
// timesteps ago from every materialized patch's item list, the way the
// reference implementation eventually forgets collected/removed items
// instead of growing their list forever. Filters in place: the write cursor
// never outruns the read cursor, so kept items are never clobbered before
// they're read. Caller holds mu.
func (s *Simulator) decayItemsLocked() {
	s.store.All(func(_ position.PatchCoord, p *patch.Patch) {
		p.Lock()
		kept := p.Items[:0]
		for _, it := range p.Items {
			if it.DeletionTime != 0 && s.currentTime-it.DeletionTime > s.cfg.DeletedItemLifetime {
				continue
			}
			kept = append(kept, it)
		}
		p.Items = kept
		p.Unlock()
	})
}

// CurrentTime returns the number of timesteps advanced so far.
func (s *Simulator) CurrentTime() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTime
}

// AgentState is the externally-visible snapshot of one agent.
type AgentState struct {
	ID              agent.ID
	Position        position.Position
	Facing          observation.Direction
	Active          bool
	CollectedCounts []int64
	Observation     observation.Observation
}

// GetAgentStates returns a snapshot of every agent.
func (s *Simulator) GetAgentStates() []AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.agents.IDs()
	out := make([]AgentState, 0, len(ids))
	for _, id := range ids {
		a := s.agents.Get(id)
		counts := make([]int64, len(a.CollectedCounts))
		copy(counts, a.CollectedCounts)
		out = append(out, AgentState{
			ID: a.ID, Position: a.Position, Facing: a.Facing,
			Active: a.Active, CollectedCounts: counts, Observation: a.LastObservation,
		})
	}
	return out
}

// IsActive reports whether agent id currently participates in the turn
// barrier.
func (s *Simulator) IsActive(id agent.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents.Get(id)
	if a == nil {
		return false, fmt.Errorf("simulator: agent %d: %w", id, ErrUnknownAgent)
	}
	return a.Active, nil
}

// SemaphoreState is the externally-visible snapshot of one semaphore.
type SemaphoreState struct {
	ID       agent.ID
	Signaled bool
}

// GetSemaphoreStates returns a snapshot of every live semaphore.
func (s *Simulator) GetSemaphoreStates() []SemaphoreState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.semaphores.IDs()
	out := make([]SemaphoreState, 0, len(ids))
	for _, id := range ids {
		sem := s.semaphores.Get(id)
		out = append(out, SemaphoreState{ID: sem.ID, Signaled: sem.Signaled})
	}
	return out
}

// GetMap returns the materialized patches intersecting box, creating
// nothing: a read-only query matching spec.md's GET_MAP opcode.
func (s *Simulator) GetMap(box position.BoundingBox) map[position.PatchCoord]*patch.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[position.PatchCoord]*patch.Patch)
	box.VisitPatches(s.cfg.PatchSize, func(coord position.PatchCoord) {
		if p := s.store.GetIfExists(coord); p != nil {
			out[coord] = p
		}
	})
	return out
}
