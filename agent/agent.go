// Package agent defines the two kinds of entities that participate in a
// simulator's per-turn barrier: Agent, which requests a move/rotate/no-op
// action each turn, and Semaphore, a barrier participant with no action of
// its own that holds the turn open until a client signals it (spec.md's
// "Semaphore participation in the turn barrier" supplement).
package agent

import (
	"sync"

	"gridworld/observation"
	"gridworld/position"
)

// ID uniquely identifies an agent or semaphore within one simulator, unique
// for the lifetime of that simulator and never reused even after removal.
type ID uint64

// Agent is one simulated entity: its position, facing, whether it has
// submitted an action for the current turn, and how many items of each
// catalogue type it has collected over its lifetime.
type Agent struct {
	ID       ID
	Position position.Position
	Facing   observation.Direction

	Active bool // per spec.md SetActive: an inactive agent is skipped by advance_timestep

	// turn state, reset each time the barrier opens. RequestedPath is the
	// full cell-by-cell walk for this turn's move (in world-step order), not
	// just its final destination, so commit-time resolution can stop the
	// agent at the first blocking item it meets along the way.
	ActionSubmitted bool
	RequestedPath   []position.Position
	RequestedFacing *observation.Direction

	// CollectedCounts is indexed by item type, same order as the
	// simulator's item-type catalogue: how many items of that type this
	// agent has picked up since creation.
	CollectedCounts []int64

	LastObservation observation.Observation
}

// Semaphore is a barrier participant that blocks turn advancement until
// explicitly signaled, with no position or observation of its own.
type Semaphore struct {
	ID        ID
	Signaled  bool
	Active    bool
}

// Registry is an insertion-ordered, monotonically-IDed collection of agents
// (semaphores live in SemaphoreRegistry). Safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	nextID        ID
	agents        map[ID]*Agent
	order         []ID
	itemTypeCount int // sizes a new agent's CollectedCounts
}

// NewRegistry returns an empty agent registry. itemTypeCount is the
// simulator's item-type catalogue size, used to size each new agent's
// CollectedCounts slice.
func NewRegistry(itemTypeCount int) *Registry {
	return &Registry{agents: make(map[ID]*Agent), itemTypeCount: itemTypeCount}
}

// Add inserts a new agent at pos facing facing, active by default, and
// returns its newly assigned ID.
func (r *Registry) Add(pos position.Position, facing observation.Direction) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.agents[id] = &Agent{
		ID: id, Position: pos, Facing: facing, Active: true,
		CollectedCounts: make([]int64, r.itemTypeCount),
	}
	r.order = append(r.order, id)
	return id
}

// Remove deletes an agent. Its ID is never reused.
func (r *Registry) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return false
	}
	delete(r.agents, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the agent with id, or nil if it doesn't exist.
func (r *Registry) Get(id ID) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[id]
}

// IDs returns every live agent ID in insertion order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of live agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Restore reinserts a over persist's saved snapshot, preserving its
// original ID and advancing nextID past it so freshly added agents never
// collide with a restored one.
func (r *Registry) Restore(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := a
	r.agents[a.ID] = &cp
	r.order = append(r.order, a.ID)
	if a.ID >= r.nextID {
		r.nextID = a.ID + 1
	}
}

// SemaphoreRegistry is the analogous insertion-ordered registry for
// semaphores, kept distinct from Registry since semaphores carry no
// position/observation state.
type SemaphoreRegistry struct {
	mu         sync.RWMutex
	nextID     ID
	semaphores map[ID]*Semaphore
	order      []ID
}

// NewSemaphoreRegistry returns an empty semaphore registry.
func NewSemaphoreRegistry() *SemaphoreRegistry {
	return &SemaphoreRegistry{semaphores: make(map[ID]*Semaphore)}
}

// Add inserts a new active, unsignaled semaphore and returns its ID.
func (r *SemaphoreRegistry) Add() ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.semaphores[id] = &Semaphore{ID: id, Active: true}
	r.order = append(r.order, id)
	return id
}

// Remove deletes a semaphore.
func (r *SemaphoreRegistry) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.semaphores[id]; !ok {
		return false
	}
	delete(r.semaphores, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the semaphore with id, or nil.
func (r *SemaphoreRegistry) Get(id ID) *Semaphore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.semaphores[id]
}

// IDs returns every live semaphore ID in insertion order.
func (r *SemaphoreRegistry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// Restore reinserts s over persist's saved snapshot, preserving its
// original ID and advancing nextID past it.
func (r *SemaphoreRegistry) Restore(s Semaphore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.semaphores[s.ID] = &cp
	r.order = append(r.order, s.ID)
	if s.ID >= r.nextID {
		r.nextID = s.ID + 1
	}
}
