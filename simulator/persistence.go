package simulator

import (
	"fmt"

	"gridworld/agent"
	"gridworld/gibbs"
	"gridworld/patch"
	"gridworld/persist"
	"gridworld/position"
)

// Snapshot captures everything package persist needs to reconstruct this
// simulator later: world state plus the item-type catalogue tags the
// caller supplies (package gibbs's Cache only keeps the built kernel
// closures, not the enum tags that produced them, so the tags travel
// alongside rather than through the simulator itself).
func (s *Simulator) Snapshot(catalogue []persist.ItemTypeTag) *persist.World {
	s.mu.Lock()
	defer s.mu.Unlock()

	patches := make(map[position.PatchCoord][]patch.Item)
	fixed := make(map[position.PatchCoord]bool)
	s.store.All(func(coord position.PatchCoord, p *patch.Patch) {
		p.Lock()
		items := make([]patch.Item, len(p.Items))
		copy(items, p.Items)
		patches[coord] = items
		fixed[coord] = p.Fixed
		p.Unlock()
	})

	ids := s.agents.IDs()
	agents := make([]agent.Agent, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, *s.agents.Get(id))
	}

	semIDs := s.semaphores.IDs()
	semaphores := make([]agent.Semaphore, 0, len(semIDs))
	for _, id := range semIDs {
		semaphores = append(semaphores, *s.semaphores.Get(id))
	}

	return &persist.World{
		RNGState:       s.gen.String(),
		N:              s.cfg.PatchSize,
		MCMCIterations: s.cfg.MCMCIterations,
		InitialSeed:    s.initialSeed,
		Patches:        patches,
		FixedPatches:   fixed,
		ItemCatalogue:  catalogue,
		Agents:         agents,
		Semaphores:     semaphores,
		CurrentTime:    s.currentTime,
	}
}

// RestoreFrom reconstructs a simulator from a persist.World snapshot. cfg
// supplies everything the snapshot doesn't carry (vision range, FOV,
// collision/movement/rotation policy) since those are deployment
// parameters, not world state; catalogue is the materialized
// gibbs.ItemType set built from world.ItemCatalogue's tags (package config
// does this conversion, the same one it performs for a freshly-loaded
// simulator_config).
func RestoreFrom(cfg Config, world *persist.World, catalogue []gibbs.ItemType) (*Simulator, error) {
	cfg.PatchSize = world.N
	cfg.MCMCIterations = world.MCMCIterations

	sim, err := New(cfg, catalogue, world.InitialSeed)
	if err != nil {
		return nil, fmt.Errorf("simulator: restore: %w", err)
	}

	gen, err := persist.RNGFromState(world.RNGState)
	if err != nil {
		return nil, fmt.Errorf("simulator: restore rng: %w", err)
	}
	sim.gen = gen

	for coord, items := range world.Patches {
		sim.store.Restore(coord, items, world.FixedPatches[coord])
	}
	for _, a := range world.Agents {
		sim.agents.Restore(a)
	}
	for _, sema := range world.Semaphores {
		sim.semaphores.Restore(sema)
	}
	sim.currentTime = world.CurrentTime

	return sim, nil
}
