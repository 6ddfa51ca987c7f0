// Package patch implements the unit of lazy world materialization: a
// patch-size-by-patch-size square of world cells holding items, a scent
// grid, and a vision/occlusion grid, plus the hashed store that creates
// patches on demand and seeds new ones from an existing neighbor.
package patch

import (
	"sync"

	"gridworld/atomic_float"
	"gridworld/position"
	"gridworld/rng"
)

// Item is a single placed object: its type, world position, and the
// simulation step at which it was created and (if applicable) removed. A
// zero CreationTime means the item existed since world genesis; a zero
// DeletionTime means it has not been removed.
type Item struct {
	ItemType     int
	Location     position.Position
	CreationTime uint64
	DeletionTime uint64
}

// Patch is one n x n square of the lattice, addressed by its PatchCoord in
// the owning Store. Fixed patches have been committed by the Gibbs sampler
// and can never be resampled again (spec.md §4.1).
type Patch struct {
	mu sync.Mutex

	Items []Item
	Fixed bool

	// Scent and Vision are row-major n*n grids of per-cell state, indexed
	// as y*n+x within the patch. Scent cells are atomic since observation
	// builders read them concurrently with diffusion writes; vision cells
	// are plain floats, read only under the patch's mutex (the server's
	// GET_MAP copy) and never written after the patch is created.
	Scent  []*atomic_float.AtomicFloat64
	Vision []float64
}

func newPatch(n int64) *Patch {
	size := int(n * n)
	scent := make([]*atomic_float.AtomicFloat64, size)
	for i := range scent {
		scent[i] = atomic_float.NewAtomicFloat64(0)
	}
	return &Patch{
		Items:  nil,
		Fixed:  false,
		Scent:  scent,
		Vision: make([]float64, size),
	}
}

// Lock/Unlock expose the patch's mutex to callers (gibbs, scent, mapgen)
// that need to serialize item-list mutation with observation reads.
func (p *Patch) Lock()   { p.mu.Lock() }
func (p *Patch) Unlock() { p.mu.Unlock() }

// AddItem appends item to the patch's item list. Caller must hold the lock.
func (p *Patch) AddItem(item Item) {
	p.Items = append(p.Items, item)
}

// translate returns a copy of items shifted by offset and stamped as
// pre-existing (creation/deletion time zero), matching the reference
// implementation's patch::init(items, offset) neighbor-seeding behavior.
func translate(items []Item, offset position.Position) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{
			ItemType:     it.ItemType,
			Location:     it.Location.Add(offset),
			CreationTime: 0,
			DeletionTime: 0,
		}
	}
	return out
}

// eightNeighbors returns coord's eight adjacent patch coordinates in the
// fixed order the reference implementation samples them in: up, down, left,
// right, up-left, up-right, down-left, down-right.
func eightNeighbors(coord position.PatchCoord) [8]position.PatchCoord {
	return [8]position.PatchCoord{
		coord.Up(), coord.Down(), coord.Left(), coord.Right(),
		coord.Up().Left(), coord.Up().Right(),
		coord.Down().Left(), coord.Down().Right(),
	}
}

// Store is the hashed collection of materialized patches for one world. Each
// method is safe for concurrent use; callers still hold world_lock (package
// simulator) around any sequence of Store calls that must be atomic with
// respect to the rest of the world.
type Store struct {
	mu      sync.RWMutex
	n       int64
	patches map[position.PatchCoord]*Patch
}

// NewStore returns an empty store for a world whose patches are n x n.
func NewStore(n int64) *Store {
	return &Store{n: n, patches: make(map[position.PatchCoord]*Patch)}
}

// PatchSize returns the store's configured patch side length.
func (s *Store) PatchSize() int64 { return s.n }

// GetIfExists returns the patch at coord, or nil if it hasn't been
// materialized yet.
func (s *Store) GetIfExists(coord position.PatchCoord) *Patch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patches[coord]
}

// Count returns the number of materialized patches.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patches)
}

// All calls fn for every materialized patch. fn must not call back into the
// store.
func (s *Store) All(fn func(position.PatchCoord, *Patch)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for coord, p := range s.patches {
		fn(coord, p)
	}
}

// GetOrMake returns the patch at coord, materializing it if absent. A newly
// materialized patch is seeded by uniformly sampling one of its eight
// existing neighbors (if any) and copying that neighbor's items, translated
// by the inter-patch offset, exactly as the reference implementation's
// get_or_make_patch does; with no existing neighbors the patch starts empty.
// gen must be the world's own PRNG (package rng), never a throwaway one,
// so world histories stay reproducible from a seed.
func (s *Store) GetOrMake(coord position.PatchCoord, gen *rng.Generator) *Patch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.patches[coord]; ok {
		return p
	}

	p := newPatch(s.n)

	if len(s.patches) > 0 {
		candidates := eightNeighbors(coord)
		var present []position.PatchCoord
		for _, c := range candidates {
			if _, ok := s.patches[c]; ok {
				present = append(present, c)
			}
		}
		if len(present) > 0 {
			sampled := present[gen.Intn(len(present))]
			neighbor := s.patches[sampled]
			neighbor.Lock()
			offset := coord.Origin(s.n).Sub(sampled.Origin(s.n))
			p.Items = translate(neighbor.Items, offset)
			neighbor.Unlock()
		}
	}

	s.patches[coord] = p
	return p
}

// Restore installs a patch at coord with exactly the given items and fixed
// state, for reconstructing a store from a persist.World snapshot. Scent
// and vision grids start zeroed, matching fresh-world initialization, since
// neither is part of the persisted snapshot (spec.md's "scent/vision are
// derived, not persisted").
func (s *Store) Restore(coord position.PatchCoord, items []Item, fixed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := newPatch(s.n)
	p.Items = items
	p.Fixed = fixed
	s.patches[coord] = p
}
