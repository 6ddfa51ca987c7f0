// Package mapgen implements the lazy world generator: given a world
// position, it returns the four patches whose union covers that position's
// n x n neighborhood, materializing and Gibbs-sampling any patches needed
// along the way, then freezes ("fixes") them so they can never be
// resampled again.
package mapgen

import (
	"gridworld/gibbs"
	"gridworld/patch"
	"gridworld/position"
	"gridworld/rng"
)

// Generator owns the store, energy cache, and MCMC iteration count used to
// materialize new neighborhoods.
type Generator struct {
	Store          *patch.Store
	Cache          *gibbs.Cache
	N              int64
	MCMCIterations int
}

// quadrantPositions returns the four patch coordinates, in row-major order,
// whose union covers the n x n neighborhood centered at worldPos, and the
// index within that list of the patch actually containing worldPos.
// Mirrors map::get_neighborhood_positions' quadrant dispatch.
func quadrantPositions(worldPos position.Position, n int64) (positions [4]position.PatchCoord, index int) {
	coord, offset := position.ToPatchAndOffset(worldPos, n)
	half := n / 2

	var base position.PatchCoord
	switch {
	case offset.X < half && offset.Y < half:
		base = coord.Left()
		index = 1
	case offset.X < half:
		base = coord.Left().Up()
		index = 3
	case offset.Y < half:
		base = coord
		index = 0
	default:
		base = coord.Up()
		index = 2
	}

	positions[0] = base
	positions[1] = base.Right()
	positions[2] = base.Down()
	positions[3] = base.Down().Right()
	return
}

// ringAround returns the nine patch coordinates of coord's Moore
// neighborhood, including coord itself, matching fix_patches' per-patch
// "positions_to_sample" additions.
func ringAround(coord position.PatchCoord) [9]position.PatchCoord {
	return [9]position.PatchCoord{
		coord.Up().Left(), coord.Up(), coord.Up().Right(),
		coord.Left(), coord, coord.Right(),
		coord.Down().Left(), coord.Down(), coord.Down().Right(),
	}
}

func dedup(coords []position.PatchCoord) []position.PatchCoord {
	seen := make(map[position.PatchCoord]struct{}, len(coords))
	out := coords[:0]
	for _, c := range coords {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// fixPatches ensures every patch in positions is fixed: it gathers the
// 3x3 ring around each not-yet-fixed patch, deduplicates, Gibbs-samples the
// whole set MCMCIterations times, then marks the originally-requested
// patches fixed. New neighboring patches are created as needed, matching
// map::fix_patches.
func (g *Generator) fixPatches(positions []position.PatchCoord, gen *rng.Generator) {
	var toSample []position.PatchCoord
	for _, coord := range positions {
		p := g.Store.GetOrMake(coord, gen)
		if p.Fixed {
			continue
		}
		ring := ringAround(coord)
		toSample = append(toSample, ring[:]...)
	}
	toSample = dedup(toSample)

	for _, coord := range toSample {
		g.Store.GetOrMake(coord, gen)
	}

	for i := 0; i < g.MCMCIterations; i++ {
		gibbs.Sample(g.Store, g.Cache, toSample, g.N, gen)
	}

	for _, coord := range positions {
		p := g.Store.GetIfExists(coord)
		p.Lock()
		p.Fixed = true
		p.Unlock()
	}
}

// GetFixedNeighborhood returns the four patches covering worldPos's n x n
// neighborhood, in row-major order, materializing and fixing any of them
// that aren't already, and the index within that list of the patch
// containing worldPos. Mirrors map::get_fixed_neighborhood.
func (g *Generator) GetFixedNeighborhood(worldPos position.Position, gen *rng.Generator) (neighborhood [4]*patch.Patch, positions [4]position.PatchCoord, index int) {
	positions, index = quadrantPositions(worldPos, g.N)
	for i, coord := range positions {
		neighborhood[i] = g.Store.GetOrMake(coord, gen)
	}
	g.fixPatches(positions[:], gen)
	return
}

// GetNeighborhood returns only the patches of worldPos's n x n neighborhood
// that already exist, without creating or fixing anything, so it never
// triggers world growth.
func (g *Generator) GetNeighborhood(worldPos position.Position) (patches []*patch.Patch, patchIndex int) {
	positions, wantIndex := quadrantPositions(worldPos, g.N)
	for i, coord := range positions {
		if p := g.Store.GetIfExists(coord); p != nil {
			if wantIndex == i {
				patchIndex = len(patches)
			}
			patches = append(patches, p)
		}
	}
	return
}
