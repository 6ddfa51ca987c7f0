// Package scent implements the per-step scent field update: exponential
// decay, four-neighbor diffusion, emission from items present in a cell, and
// a separate fade contribution from items deleted since the last update
// (kept distinct from decay, matching the reference implementation's
// separation of intensity/interaction/decay concerns in energy_functions.h).
package scent

import (
	"math"

	"gridworld/patch"
	"gridworld/position"
)

// Params configures the diffusion update. DecayFactor and DiffusionRate are
// per-step multipliers in [0,1]; ItemEmission maps an item type to the
// scent it contributes to its own cell each step.
type Params struct {
	DecayFactor   float64
	DiffusionRate float64
	ItemEmission  []float64 // indexed by item type
}

// emissionFor returns the scent a single item of itemType contributes.
func (p Params) emissionFor(itemType int) float64 {
	if itemType < 0 || itemType >= len(p.ItemEmission) {
		return 0
	}
	return p.ItemEmission[itemType]
}

// fade returns the residual scent contribution of an item deleted
// elapsedSteps steps ago, decaying geometrically to zero. Matches the
// "deleted-item scent fade" supplement: a deleted item's scent doesn't
// vanish instantly, it fades out the way the item's own emission would have
// decayed had it still been present.
func fade(emission float64, elapsedSteps uint64, decayFactor float64) float64 {
	if elapsedSteps == 0 {
		return 0
	}
	return emission * math.Pow(decayFactor, float64(elapsedSteps))
}

// cellIndex converts a local (x,y) offset within a patch of side n into the
// row-major index used by patch.Patch's Scent/Vision slices.
func cellIndex(x, y, n int64) int64 { return y*n + x }

// neighborValue reads the old scent value of the cell at local offset
// (x,y) within patch p (side n), crossing into an adjacent patch via store
// when the offset falls outside [0,n). Returns 0 if that neighbor patch
// doesn't exist yet (unmaterialized patches have no scent).
func neighborValue(store *patch.Store, coord position.PatchCoord, x, y, n int64) float64 {
	pc := coord
	if x < 0 {
		pc = pc.Left()
		x += n
	} else if x >= n {
		pc = pc.Right()
		x -= n
	}
	if y < 0 {
		pc = pc.Down()
		y += n
	} else if y >= n {
		pc = pc.Up()
		y -= n
	}
	p := store.GetIfExists(pc)
	if p == nil {
		return 0
	}
	return p.Scent[cellIndex(x, y, n)].AtomicRead()
}

// Update recomputes every cell of patch p (at coord, side n) for one
// timestep: decay the previous value, diffuse in from the four cardinal
// neighbors, add emission from live items in that cell, and add the faded
// emission of items already deleted there (elapsed steps counted from the
// item's DeletionTime to currentTime; an item deleted at currentTime adds
// nothing). Reads of neighboring patches'
// old scent values happen before any writes so the update is based entirely
// on the prior timestep's field, never partially-updated current values.
func Update(store *patch.Store, coord position.PatchCoord, p *patch.Patch, n int64, params Params, currentTime uint64) {
	old := make([]float64, n*n)
	for x := int64(0); x < n; x++ {
		for y := int64(0); y < n; y++ {
			old[cellIndex(x, y, n)] = p.Scent[cellIndex(x, y, n)].AtomicRead()
		}
	}

	emission := make([]float64, n*n)
	for _, it := range p.Items {
		if it.DeletionTime != 0 && it.DeletionTime <= currentTime {
			continue
		}
		_, offset := position.ToPatchAndOffset(it.Location, n)
		emission[cellIndex(offset.X, offset.Y, n)] += params.emissionFor(it.ItemType)
	}

	fadeContribution := make([]float64, n*n)
	for _, it := range p.Items {
		if it.DeletionTime == 0 || it.DeletionTime > currentTime {
			continue
		}
		elapsed := currentTime - it.DeletionTime
		_, offset := position.ToPatchAndOffset(it.Location, n)
		fadeContribution[cellIndex(offset.X, offset.Y, n)] += fade(params.emissionFor(it.ItemType), elapsed, params.DecayFactor)
	}

	for x := int64(0); x < n; x++ {
		for y := int64(0); y < n; y++ {
			idx := cellIndex(x, y, n)
			self := old[idx]

			var up, down, left, right float64
			if y+1 < n {
				up = old[cellIndex(x, y+1, n)]
			} else {
				up = neighborValue(store, coord, x, y+1, n)
			}
			if y-1 >= 0 {
				down = old[cellIndex(x, y-1, n)]
			} else {
				down = neighborValue(store, coord, x, y-1, n)
			}
			if x-1 >= 0 {
				left = old[cellIndex(x-1, y, n)]
			} else {
				left = neighborValue(store, coord, x-1, y, n)
			}
			if x+1 < n {
				right = old[cellIndex(x+1, y, n)]
			} else {
				right = neighborValue(store, coord, x+1, y, n)
			}

			diffusion := params.DiffusionRate * ((up + down + left + right) - 4*self)
			next := params.DecayFactor*self + diffusion + emission[idx] + fadeContribution[idx]
			if next < 0 {
				next = 0
			}
			p.Scent[idx].Set(next)
		}
	}
}
