// Package gibbs implements the Markov Random Field sampler that grows the
// item layout of a patch: Metropolis-Hastings move, birth (create), and
// death (delete) proposals evaluated against the intensity/interaction
// kernels of package energy, with a precomputed displacement-table cache for
// stationary kernels exactly as the reference implementation's
// gibbs_field_cache does.
package gibbs

import (
	"fmt"
	"math"

	"gridworld/energy"
	"gridworld/patch"
	"gridworld/position"
	"gridworld/rng"
)

// ItemType is one entry of the simulator's item-type catalogue: its energy
// kernels and, for each other item type, the pairwise interaction kernel
// between them (indexed in the same order as the catalogue itself).
type ItemType struct {
	Name              string
	Intensity         energy.IntensityFn
	IntensityStationary bool
	// Interactions[j] is this type's interaction with item type j.
	Interactions           []energy.InteractionFn
	InteractionStationary  []bool
	InteractionConstantZero []bool
}

// Cache precomputes the energy contributions of stationary kernels, so
// sampling never re-evaluates a kernel function for displacements it has
// already seen. Mirrors gibbs_field_cache exactly: a flat intensities array
// and, per ordered item-type pair, a 4n x 4n interaction table centered at
// (2n, 2n).
type Cache struct {
	itemTypes []ItemType
	twoN      int64
	fourN     int64

	intensities  []float64   // one per item type
	interactions [][]float64 // itemTypes[i]*len+j -> flat fourN*fourN table, nil if not cached
}

// NewCache builds the energy cache for a catalogue of item types in a world
// whose patches are n x n.
func NewCache(itemTypes []ItemType, n int64) (*Cache, error) {
	count := len(itemTypes)
	for i, it := range itemTypes {
		if len(it.Interactions) != count {
			return nil, fmt.Errorf("gibbs: item type %q has %d interaction entries, want %d", it.Name, len(it.Interactions), count)
		}
		_ = i
	}

	c := &Cache{
		itemTypes:    itemTypes,
		twoN:         2 * n,
		fourN:        4 * n,
		intensities:  make([]float64, count),
		interactions: make([][]float64, count*count),
	}

	for i, it := range itemTypes {
		if it.IntensityStationary {
			c.intensities[i] = it.Intensity(energy.Position{0, 0})
		}
		for j := 0; j < count; j++ {
			if it.InteractionConstantZero[j] || !it.InteractionStationary[j] {
				continue
			}
			table := make([]float64, c.fourN*c.fourN)
			fn := it.Interactions[j]
			for x := int64(0); x < c.fourN; x++ {
				for y := int64(0); y < c.fourN; y++ {
					var v float64
					if x == c.twoN && y == c.twoN {
						v = 0.0
					} else {
						v = fn(energy.Position{c.twoN, c.twoN}, energy.Position{x, y})
					}
					table[x*c.fourN+y] = v
				}
			}
			c.interactions[i*count+j] = table
		}
	}
	return c, nil
}

func toEnergyPos(p position.Position) energy.Position { return energy.Position{X: p.X, Y: p.Y} }

// Intensity returns the intensity energy of an item of itemType at pos.
func (c *Cache) Intensity(pos position.Position, itemType int) float64 {
	it := c.itemTypes[itemType]
	if it.IntensityStationary {
		return c.intensities[itemType]
	}
	return it.Intensity(toEnergyPos(pos))
}

// Interaction returns the pairwise interaction energy between an item of
// firstType at firstPos and an item of secondType at secondPos.
func (c *Cache) Interaction(firstPos, secondPos position.Position, firstType, secondType int) float64 {
	it := c.itemTypes[firstType]
	fn := it.Interactions[secondType]
	stationary := it.InteractionStationary[secondType]
	constant := it.InteractionConstantZero[secondType]

	if constant || !stationary {
		if firstPos == secondPos {
			return 0.0
		}
		return fn(toEnergyPos(firstPos), toEnergyPos(secondPos))
	}

	count := len(c.itemTypes)
	table := c.interactions[firstType*count+secondType]
	diff := firstPos.Sub(secondPos)
	dx := diff.X + c.twoN
	dy := diff.Y + c.twoN
	if dx < 0 || dx >= c.fourN || dy < 0 || dy >= c.fourN {
		// positions further apart than the cache supports; fall back to a
		// direct evaluation rather than an out-of-bounds read.
		return fn(toEnergyPos(firstPos), toEnergyPos(secondPos))
	}
	return table[dx*c.fourN+dy]
}

// quadrant selects one of four precomputed neighborhoods (bottom-left,
// top-left, bottom-right, top-right) that a cell position belongs to
// relative to its own patch's origin, matching the reference
// implementation's repeated "which half of the patch" branch.
func quadrant(localX, localY, half int64) int {
	switch {
	case localX < half && localY < half:
		return 0 // bottom-left
	case localX < half:
		return 1 // top-left
	case localY < half:
		return 2 // bottom-right
	default:
		return 3 // top-right
	}
}

// neighborhoods gathers, for the patch at coord, the four
// quadrant-specific lists of patches whose items can interact with a cell in
// that quadrant: the patch itself plus up to three of its cardinal/diagonal
// neighbors, exactly as gibbs_field::sample assembles
// bottom_left_neighborhood / top_left_neighborhood / etc.
func neighborhoods(store *patch.Store, coord position.PatchCoord) (bl, tl, br, tr []*patch.Patch) {
	current := store.GetIfExists(coord)
	top := store.GetIfExists(coord.Up())
	bottom := store.GetIfExists(coord.Down())
	left := store.GetIfExists(coord.Left())
	right := store.GetIfExists(coord.Right())
	topLeft := store.GetIfExists(coord.Up().Left())
	topRight := store.GetIfExists(coord.Up().Right())
	bottomLeft := store.GetIfExists(coord.Down().Left())
	bottomRight := store.GetIfExists(coord.Down().Right())

	bl = []*patch.Patch{current}
	tl = []*patch.Patch{current}
	br = []*patch.Patch{current}
	tr = []*patch.Patch{current}

	if left != nil {
		bl = append(bl, left)
		tl = append(tl, left)
	}
	if right != nil {
		br = append(br, right)
		tr = append(tr, right)
	}
	if top != nil {
		tl = append(tl, top)
		tr = append(tr, top)
	}
	if bottom != nil {
		bl = append(bl, bottom)
		br = append(br, bottom)
	}
	if bottomLeft != nil {
		bl = append(bl, bottomLeft)
	}
	if topLeft != nil {
		tl = append(tl, topLeft)
	}
	if bottomRight != nil {
		br = append(br, bottomRight)
	}
	if topRight != nil {
		tr = append(tr, topRight)
	}
	return
}

func pickNeighborhood(bl, tl, br, tr []*patch.Patch, localX, localY, half int64) []*patch.Patch {
	switch quadrant(localX, localY, half) {
	case 0:
		return bl
	case 1:
		return tl
	case 2:
		return br
	default:
		return tr
	}
}

// Sample runs one Gibbs sweep over the patches at patchPositions: for every
// item in every patch, propose a move; then propose one birth and, if the
// patch is non-empty, one death. n is the patch side length; the item-type
// catalogue comes from cache. gen must be the world's own PRNG.
func Sample(store *patch.Store, cache *Cache, patchPositions []position.PatchCoord, n int64, gen *rng.Generator) {
	count := len(cache.itemTypes)
	half := n / 2
	logItemTypeCount := math.Log(float64(count))

	for _, coord := range patchPositions {
		current := store.GetIfExists(coord)
		if current == nil || current.Fixed {
			continue
		}
		bl, tl, br, tr := neighborhoods(store, coord)
		origin := coord.Origin(n)

		current.Lock()
		sampleMoves(current, cache, bl, tl, br, tr, origin, half, gen)
		sampleBirth(current, cache, bl, tl, br, tr, origin, half, count, logItemTypeCount, gen)
		sampleDeath(current, cache, bl, tl, br, tr, origin, half, count, logItemTypeCount, gen)
		current.Unlock()
	}
}

func localOffset(pos, origin position.Position) (int64, int64) {
	return pos.X - origin.X, pos.Y - origin.Y
}

// sumInteractions adds sign times the bidirectional interaction energy
// between a candidate (pos, itemType) and every item in items. With a
// positive sign, an item already at pos means pos is occupied: it returns
// (0, true). With a negative sign, pos is the old location of the item being
// moved or deleted, so the item found there is that item itself and is
// skipped rather than interacting with itself.
func sumInteractions(cache *Cache, pos position.Position, itemType int, items []patch.Item, sign float64) (sum float64, occupied bool) {
	for _, it := range items {
		if it.Location == pos {
			if sign < 0 {
				continue
			}
			return 0, true
		}
		sum += sign * cache.Interaction(pos, it.Location, itemType, it.ItemType)
		sum += sign * cache.Interaction(it.Location, pos, it.ItemType, itemType)
	}
	return sum, false
}

func sampleMoves(current *patch.Patch, cache *Cache, bl, tl, br, tr []*patch.Patch, origin position.Position, half int64, gen *rng.Generator) {
	n := half * 2
	for i := 0; i < len(current.Items); i++ {
		item := current.Items[i]
		itemType := item.ItemType
		oldPos := item.Location
		newPos := origin.Add(position.Position{gen.Intn(int(n)), gen.Intn(int(n))})

		oldLX, oldLY := localOffset(oldPos, origin)
		newLX, newLY := localOffset(newPos, origin)
		oldNeighborhood := pickNeighborhood(bl, tl, br, tr, oldLX, oldLY, half)
		newNeighborhood := pickNeighborhood(bl, tl, br, tr, newLX, newLY, half)

		logAccept := 0.0
		occupied := false
		for _, p := range newNeighborhood {
			sum, occ := sumInteractions(cache, newPos, itemType, p.Items, 1)
			if occ {
				occupied = true
				break
			}
			logAccept += sum
			logAccept -= cache.Interaction(newPos, newPos, itemType, itemType)
		}
		if occupied {
			continue
		}
		for _, p := range oldNeighborhood {
			sum, _ := sumInteractions(cache, oldPos, itemType, p.Items, -1)
			logAccept += sum
			logAccept += cache.Interaction(oldPos, oldPos, itemType, itemType)
		}
		logAccept += cache.Intensity(newPos, itemType) - cache.Intensity(oldPos, itemType)

		if math.Log(gen.Float64()) < logAccept {
			current.Items[i] = patch.Item{ItemType: itemType, Location: newPos}
		}
	}
}

func sampleBirth(current *patch.Patch, cache *Cache, bl, tl, br, tr []*patch.Patch, origin position.Position, half int64, count int, logItemTypeCount float64, gen *rng.Generator) {
	n := half * 2
	itemType := gen.Intn(count)
	newPos := origin.Add(position.Position{gen.Intn(int(n)), gen.Intn(int(n))})
	lx, ly := localOffset(newPos, origin)
	neighborhood := pickNeighborhood(bl, tl, br, tr, lx, ly, half)

	logAccept := 0.0
	for _, p := range neighborhood {
		sum, occ := sumInteractions(cache, newPos, itemType, p.Items, 1)
		if occ {
			return
		}
		logAccept += sum
		logAccept -= cache.Interaction(newPos, newPos, itemType, itemType)
	}

	logAccept += cache.Intensity(newPos, itemType)
	logAccept += -math.Log(float64(len(current.Items) + 1))
	logAccept -= -logItemTypeCount - math.Log(float64(n*n)-float64(len(current.Items)))

	if math.Log(gen.Float64()) < logAccept {
		current.AddItem(patch.Item{ItemType: itemType, Location: newPos})
	}
}

func sampleDeath(current *patch.Patch, cache *Cache, bl, tl, br, tr []*patch.Patch, origin position.Position, half int64, count int, logItemTypeCount float64, gen *rng.Generator) {
	n := half * 2
	if len(current.Items) == 0 {
		return
	}
	idx := gen.Intn(len(current.Items))
	item := current.Items[idx]
	oldPos := item.Location
	lx, ly := localOffset(oldPos, origin)
	neighborhood := pickNeighborhood(bl, tl, br, tr, lx, ly, half)

	logAccept := 0.0
	for _, p := range neighborhood {
		sum, _ := sumInteractions(cache, oldPos, item.ItemType, p.Items, -1)
		logAccept += sum
		logAccept += cache.Interaction(oldPos, oldPos, item.ItemType, item.ItemType)
	}
	logAccept -= cache.Intensity(oldPos, item.ItemType)
	logAccept += -logItemTypeCount - math.Log(float64(n*n)-float64(len(current.Items))+1)
	logAccept -= -math.Log(float64(len(current.Items)))

	if math.Log(gen.Float64()) < logAccept {
		current.Items = append(current.Items[:idx], current.Items[idx+1:]...)
	}
}
