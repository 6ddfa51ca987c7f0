// Package observation builds the per-agent view of the world: the scent
// reading at the agent's cell and the set of cells within vision range that
// are unoccluded and within the agent's field of view, via ray-marching
// from the agent's position outward the way a line-of-sight check works in
// any 2-D grid renderer (the trigonometry idiom, Atan2 for bearing and
// Hypot-style distance, follows the teacher's cell_views.getDegrees/getScale).
package observation

import (
	"math"

	"gridworld/patch"
	"gridworld/position"
)

// Direction is one of the four cardinal facings an agent can have.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// radians returns the facing's bearing, measured counterclockwise from the
// positive X axis, matching math.Atan2's convention.
func (d Direction) radians() float64 {
	switch d {
	case North:
		return math.Pi / 2
	case East:
		return 0
	case South:
		return -math.Pi / 2
	case West:
		return math.Pi
	default:
		return 0
	}
}

// Config parameterizes observation building: how far an agent can see, and
// its field of view, in radians, centered on its facing direction.
type Config struct {
	VisionRange int64
	FOVRadians  float64
}

// Occlusion reports how much an item type blocks vision through its cell,
// in [0,1]: 0 is fully transparent, 1 is fully opaque. A ray crossing
// several occluding items attenuates multiplicatively, the way looking
// through several panes of frosted glass darkens faster than looking
// through one.
type Occlusion func(itemType int) float64

// opacityThreshold is how little of a ray's original visibility may remain
// before the target cell is reported as occluded entirely.
const opacityThreshold = 0.05

// Cell is one visible cell's content: item types present there (possibly
// none) and the scent reading.
type Cell struct {
	Position position.Position
	Items    []int
	Scent    float64
}

// Observation is the full per-agent view built by Build.
type Observation struct {
	Scent float64 // scent at the agent's own cell
	Cells []Cell  // visible cells, excluding the agent's own
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// inFOV reports whether the bearing from origin to target falls within the
// facing's field of view. Cells exactly on the cone boundary are included
// (Open Question decision: FOV boundary is inclusive).
func inFOV(origin, target position.Position, facing Direction, fov float64) bool {
	if target == origin {
		return true
	}
	dx := float64(target.X - origin.X)
	dy := float64(target.Y - origin.Y)
	bearing := math.Atan2(dy, dx)
	delta := normalizeAngle(bearing - facing.radians())
	return math.Abs(delta) <= fov/2
}

// itemsAt returns the item types present at pos, reading from whichever
// patch owns it.
func itemsAt(store *patch.Store, n int64, pos position.Position) []int {
	coord := position.ToPatch(pos, n)
	p := store.GetIfExists(coord)
	if p == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	var types []int
	for _, it := range p.Items {
		if it.Location == pos && it.DeletionTime == 0 {
			types = append(types, it.ItemType)
		}
	}
	return types
}

// scentAt reads the scent value at pos.
func scentAt(store *patch.Store, n int64, pos position.Position) float64 {
	coord, offset := position.ToPatchAndOffset(pos, n)
	p := store.GetIfExists(coord)
	if p == nil {
		return 0
	}
	return p.Scent[offset.Y*n+offset.X].AtomicRead()
}

// raySteps returns the sequence of integer grid cells from origin to target
// exclusive of origin, inclusive of target, using a simple DDA walk. Good
// enough for occlusion testing at the short ranges vision operates over;
// it need not be a true supercover line, only consistent.
func raySteps(origin, target position.Position) []position.Position {
	dx := target.X - origin.X
	dy := target.Y - origin.Y
	steps := dx
	if dy > steps {
		steps = dy
	}
	if -dx > steps {
		steps = -dx
	}
	if -dy > steps {
		steps = -dy
	}
	if steps == 0 {
		return nil
	}
	out := make([]position.Position, 0, steps)
	for i := int64(1); i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := origin.X + int64(math.Round(float64(dx)*t))
		y := origin.Y + int64(math.Round(float64(dy)*t))
		out = append(out, position.Position{X: x, Y: y})
	}
	return out
}

// visible reports whether target is unoccluded from origin: the ray's
// attenuation, accumulated multiplicatively as (1 - occlusion(itemType))
// over every item in every cell strictly between them (not including target
// itself, since an opaque item is visible in its own cell, it just blocks
// what's behind it), must stay above opacityThreshold.
func visible(store *patch.Store, n int64, origin, target position.Position, occlusion Occlusion) bool {
	steps := raySteps(origin, target)
	attenuation := 1.0
	for _, cell := range steps[:max(0, len(steps)-1)] {
		for _, t := range itemsAt(store, n, cell) {
			attenuation *= 1 - occlusion(t)
			if attenuation <= opacityThreshold {
				return false
			}
		}
	}
	return true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Build computes the observation for an agent at pos facing facing, reading
// from store (patches the field of view crosses must already be
// materialized by the caller via mapgen before calling Build).
func Build(store *patch.Store, n int64, pos position.Position, facing Direction, cfg Config, occlusion Occlusion) Observation {
	obs := Observation{Scent: scentAt(store, n, pos)}

	box := position.BoundingBox{
		BottomLeft: position.Position{X: pos.X - cfg.VisionRange, Y: pos.Y - cfg.VisionRange},
		TopRight:   position.Position{X: pos.X + cfg.VisionRange, Y: pos.Y + cfg.VisionRange},
	}
	box.Visit(func(target position.Position) {
		if target == pos {
			return
		}
		if !inFOV(pos, target, facing, cfg.FOVRadians) {
			return
		}
		if !visible(store, n, pos, target, occlusion) {
			return
		}
		obs.Cells = append(obs.Cells, Cell{
			Position: target,
			Items:    itemsAt(store, n, target),
			Scent:    scentAt(store, n, target),
		})
	})
	return obs
}
