// Package cell_views contains views derived from the dashboard's Cell
// view-model: a per-world-cell projection of scent intensity, item
// occupancy, and agent facing, analogous to the teacher's policy-arrow /
// value-surface cell model but built from simulator snapshots instead of
// a value function.
package cell_views

import (
	"fmt"
	"math"

	"gridworld/observation"
	"gridworld/patch"
	"gridworld/position"
	"gridworld/simulator"
)

// Snapshot is the data model the dashboard streams downstream: everything
// a cell-grid view needs to redraw itself after one timestep.
type Snapshot struct {
	Time    uint64
	N       int64
	Box     position.BoundingBox
	Patches map[position.PatchCoord]*patch.Patch
	Agents  []simulator.AgentState
}

// Cell is one world cell's visual state, oriented so [0][0] is the cell
// printed at the top left of the view, matching the teacher's svg
// y-flip convention.
type Cell struct {
	X, Y int

	Scent float64
	Fill  string // heatmap color derived from Scent

	Occupied bool // at least one item present
	ItemType int  // lowest item type present, only meaningful if Occupied

	HasAgent      bool
	AgentGlyph    string // an upward arrow rune, rotated to face the agent's direction
	AgentRotation int    // degrees for svg rotate(), wrt vertical
}

// Convert transforms a Snapshot into a row-major [x][y] grid of Cells
// covering its bounding box.
func Convert(snap Snapshot) (cells [][]Cell) {
	bl, tr := snap.Box.BottomLeft, snap.Box.TopRight
	width := int(tr.X-bl.X) + 1
	height := int(tr.Y-bl.Y) + 1
	if width <= 0 || height <= 0 {
		return nil
	}

	agentAt := make(map[position.Position]simulator.AgentState, len(snap.Agents))
	for _, a := range snap.Agents {
		agentAt[a.Position] = a
	}

	minScent, maxScent := scentRange(snap)

	cells = make([][]Cell, width)
	for xi := range cells {
		cells[xi] = make([]Cell, height)
	}

	for xi := 0; xi < width; xi++ {
		for yi := 0; yi < height; yi++ {
			pos := position.Position{X: bl.X + int64(xi), Y: bl.Y + int64(yi)}
			scent := scentAt(snap, pos)
			occupied, itemType := itemAt(snap, pos)

			cell := Cell{
				X:        xi,
				Y:        height - yi - 1,
				Scent:    scent,
				Fill:     scentFill(scent, minScent, maxScent),
				Occupied: occupied,
				ItemType: itemType,
			}
			if a, ok := agentAt[pos]; ok {
				cell.HasAgent = true
				cell.AgentGlyph = "↑" // upward arrow, rotated into place
				cell.AgentRotation = facingDegrees(a.Facing)
			}
			cells[xi][yi] = cell
		}
	}
	return
}

func scentAt(snap Snapshot, pos position.Position) float64 {
	coord, offset := position.ToPatchAndOffset(pos, snap.N)
	p, ok := snap.Patches[coord]
	if !ok {
		return 0
	}
	return p.Scent[offset.Y*snap.N+offset.X].AtomicRead()
}

func itemAt(snap Snapshot, pos position.Position) (occupied bool, itemType int) {
	coord := position.ToPatch(pos, snap.N)
	p, ok := snap.Patches[coord]
	if !ok {
		return false, 0
	}
	p.Lock()
	defer p.Unlock()
	itemType = math.MaxInt32
	for _, it := range p.Items {
		if it.Location == pos && it.DeletionTime == 0 {
			occupied = true
			if it.ItemType < itemType {
				itemType = it.ItemType
			}
		}
	}
	if !occupied {
		itemType = 0
	}
	return
}

func scentRange(snap Snapshot) (min, max float64) {
	min, max = math.MaxFloat64, -math.MaxFloat64
	for _, p := range snap.Patches {
		for _, c := range p.Scent {
			v := c.AtomicRead()
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	if min > max {
		min, max = 0, 0
	}
	return
}

// scentFill maps a scent reading linearly between minScent and maxScent to
// an amber heatmap, hottest where scent is most concentrated.
func scentFill(scent, minScent, maxScent float64) string {
	if maxScent <= minScent {
		return "rgb(255,255,255)"
	}
	pct := (scent - minScent) / (maxScent - minScent)
	pct = math.Max(0, math.Min(1, pct))
	green := int(255 - 200*pct)
	blue := int(255 - 255*pct)
	return fmt.Sprintf("rgb(255,%d,%d)", green, blue)
}

// facingDegrees converts an agent's cardinal Direction into the degrees
// passed to svg's rotate() transform for an upward arrow rune, following
// the teacher's getDegrees convention (measured wrt vertical).
func facingDegrees(d observation.Direction) int {
	switch d {
	case observation.North:
		return 0
	case observation.East:
		return 90
	case observation.South:
		return 180
	case observation.West:
		return 270
	default:
		return 0
	}
}
