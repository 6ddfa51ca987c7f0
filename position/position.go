// Package position implements the integer lattice coordinates agents and
// items live on, and the patch/world conversions the rest of the simulator
// builds on. The lattice is unbounded in both directions; patches are the
// unit of lazy materialization (see package patch).
package position

import "fmt"

// Position is a signed 64-bit world coordinate.
type Position struct {
	X, Y int64
}

// PatchCoord identifies a patch by its own coordinate space: PatchCoord{0,0}
// covers world positions [0,n) x [0,n), PatchCoord{-1,0} covers [-n,0) x [0,n), etc.
type PatchCoord struct {
	X, Y int64
}

func (p Position) Up() Position    { return Position{p.X, p.Y + 1} }
func (p Position) Down() Position  { return Position{p.X, p.Y - 1} }
func (p Position) Left() Position  { return Position{p.X - 1, p.Y} }
func (p Position) Right() Position { return Position{p.X + 1, p.Y} }

func (p Position) Add(q Position) Position { return Position{p.X + q.X, p.Y + q.Y} }
func (p Position) Sub(q Position) Position { return Position{p.X - q.X, p.Y - q.Y} }
func (p Position) Scale(k int64) Position  { return Position{p.X * k, p.Y * k} }

func (c PatchCoord) Up() PatchCoord    { return PatchCoord{c.X, c.Y + 1} }
func (c PatchCoord) Down() PatchCoord  { return PatchCoord{c.X, c.Y - 1} }
func (c PatchCoord) Left() PatchCoord  { return PatchCoord{c.X - 1, c.Y} }
func (c PatchCoord) Right() PatchCoord { return PatchCoord{c.X + 1, c.Y} }

func (p Position) String() string      { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }
func (c PatchCoord) String() string    { return fmt.Sprintf("patch(%d,%d)", c.X, c.Y) }

// FlooredDiv divides a by b (b > 0) rounding toward negative infinity, the
// way Go's native '/' does not for negative dividends.
func FlooredDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// FlooredDivMod returns FlooredDiv plus the non-negative remainder such that
// a == q*b + r, 0 <= r < b.
func FlooredDivMod(a, b int64) (q, r int64) {
	q = FlooredDiv(a, b)
	r = a - q*b
	return
}

// ToPatch returns the patch coordinate containing world position p, for a
// patch side length of n cells. Invariant: every world position belongs to
// exactly one patch (spec.md §3).
func ToPatch(p Position, n int64) PatchCoord {
	return PatchCoord{FlooredDiv(p.X, n), FlooredDiv(p.Y, n)}
}

// ToPatchAndOffset returns both the owning patch coordinate and p's local
// offset within that patch, each in [0, n).
func ToPatchAndOffset(p Position, n int64) (coord PatchCoord, offset Position) {
	qx, rx := FlooredDivMod(p.X, n)
	qy, ry := FlooredDivMod(p.Y, n)
	return PatchCoord{qx, qy}, Position{rx, ry}
}

// Origin returns the world position of the patch's bottom-left cell.
func (c PatchCoord) Origin(n int64) Position {
	return Position{c.X * n, c.Y * n}
}

// BoundingBox is an inclusive rectangle of world positions.
type BoundingBox struct {
	BottomLeft, TopRight Position
}

// Visit calls fn for every position in the box, row-major (x outer, y inner),
// mirroring the teacher's Visit/VisitXYStates traversal helpers.
func (b BoundingBox) Visit(fn func(Position)) {
	for x := b.BottomLeft.X; x <= b.TopRight.X; x++ {
		for y := b.BottomLeft.Y; y <= b.TopRight.Y; y++ {
			fn(Position{x, y})
		}
	}
}

// PatchRange returns the inclusive range of patch coordinates whose patches
// intersect the box, for a patch side length of n.
func (b BoundingBox) PatchRange(n int64) (bottomLeft, topRight PatchCoord) {
	bottomLeft = ToPatch(b.BottomLeft, n)
	topRight = ToPatch(b.TopRight, n)
	return
}

// VisitPatches calls fn for every patch coordinate intersecting the box.
func (b BoundingBox) VisitPatches(n int64, fn func(PatchCoord)) {
	bl, tr := b.PatchRange(n)
	for x := bl.X; x <= tr.X; x++ {
		for y := bl.Y; y <= tr.Y; y++ {
			fn(PatchCoord{x, y})
		}
	}
}

// Rev returns reversed indices 0..length-1, for ranging backward over a
// slice; carried from the teacher's grid_world.Rev.
func Rev(length int) []int {
	indices := make([]int, length)
	for i := 0; i < length; i++ {
		indices[i] = length - i - 1
	}
	return indices
}
