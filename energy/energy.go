// Package energy implements the Gibbs field's intensity and interaction
// kernels: the per-item-type "how likely is an item of this type here" and
// per-item-pair "how much do these two items influence each other" energy
// contributions the Gibbs sampler (package gibbs) evaluates every proposal.
//
// This package defines the kernel mechanism only, not a catalogue of actual
// item types or their parameters — that's supplied by simulator_config
// (package config) at runtime.
package energy

import "fmt"

// IntensityKind tags which intensity kernel an item type uses.
type IntensityKind uint64

const (
	IntensityZero IntensityKind = iota
	IntensityConstant
)

// InteractionKind tags which interaction kernel an item-type pair uses.
type InteractionKind uint64

const (
	InteractionZero InteractionKind = iota
	InteractionPiecewiseBox
	InteractionCross
)

// IntensityFn computes the intensity contribution of an item of some type at
// pos, independent of any other item.
type IntensityFn func(pos Position) float64

// InteractionFn computes the pairwise energy contribution between an item at
// pos1 and one at pos2.
type InteractionFn func(pos1, pos2 Position) float64

// Position is the minimal 2-vector energy kernels operate on; it mirrors
// position.Position's fields without importing package position, since the
// kernels only need integer displacement, never patch math.
type Position struct {
	X, Y int64
}

func (p Position) sub(q Position) Position { return Position{p.X - q.X, p.Y - q.Y} }

func (p Position) squaredLength() int64 { return p.X*p.X + p.Y*p.Y }

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// argCount returns the number of float64 parameters an intensity kernel
// expects.
func (k IntensityKind) argCount() int {
	switch k {
	case IntensityZero:
		return 0
	case IntensityConstant:
		return 1
	default:
		return -1
	}
}

// argCount returns the number of float64 parameters an interaction kernel
// expects.
func (k InteractionKind) argCount() int {
	switch k {
	case InteractionZero:
		return 0
	case InteractionPiecewiseBox:
		return 4
	case InteractionCross:
		return 6
	default:
		return -1
	}
}

// NewIntensityFn binds an intensity kernel to its parameters, validating
// arity. Returns an error matching spec.md's INVALID_SIMULATOR_CONFIGURATION
// status when args doesn't match the kernel's required arity.
func NewIntensityFn(kind IntensityKind, args []float64) (IntensityFn, error) {
	want := kind.argCount()
	if want < 0 {
		return nil, fmt.Errorf("energy: unknown intensity kernel %d", kind)
	}
	if len(args) != want {
		return nil, fmt.Errorf("energy: intensity kernel %v requires %d arguments, got %d", kind, want, len(args))
	}
	switch kind {
	case IntensityZero:
		return func(Position) float64 { return 0.0 }, nil
	case IntensityConstant:
		c := args[0]
		return func(Position) float64 { return c }, nil
	}
	panic("unreachable")
}

// NewInteractionFn binds an interaction kernel to its parameters, validating
// arity.
func NewInteractionFn(kind InteractionKind, args []float64) (InteractionFn, error) {
	want := kind.argCount()
	if want < 0 {
		return nil, fmt.Errorf("energy: unknown interaction kernel %d", kind)
	}
	if len(args) != want {
		return nil, fmt.Errorf("energy: interaction kernel %v requires %d arguments, got %d", kind, want, len(args))
	}
	switch kind {
	case InteractionZero:
		return func(Position, Position) float64 { return 0.0 }, nil
	case InteractionPiecewiseBox:
		firstCutoff, secondCutoff, firstValue, secondValue := args[0], args[1], args[2], args[3]
		return func(pos1, pos2 Position) float64 {
			sq := float64(pos1.sub(pos2).squaredLength())
			switch {
			case sq < firstCutoff:
				return firstValue
			case sq < secondCutoff:
				return secondValue
			default:
				return 0.0
			}
		}, nil
	case InteractionCross:
		innerRadius, outerRadius := args[0], args[1]
		innerAxis, outerAxis, innerDiag, outerDiag := args[2], args[3], args[4], args[5]
		return func(pos1, pos2 Position) float64 {
			diff := pos1.sub(pos2)
			dist := float64(max64(abs64(diff.X), abs64(diff.Y)))
			onAxis := diff.X == 0 || diff.Y == 0
			switch {
			case dist <= innerRadius:
				if onAxis {
					return innerAxis
				}
				return innerDiag
			case dist <= outerRadius:
				if onAxis {
					return outerAxis
				}
				return outerDiag
			default:
				return 0.0
			}
		}, nil
	}
	panic("unreachable")
}

// IsConstantZero reports whether kind always contributes zero energy
// regardless of position, letting the Gibbs sampler skip it entirely.
func (k InteractionKind) IsConstantZero() bool { return k == InteractionZero }

// IsStationary reports whether the kernel's value depends only on the
// displacement between the two positions (true for every interaction kernel
// this package defines, matching the reference implementation's
// is_stationary) and therefore qualifies for the energy cache's
// precomputed 4n x 4n displacement table (package gibbs).
func (k InteractionKind) IsStationary() bool {
	switch k {
	case InteractionZero, InteractionPiecewiseBox, InteractionCross:
		return true
	default:
		return false
	}
}

// IsStationary reports whether the intensity kernel's value is independent
// of position. Both kernels this package defines are stationary (and hence
// also constant): ZERO and CONSTANT never depend on pos.
func (k IntensityKind) IsStationary() bool {
	switch k {
	case IntensityZero, IntensityConstant:
		return true
	default:
		return false
	}
}
