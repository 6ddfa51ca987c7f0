package observation

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/patch"
	"gridworld/position"
	"gridworld/rng"
)

func noOpaque(int) float64 { return 0 }

func TestBuildScent(t *testing.T) {
	Convey("Given a patch with scent at the agent's cell", t, func() {
		store := patch.NewStore(8)
		gen := rng.New(1)
		coord := position.PatchCoord{0, 0}
		p := store.GetOrMake(coord, gen)
		p.Scent[0].Set(3.5)

		Convey("Build reports that scent reading", func() {
			obs := Build(store, 8, position.Position{0, 0}, North, Config{VisionRange: 2, FOVRadians: 3.14}, noOpaque)
			So(obs.Scent, ShouldEqual, 3.5)
		})
	})
}

func TestFOVBoundaryInclusive(t *testing.T) {
	Convey("Given a narrow forward-facing FOV", t, func() {
		Convey("A cell exactly on the cone edge is included", func() {
			// facing North (pi/2), FOV pi/2 total -> half-angle pi/4.
			// target at 45 degrees from origin sits exactly on the boundary.
			origin := position.Position{0, 0}
			target := position.Position{1, 1}
			So(inFOV(origin, target, North, math.Pi/2), ShouldBeTrue)
		})
	})
}

func TestOcclusionBlocksCellsBehindOpaqueItem(t *testing.T) {
	Convey("Given an opaque item directly north of the agent", t, func() {
		store := patch.NewStore(8)
		gen := rng.New(1)
		coord := position.PatchCoord{0, 0}
		p := store.GetOrMake(coord, gen)
		p.Lock()
		p.AddItem(patch.Item{ItemType: 9, Location: position.Position{0, 1}})
		p.Unlock()

		isOpaque := func(t int) float64 {
			if t == 9 {
				return 1
			}
			return 0
		}

		Convey("The cell beyond it is not visible", func() {
			obs := Build(store, 8, position.Position{0, 0}, North, Config{VisionRange: 3, FOVRadians: 6.28}, isOpaque)
			for _, c := range obs.Cells {
				So(c.Position, ShouldNotResemble, position.Position{0, 3})
			}
		})

		Convey("The opaque item's own cell is still visible", func() {
			obs := Build(store, 8, position.Position{0, 0}, North, Config{VisionRange: 3, FOVRadians: 6.28}, isOpaque)
			found := false
			for _, c := range obs.Cells {
				if c.Position == (position.Position{0, 1}) {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}

func TestPartialOcclusionAttenuatesRatherThanBlocks(t *testing.T) {
	Convey("Given a single lightly-occluding item between the agent and a far cell", t, func() {
		store := patch.NewStore(8)
		gen := rng.New(1)
		coord := position.PatchCoord{0, 0}
		p := store.GetOrMake(coord, gen)
		p.Lock()
		p.AddItem(patch.Item{ItemType: 3, Location: position.Position{0, 1}})
		p.Unlock()

		lightOcclusion := func(t int) float64 {
			if t == 3 {
				return 0.3
			}
			return 0
		}

		Convey("The cell two steps behind it is still visible: one crossing doesn't cross the opacity threshold", func() {
			obs := Build(store, 8, position.Position{0, 0}, North, Config{VisionRange: 3, FOVRadians: 6.28}, lightOcclusion)
			found := false
			for _, c := range obs.Cells {
				if c.Position == (position.Position{0, 2}) {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})

	Convey("Given a chain of lightly-occluding items", t, func() {
		store := patch.NewStore(8)
		gen := rng.New(1)
		coord := position.PatchCoord{0, 0}
		p := store.GetOrMake(coord, gen)
		p.Lock()
		p.AddItem(patch.Item{ItemType: 3, Location: position.Position{0, 1}})
		p.AddItem(patch.Item{ItemType: 3, Location: position.Position{0, 2}})
		p.AddItem(patch.Item{ItemType: 3, Location: position.Position{0, 3}})
		p.AddItem(patch.Item{ItemType: 3, Location: position.Position{0, 4}})
		p.Unlock()

		denseOcclusion := func(t int) float64 {
			if t == 3 {
				return 0.7
			}
			return 0
		}

		Convey("Enough crossings accumulate attenuation past the opacity threshold", func() {
			obs := Build(store, 8, position.Position{0, 0}, North, Config{VisionRange: 5, FOVRadians: 6.28}, denseOcclusion)
			for _, c := range obs.Cells {
				So(c.Position, ShouldNotResemble, position.Position{0, 5})
			}
		})
	})
}
