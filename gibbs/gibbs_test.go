package gibbs

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/energy"
	"gridworld/patch"
	"gridworld/position"
	"gridworld/rng"
)

func testCatalogue(t *testing.T) []ItemType {
	zeroIntensity, err := energy.NewIntensityFn(energy.IntensityZero, nil)
	if err != nil {
		t.Fatal(err)
	}
	constIntensity, err := energy.NewIntensityFn(energy.IntensityConstant, []float64{-1.0})
	if err != nil {
		t.Fatal(err)
	}
	zeroInteraction, err := energy.NewInteractionFn(energy.InteractionZero, nil)
	if err != nil {
		t.Fatal(err)
	}
	box, err := energy.NewInteractionFn(energy.InteractionPiecewiseBox, []float64{4, 16, 2.0, -2.0})
	if err != nil {
		t.Fatal(err)
	}

	return []ItemType{
		{
			Name:                    "grass",
			Intensity:               constIntensity,
			IntensityStationary:     true,
			Interactions:            []energy.InteractionFn{box, zeroInteraction},
			InteractionStationary:   []bool{true, true},
			InteractionConstantZero: []bool{false, true},
		},
		{
			Name:                    "wall",
			Intensity:               zeroIntensity,
			IntensityStationary:     true,
			Interactions:            []energy.InteractionFn{zeroInteraction, zeroInteraction},
			InteractionStationary:   []bool{true, true},
			InteractionConstantZero: []bool{true, true},
		},
	}
}

func TestCacheStationaryPrecomputation(t *testing.T) {
	Convey("Given a catalogue with a stationary, non-constant interaction", t, func() {
		catalogue := testCatalogue(t)
		cache, err := NewCache(catalogue, 8)
		So(err, ShouldBeNil)

		Convey("Intensity lookups use the precomputed constant", func() {
			So(cache.Intensity(position.Position{0, 0}, 0), ShouldEqual, -1.0)
			So(cache.Intensity(position.Position{50, 50}, 0), ShouldEqual, -1.0)
		})

		Convey("Interaction lookups match direct kernel evaluation", func() {
			a := position.Position{0, 0}
			b := position.Position{1, 0}
			direct := catalogue[0].Interactions[0](energy.Position{0, 0}, energy.Position{1, 0})
			So(cache.Interaction(a, b, 0, 0), ShouldEqual, direct)
		})

		Convey("A constant-zero interaction always returns zero", func() {
			So(cache.Interaction(position.Position{0, 0}, position.Position{3, 3}, 0, 1), ShouldEqual, 0.0)
		})
	})
}

func TestSampleDeterministic(t *testing.T) {
	Convey("Given two identically-seeded stores sampled the same way", t, func() {
		catalogue := testCatalogue(t)
		cache, err := NewCache(catalogue, 8)
		So(err, ShouldBeNil)

		run := func(seed uint64) []patch.Item {
			store := patch.NewStore(8)
			gen := rng.New(seed)
			coord := position.PatchCoord{0, 0}
			store.GetOrMake(coord, gen)
			for i := 0; i < 20; i++ {
				Sample(store, cache, []position.PatchCoord{coord}, 8, gen)
			}
			p := store.GetIfExists(coord)
			return append([]patch.Item(nil), p.Items...)
		}

		a := run(7)
		b := run(7)
		So(a, ShouldResemble, b)
	})
}
