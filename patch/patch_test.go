package patch

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/position"
	"gridworld/rng"
)

func TestGetOrMakeSeedsFromNeighbor(t *testing.T) {
	Convey("Given a store with one existing patch holding an item", t, func() {
		s := NewStore(4)
		gen := rng.New(1)

		origin := s.GetOrMake(position.PatchCoord{0, 0}, gen)
		origin.Lock()
		origin.AddItem(Item{ItemType: 1, Location: position.Position{2, 2}})
		origin.Unlock()

		Convey("A newly-materialized neighbor is seeded with a translated copy of its items", func() {
			right := s.GetOrMake(position.PatchCoord{1, 0}, gen)
			So(len(right.Items), ShouldEqual, 1)
			So(right.Items[0].Location, ShouldResemble, position.Position{6, 2})
			So(right.Items[0].CreationTime, ShouldEqual, uint64(0))
		})

		Convey("GetIfExists returns nil for unmaterialized coordinates", func() {
			So(s.GetIfExists(position.PatchCoord{9, 9}), ShouldBeNil)
		})

		Convey("GetOrMake is idempotent", func() {
			a := s.GetOrMake(position.PatchCoord{0, 0}, gen)
			So(a, ShouldEqual, origin)
		})
	})
}

func TestGetOrMakeEmptyWhenNoNeighbors(t *testing.T) {
	Convey("Given an empty store", t, func() {
		s := NewStore(4)
		gen := rng.New(2)

		Convey("The first patch materialized has no items", func() {
			p := s.GetOrMake(position.PatchCoord{5, 5}, gen)
			So(p.Items, ShouldBeEmpty)
			So(p.Fixed, ShouldBeFalse)
		})
	})
}
