package agent

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/observation"
	"gridworld/position"
)

func TestRegistryInsertionOrderAndMonotonicIDs(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		r := NewRegistry(2)

		a := r.Add(position.Position{0, 0}, observation.North)
		b := r.Add(position.Position{1, 1}, observation.East)
		c := r.Add(position.Position{2, 2}, observation.South)

		Convey("IDs are assigned monotonically", func() {
			So(a, ShouldEqual, ID(0))
			So(b, ShouldEqual, ID(1))
			So(c, ShouldEqual, ID(2))
		})

		Convey("IDs() preserves insertion order", func() {
			So(r.IDs(), ShouldResemble, []ID{a, b, c})
		})

		Convey("Removing the middle agent never reuses its ID", func() {
			r.Remove(b)
			So(r.IDs(), ShouldResemble, []ID{a, c})
			next := r.Add(position.Position{9, 9}, observation.West)
			So(next, ShouldEqual, ID(3))
		})

		Convey("Get returns nil for a removed or unknown agent", func() {
			r.Remove(a)
			So(r.Get(a), ShouldBeNil)
			So(r.Get(ID(999)), ShouldBeNil)
		})

		Convey("A new agent's CollectedCounts is sized to the registry's item-type count, all zero", func() {
			So(r.Get(a).CollectedCounts, ShouldResemble, []int64{0, 0})
		})
	})
}

func TestSemaphoreRegistry(t *testing.T) {
	Convey("Given a fresh semaphore registry", t, func() {
		r := NewSemaphoreRegistry()
		id := r.Add()

		Convey("A new semaphore is active and unsignaled", func() {
			s := r.Get(id)
			So(s.Active, ShouldBeTrue)
			So(s.Signaled, ShouldBeFalse)
		})

		Convey("Removing it drops it from IDs()", func() {
			r.Remove(id)
			So(r.IDs(), ShouldBeEmpty)
		})
	})
}
