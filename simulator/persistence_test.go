package simulator

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/observation"
	"gridworld/persist"
	"gridworld/position"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	Convey("Given a simulator with an agent that has moved and a signaled semaphore", t, func() {
		sim, err := New(testConfig(), testCatalogue(t), 42)
		So(err, ShouldBeNil)

		id := sim.AddAgent(position.Position{X: 1, Y: 1}, observation.North)
		So(sim.Move(id, position.Position{X: 2, Y: 1}), ShouldBeNil)

		semID := sim.AddSemaphore()
		So(sim.SignalSemaphore(semID), ShouldBeNil)

		tags := []persist.ItemTypeTag{{Name: "empty"}}

		Convey("Snapshot captures agent position, semaphore state, and current time", func() {
			world := sim.Snapshot(tags)
			So(world.N, ShouldEqual, int64(8))
			So(world.CurrentTime, ShouldEqual, sim.CurrentTime())
			So(len(world.Agents), ShouldEqual, 1)
			So(world.Agents[0].ID, ShouldEqual, id)
			So(len(world.Semaphores), ShouldEqual, 1)
			So(world.Semaphores[0].Signaled, ShouldBeTrue)

			Convey("RestoreFrom reconstructs an equivalent simulator", func() {
				restored, err := RestoreFrom(testConfig(), world, testCatalogue(t))
				So(err, ShouldBeNil)
				So(restored.CurrentTime(), ShouldEqual, sim.CurrentTime())

				states := restored.GetAgentStates()
				So(len(states), ShouldEqual, 1)
				So(states[0].ID, ShouldEqual, id)

				sems := restored.GetSemaphoreStates()
				So(len(sems), ShouldEqual, 1)
				So(sems[0].ID, ShouldEqual, semID)
				So(sems[0].Signaled, ShouldBeTrue)

				Convey("A freshly added agent after restore gets an ID past the restored one", func() {
					freshID := restored.AddAgent(position.Position{}, observation.North)
					So(freshID, ShouldBeGreaterThan, id)
				})
			})
		})
	})
}
