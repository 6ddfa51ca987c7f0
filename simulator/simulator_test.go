package simulator

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/energy"
	"gridworld/gibbs"
	"gridworld/observation"
	"gridworld/patch"
	"gridworld/position"
)

func testCatalogue(t *testing.T) []gibbs.ItemType {
	zeroIntensity, err := energy.NewIntensityFn(energy.IntensityZero, nil)
	if err != nil {
		t.Fatal(err)
	}
	zeroInteraction, err := energy.NewInteractionFn(energy.InteractionZero, nil)
	if err != nil {
		t.Fatal(err)
	}
	return []gibbs.ItemType{{
		Name:                    "empty",
		Intensity:               zeroIntensity,
		IntensityStationary:     true,
		Interactions:            []energy.InteractionFn{zeroInteraction},
		InteractionStationary:   []bool{true},
		InteractionConstantZero: []bool{true},
	}}
}

func testConfig() Config {
	return Config{
		PatchSize:      8,
		MCMCIterations: 1,
		VisionRange:    2,
		FOVRadians:     6.28,
		Collision:      FirstComeFirstServed,
		Occlusion:      func(int) float64 { return 0 },
		ItemEmission:   []float64{0},
		DecayFactor:    0.9,
		DiffusionRate:  0.1,
		NoOpAllowed:    true,
	}
}

func TestTurnCommitsOnlyWhenAllAgentsAct(t *testing.T) {
	Convey("Given a simulator with two agents", t, func() {
		sim, err := New(testConfig(), testCatalogue(t), 1)
		So(err, ShouldBeNil)

		a := sim.AddAgent(position.Position{0, 0}, observation.North)
		b := sim.AddAgent(position.Position{10, 10}, observation.North)

		Convey("The turn does not commit until every agent has acted", func() {
			sim.DoNothing(a)
			So(sim.CurrentTime(), ShouldEqual, uint64(0))
			sim.DoNothing(b)
			So(sim.CurrentTime(), ShouldEqual, uint64(1))
		})
	})
}

func TestMoveCommitsPosition(t *testing.T) {
	Convey("Given a single-agent simulator", t, func() {
		sim, err := New(testConfig(), testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)

		Convey("A move is applied once the turn commits", func() {
			err := sim.Move(a, position.Position{1, 0})
			So(err, ShouldBeNil)
			states := sim.GetAgentStates()
			So(states[0].Position, ShouldResemble, position.Position{1, 0})
		})
	})
}

func TestFirstComeFirstServedCollision(t *testing.T) {
	Convey("Given two agents both requesting the same target cell", t, func() {
		sim, err := New(testConfig(), testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)
		b := sim.AddAgent(position.Position{2, 0}, observation.North)

		target := position.Position{1, 0}
		sim.Move(a, target)
		sim.Move(b, target)

		Convey("Only the first registered agent actually moves", func() {
			states := sim.GetAgentStates()
			var aPos, bPos position.Position
			for _, s := range states {
				if s.ID == a {
					aPos = s.Position
				}
				if s.ID == b {
					bPos = s.Position
				}
			}
			So(aPos, ShouldResemble, target)
			So(bPos, ShouldResemble, position.Position{2, 0})
		})
	})
}

func TestMovementPolicyIgnoredDropsMoveButCountsAsActed(t *testing.T) {
	Convey("Given a movement policy that ignores every move", t, func() {
		cfg := testConfig()
		cfg.MovementPolicy = func(current, target position.Position) ActionPolicy {
			return ActionPolicyIgnored
		}
		sim, err := New(cfg, testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)

		Convey("The move is silently dropped but the turn still commits", func() {
			err := sim.Move(a, position.Position{1, 0})
			So(err, ShouldBeNil)
			So(sim.CurrentTime(), ShouldEqual, uint64(1))
			states := sim.GetAgentStates()
			So(states[0].Position, ShouldResemble, position.Position{0, 0})
		})
	})
}

func TestMovementPolicyDisallowedReturnsError(t *testing.T) {
	Convey("Given a movement policy that disallows every move", t, func() {
		cfg := testConfig()
		cfg.MovementPolicy = func(current, target position.Position) ActionPolicy {
			return ActionDisallowed
		}
		sim, err := New(cfg, testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)

		Convey("Move returns an error and does not count as acting", func() {
			err := sim.Move(a, position.Position{1, 0})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSetActiveAutoCommit(t *testing.T) {
	Convey("Given two agents where one is deactivated mid-turn", t, func() {
		sim, err := New(testConfig(), testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)
		b := sim.AddAgent(position.Position{5, 5}, observation.North)

		sim.DoNothing(a)
		So(sim.CurrentTime(), ShouldEqual, uint64(0))

		Convey("Deactivating the remaining agent commits the turn immediately", func() {
			err := sim.SetActive(b, false)
			So(err, ShouldBeNil)
			So(sim.CurrentTime(), ShouldEqual, uint64(1))
		})
	})
}

func TestTurnRotatesFacingOnCommit(t *testing.T) {
	Convey("Given a single agent facing North", t, func() {
		sim, err := New(testConfig(), testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)

		Convey("A right turn faces it East once the turn commits", func() {
			err := sim.Turn(a, RightRotation)
			So(err, ShouldBeNil)
			states := sim.GetAgentStates()
			So(states[0].Facing, ShouldEqual, observation.East)
		})

		Convey("Acting twice in the same turn is rejected", func() {
			err := sim.DoNothing(a)
			So(err, ShouldBeNil)
			err = sim.Turn(a, RightRotation)
			So(errors.Is(err, ErrAgentAlreadyActed), ShouldBeTrue)
		})
	})
}

func TestCommitCollectsItemUnderAgent(t *testing.T) {
	Convey("Given an agent moving onto a cell containing an item", t, func() {
		cfg := testConfig()
		sim, err := New(cfg, testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)

		coord := position.ToPatch(position.Position{1, 0}, cfg.PatchSize)
		p := sim.store.GetOrMake(coord, sim.gen)
		p.Lock()
		p.AddItem(patch.Item{ItemType: 0, Location: position.Position{1, 0}})
		p.Fixed = true // so the commit's map generation does not resample it
		p.Unlock()

		Convey("After the move commits, the item is marked deleted and the agent's count increments", func() {
			err := sim.Move(a, position.Position{1, 0})
			So(err, ShouldBeNil)

			states := sim.GetAgentStates()
			So(states[0].CollectedCounts[0], ShouldEqual, int64(1))

			p.Lock()
			defer p.Unlock()
			So(p.Items[0].DeletionTime, ShouldNotEqual, uint64(0))
		})
	})
}

func TestRequiredCountsGateCollection(t *testing.T) {
	Convey("Given an item type whose collection requires a prerequisite the agent lacks", t, func() {
		cfg := testConfig()
		cfg.RequiredCounts = [][]int64{{0, 1}}
		sim, err := New(cfg, testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)

		coord := position.ToPatch(position.Position{1, 0}, cfg.PatchSize)
		p := sim.store.GetOrMake(coord, sim.gen)
		p.Lock()
		p.AddItem(patch.Item{ItemType: 0, Location: position.Position{1, 0}})
		p.Unlock()

		Convey("The item is left uncollected and the agent's count stays zero", func() {
			err := sim.Move(a, position.Position{1, 0})
			So(err, ShouldBeNil)

			states := sim.GetAgentStates()
			So(states[0].CollectedCounts[0], ShouldEqual, int64(0))

			p.Lock()
			defer p.Unlock()
			So(p.Items[0].DeletionTime, ShouldEqual, uint64(0))
		})
	})
}

func TestBlockingItemStopsMultiStepMoveEarly(t *testing.T) {
	Convey("Given a movement-blocking item two cells ahead of the agent", t, func() {
		cfg := testConfig()
		cfg.BlocksMovement = []bool{true}
		sim, err := New(cfg, testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{0, 0}, observation.North)

		coord := position.ToPatch(position.Position{2, 0}, cfg.PatchSize)
		p := sim.store.GetOrMake(coord, sim.gen)
		p.Lock()
		p.AddItem(patch.Item{ItemType: 0, Location: position.Position{2, 0}})
		p.Unlock()

		Convey("A three-step path stops at the cell just before the blocking item", func() {
			path := []position.Position{{1, 0}, {2, 0}, {3, 0}}
			err := sim.MoveSteps(a, path)
			So(err, ShouldBeNil)
			states := sim.GetAgentStates()
			So(states[0].Position, ShouldResemble, position.Position{1, 0})
		})
	})
}

func TestDecayPurgesItemsPastConfiguredLifetime(t *testing.T) {
	Convey("Given a deleted item older than the configured lifetime", t, func() {
		cfg := testConfig()
		cfg.DeletedItemLifetime = 2
		sim, err := New(cfg, testCatalogue(t), 1)
		So(err, ShouldBeNil)
		a := sim.AddAgent(position.Position{5, 5}, observation.North)

		coord := position.ToPatch(position.Position{0, 0}, cfg.PatchSize)
		p := sim.store.GetOrMake(coord, sim.gen)
		p.Lock()
		p.AddItem(patch.Item{ItemType: 0, Location: position.Position{0, 0}, DeletionTime: 1})
		p.Fixed = true // so the commit's map generation does not resample it
		p.Unlock()

		Convey("After enough commits the deleted item is purged from its patch", func() {
			for i := 0; i < 4; i++ {
				So(sim.DoNothing(a), ShouldBeNil)
			}
			p.Lock()
			defer p.Unlock()
			So(len(p.Items), ShouldEqual, 0)
		})
	})
}
