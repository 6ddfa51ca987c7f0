package client_test

import (
	"net"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/agent"
	"gridworld/client"
	"gridworld/energy"
	"gridworld/gibbs"
	"gridworld/protocol"
	"gridworld/server"
	"gridworld/simulator"
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

func testConfig() simulator.Config {
	return simulator.Config{
		PatchSize:      8,
		MCMCIterations: 1,
		VisionRange:    2,
		FOVRadians:     6.28,
		Collision:      simulator.FirstComeFirstServed,
		Occlusion:      func(int) float64 { return 0 },
		ItemEmission:   []float64{0},
		DecayFactor:    0.9,
		DiffusionRate:  0.1,
		NoOpAllowed:    true,
	}
}

// startTestServer boots a real server package instance on an ephemeral
// localhost port so this package's tests exercise the actual wire protocol
// end to end, not a mock.
func startTestServer(t *testing.T) (addr string, sim *simulator.Simulator) {
	t.Helper()
	sim, err := simulator.New(testConfig(), testCatalogue(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr = ln.Addr().String()
	ln.Close() // server.Serve binds its own listener on this freed address

	srv := server.New(sim, 4)
	go srv.Serve(addr)
	t.Cleanup(func() { srv.Stop() })
	time.Sleep(20 * time.Millisecond) // let the listener bind before dialing
	return addr, sim
}

func TestDialAllocatesFreshClientID(t *testing.T) {
	Convey("Given a running server", t, func() {
		addr, _ := startTestServer(t)

		Convey("Dial with ClientID 0 receives a nonzero id", func() {
			c, err := client.Dial(addr, client.Options{Version: 1, Permission: protocol.PermAll})
			So(err, ShouldBeNil)
			defer c.Close()
			So(c.ClientID(), ShouldNotEqual, uint64(0))
			So(c.State(), ShouldEqual, client.Ready)
		})
	})
}

func TestAddAgentAndMove(t *testing.T) {
	Convey("Given a dialed client with full permissions", t, func() {
		addr, _ := startTestServer(t)
		c, err := client.Dial(addr, client.Options{Version: 1, Permission: protocol.PermAll})
		So(err, ShouldBeNil)
		defer c.Close()

		Convey("AddAgent returns a fresh agent, then MOVE succeeds", func() {
			state, err := c.AddAgent()
			So(err, ShouldBeNil)

			ids, err := c.GetAgentIDs()
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []agent.ID{state.ID})

			err = c.Move(state.ID, protocol.Up, 1)
			So(err, ShouldBeNil)
		})
	})
}

func TestStepCallbackFiresOnTurnCommit(t *testing.T) {
	Convey("Given a single client driving a single agent", t, func() {
		addr, _ := startTestServer(t)

		var mu sync.Mutex
		stepCount := 0
		stepped := make(chan struct{}, 8)

		c, err := client.Dial(addr, client.Options{
			Version:    1,
			Permission: protocol.PermAll,
			OnStep: func(status protocol.Status, ids []agent.ID, states []protocol.AgentState) {
				mu.Lock()
				stepCount++
				mu.Unlock()
				stepped <- struct{}{}
			},
		})
		So(err, ShouldBeNil)
		defer c.Close()

		state, err := c.AddAgent()
		So(err, ShouldBeNil)

		Convey("DoNothing on the sole agent commits the turn and fires OnStep", func() {
			err := c.DoNothing(state.ID)
			So(err, ShouldBeNil)

			select {
			case <-stepped:
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for step callback")
			}
			mu.Lock()
			defer mu.Unlock()
			So(stepCount, ShouldBeGreaterThanOrEqualTo, 1)
		})
	})
}

func TestReconnectAfterCloseRecoversOwnedAgents(t *testing.T) {
	Convey("Given a client that owns an agent and closes", t, func() {
		addr, _ := startTestServer(t)
		c, err := client.Dial(addr, client.Options{Version: 1, Permission: protocol.PermAll})
		So(err, ShouldBeNil)
		state, err := c.AddAgent()
		So(err, ShouldBeNil)
		clientID := c.ClientID()
		c.Close()

		Convey("Reconnecting with the same client_id recovers the owned agent", func() {
			time.Sleep(50 * time.Millisecond)
			c2, err := client.Dial(addr, client.Options{
				Version:    1,
				ClientID:   clientID,
				Permission: protocol.PermAll,
				AgentIDs:   []agent.ID{state.ID},
			})
			So(err, ShouldBeNil)
			defer c2.Close()
			So(c2.ClientID(), ShouldEqual, clientID)

			ids, err := c2.GetAgentIDs()
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []agent.ID{state.ID})
		})
	})
}

func TestLostConnectionCallbackFiresWhenServerStops(t *testing.T) {
	Convey("Given a client connected to a server that then stops", t, func() {
		sim, err := simulator.New(testConfig(), testCatalogue(t), 1)
		So(err, ShouldBeNil)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		addr := ln.Addr().String()
		ln.Close()
		srv := server.New(sim, 4)
		go srv.Serve(addr)
		time.Sleep(20 * time.Millisecond)

		lost := make(chan struct{}, 1)
		c, err := client.Dial(addr, client.Options{
			Version:          1,
			Permission:       protocol.PermAll,
			OnLostConnection: func(err error) { lost <- struct{}{} },
		})
		So(err, ShouldBeNil)
		defer c.Close()

		Convey("Stopping the server transitions the client to Lost", func() {
			srv.Stop()
			select {
			case <-lost:
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for lost-connection callback")
			}
			So(c.State(), ShouldEqual, client.Lost)
		})
	})
}
