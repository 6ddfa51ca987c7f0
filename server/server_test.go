package server

import (
	"net"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/energy"
	"gridworld/gibbs"
	"gridworld/observation"
	"gridworld/protocol"
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

// startTestServer boots a Server over a fresh simulator on an ephemeral
// localhost port and returns its address, stopping it on test cleanup.
func startTestServer(t *testing.T) (addr string, srv *Server) {
	t.Helper()
	sim, err := simulator.New(testConfig(), testCatalogue(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	srv = New(sim, 4)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv.listener = ln
	srv.group.Go(srv.acceptLoop)
	srv.group.Go(srv.broadcastLoop)
	t.Cleanup(func() { srv.Stop() })
	return ln.Addr().String(), srv
}

func dialAndHandshake(t *testing.T, addr string, clientID uint64, perm protocol.Permission) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	req := protocol.HandshakeRequest{Version: 1, ClientID: clientID, PermissionRequest: perm}
	if err := protocol.WriteFrame(conn, protocol.Handshake, protocol.EncodeHandshakeRequest(req)); err != nil {
		t.Fatal(err)
	}
	return conn
}

func readHandshakeResponse(t *testing.T, conn net.Conn) protocol.HandshakeResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	opcode, payload, err := protocol.ReadFrame(protocol.NewBufferedReader(conn), false)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != protocol.Handshake {
		t.Fatalf("expected handshake response opcode, got %d", opcode)
	}
	resp, err := protocol.DecodeHandshakeResponse(payload)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandshakeAllocatesFreshClientID(t *testing.T) {
	Convey("Given a freshly booted server", t, func() {
		addr, _ := startTestServer(t)

		Convey("A handshake with client_id 0 is allocated a nonzero id", func() {
			conn := dialAndHandshake(t, addr, 0, protocol.PermAll)
			defer conn.Close()
			resp := readHandshakeResponse(t, conn)
			So(resp.Status, ShouldEqual, protocol.OK)
			So(resp.ClientID, ShouldNotEqual, uint64(0))
			So(resp.OwnedAgents, ShouldBeEmpty)
		})
	})
}

func TestAddAgentAndMoveRoundTrip(t *testing.T) {
	Convey("Given a connected client with full permissions", t, func() {
		addr, _ := startTestServer(t)
		conn := dialAndHandshake(t, addr, 0, protocol.PermAll)
		defer conn.Close()
		readHandshakeResponse(t, conn)
		reader := protocol.NewBufferedReader(conn)

		Convey("ADD_AGENT returns a fresh owned agent", func() {
			err := protocol.WriteFrame(conn, protocol.AddAgent, protocol.EncodeAddAgentRequest())
			So(err, ShouldBeNil)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			opcode, payload, err := protocol.ReadFrame(reader, false)
			So(err, ShouldBeNil)
			So(opcode, ShouldEqual, protocol.AddAgent)
			status, state, err := protocol.DecodeAddAgentResponse(payload)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, protocol.OK)

			Convey("MOVE on the owned agent succeeds", func() {
				moveReq := protocol.EncodeMoveRequest(state.ID, protocol.Up, 1)
				So(protocol.WriteFrame(conn, protocol.Move, moveReq), ShouldBeNil)
				conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				opcode, payload, err := protocol.ReadFrame(reader, false)
				So(err, ShouldBeNil)
				So(opcode, ShouldEqual, protocol.Move)
				status, err := protocol.DecodeStatusResponse(payload)
				So(err, ShouldBeNil)
				So(status, ShouldEqual, protocol.OK)
			})
		})
	})
}

func TestMoveOnUnownedAgentIsRejected(t *testing.T) {
	Convey("Given two distinct clients, one owning an agent", t, func() {
		addr, _ := startTestServer(t)
		owner := dialAndHandshake(t, addr, 0, protocol.PermAll)
		defer owner.Close()
		readHandshakeResponse(t, owner)
		ownerReader := protocol.NewBufferedReader(owner)

		So(protocol.WriteFrame(owner, protocol.AddAgent, protocol.EncodeAddAgentRequest()), ShouldBeNil)
		owner.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := protocol.ReadFrame(ownerReader, false)
		So(err, ShouldBeNil)
		_, state, err := protocol.DecodeAddAgentResponse(payload)
		So(err, ShouldBeNil)

		other := dialAndHandshake(t, addr, 0, protocol.PermAll)
		defer other.Close()
		readHandshakeResponse(t, other)
		otherReader := protocol.NewBufferedReader(other)

		Convey("The second client cannot MOVE the first client's agent", func() {
			moveReq := protocol.EncodeMoveRequest(state.ID, protocol.Up, 1)
			So(protocol.WriteFrame(other, protocol.Move, moveReq), ShouldBeNil)
			other.SetReadDeadline(time.Now().Add(2 * time.Second))
			opcode, payload, err := protocol.ReadFrame(otherReader, false)
			So(err, ShouldBeNil)
			So(opcode, ShouldEqual, protocol.Move)
			status, err := protocol.DecodeStatusResponse(payload)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, protocol.InvalidAgentID)
		})
	})
}

func TestPermissionDeniedWithoutGrant(t *testing.T) {
	Convey("Given a client that only requested GET_MAP permission", t, func() {
		addr, _ := startTestServer(t)
		conn := dialAndHandshake(t, addr, 0, protocol.PermGetMap)
		defer conn.Close()
		readHandshakeResponse(t, conn)
		reader := protocol.NewBufferedReader(conn)

		Convey("ADD_AGENT is rejected with VIOLATED_PERMISSIONS", func() {
			So(protocol.WriteFrame(conn, protocol.AddAgent, protocol.EncodeAddAgentRequest()), ShouldBeNil)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			opcode, payload, err := protocol.ReadFrame(reader, false)
			So(err, ShouldBeNil)
			So(opcode, ShouldEqual, protocol.AddAgent)
			status, _, err := protocol.DecodeAddAgentResponse(payload)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, protocol.ViolatedPermissions)
		})
	})
}

func TestReconnectReturnsOwnedAgents(t *testing.T) {
	Convey("Given a client that owns an agent and disconnects", t, func() {
		addr, _ := startTestServer(t)
		conn := dialAndHandshake(t, addr, 0, protocol.PermAll)
		resp := readHandshakeResponse(t, conn)
		reader := protocol.NewBufferedReader(conn)

		So(protocol.WriteFrame(conn, protocol.AddAgent, protocol.EncodeAddAgentRequest()), ShouldBeNil)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := protocol.ReadFrame(reader, false)
		So(err, ShouldBeNil)
		_, state, err := protocol.DecodeAddAgentResponse(payload)
		So(err, ShouldBeNil)
		conn.Close()

		Convey("Reconnecting with the same client_id reports the owned agent", func() {
			time.Sleep(50 * time.Millisecond) // let the server notice the closed socket
			conn2 := dialAndHandshake(t, addr, resp.ClientID, protocol.PermAll)
			defer conn2.Close()
			resp2 := readHandshakeResponse(t, conn2)
			So(resp2.Status, ShouldEqual, protocol.OK)
			So(resp2.ClientID, ShouldEqual, resp.ClientID)
			So(len(resp2.OwnedAgents), ShouldEqual, 1)
			So(resp2.OwnedAgents[0].ID, ShouldEqual, state.ID)
		})
	})
}

func TestUnknownClientIDOnReconnectIsRejected(t *testing.T) {
	Convey("Given a server with no record of client_id 9999", t, func() {
		addr, _ := startTestServer(t)

		Convey("Handshaking with that id reports AGENT_ALREADY_EXISTS", func() {
			conn := dialAndHandshake(t, addr, 9999, protocol.PermAll)
			defer conn.Close()
			resp := readHandshakeResponse(t, conn)
			So(resp.Status, ShouldEqual, protocol.AgentAlreadyExists)
		})
	})
}
