package server

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/protocol"
	"gridworld/simulator"
)

func TestSnapshotRestoreClientsRoundTrip(t *testing.T) {
	Convey("Given a server with one client owning an agent and a semaphore", t, func() {
		sim, err := simulator.New(testConfig(), testCatalogue(t), 1)
		So(err, ShouldBeNil)
		srv := New(sim, 4)

		record := newClientRecord(7, protocol.PermAll)
		record.addAgent(100)
		record.addSemaphore(200)
		srv.mu.Lock()
		srv.clients[7] = record
		srv.nextClientID = 8
		srv.mu.Unlock()

		Convey("SnapshotClients captures the client's ownership and next id", func() {
			records, nextID := srv.SnapshotClients()
			So(nextID, ShouldEqual, uint64(8))
			So(len(records), ShouldEqual, 1)
			So(records[0].ClientID, ShouldEqual, uint64(7))
			So(records[0].OwnedAgentIDs, ShouldResemble, record.agentIDs())
			So(records[0].OwnedSemaphoreIDs, ShouldResemble, record.semaphoreIDs())

			Convey("RestoreClients repopulates a fresh server's client table", func() {
				sim2, err := simulator.New(testConfig(), testCatalogue(t), 1)
				So(err, ShouldBeNil)
				srv2 := New(sim2, 4)
				srv2.RestoreClients(records, nextID)

				srv2.mu.Lock()
				restored, ok := srv2.clients[7]
				nextAfter := srv2.nextClientID
				srv2.mu.Unlock()
				So(ok, ShouldBeTrue)
				So(restored.ownsAgent(100), ShouldBeTrue)
				So(restored.ownsSemaphore(200), ShouldBeTrue)
				So(nextAfter, ShouldEqual, uint64(8))
			})
		})
	})
}
