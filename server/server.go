// Package server implements spec.md §4.5's wire-protocol front end: an
// asynchronous TCP server accepting one connection per client, translating
// framed protocol.Opcode requests into calls against a shared
// simulator.Simulator, and broadcasting STEP events to every connection
// still attached once a turn commits.
//
// Grounded on the teacher's server.go connection lifecycle (accept ->
// per-connection goroutine -> serialized writes -> teardown), translated
// from one websocket endpoint pushing SVG deltas to N raw TCP connections
// dispatching RPC-shaped requests against a worker pool.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gridworld/observation"
	"gridworld/position"
	"gridworld/protocol"
	"gridworld/simulator"
)

// Server owns the set of connected/orphaned clients for one simulator and
// the TCP listener relaying requests to it.
type Server struct {
	sim *simulator.Simulator

	// defaultSpawn/defaultFacing place a freshly ADD_AGENT'd agent; spec.md
	// is silent on initial placement (an Open Question decision), so every
	// new agent starts at the origin facing North until a caller relocates
	// it with MOVE.
	defaultSpawn  position.Position
	defaultFacing observation.Direction

	mu           sync.Mutex // guards clients and nextClientID
	clients      map[uint64]*clientRecord
	nextClientID uint64

	// sem bounds how many requests are dispatched against the simulator
	// concurrently across all connections, independent of connection count.
	sem *semaphore.Weighted

	listener net.Listener
	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc
}

// New constructs a Server over sim. maxConcurrentRequests bounds the number
// of in-flight opcode dispatches across every connection at once.
func New(sim *simulator.Simulator, maxConcurrentRequests int64) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	return &Server{
		sim:      sim,
		clients:  make(map[uint64]*clientRecord),
		sem:      semaphore.NewWeighted(maxConcurrentRequests),
		group:    group,
		groupCtx: groupCtx,
		cancel:   cancel,
	}
}

// Serve listens on addr and blocks until Stop is called or an
// unrecoverable listener error occurs.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.group.Go(s.acceptLoop)
	s.group.Go(s.broadcastLoop)
	return s.group.Wait()
}

// Stop closes the listener and every live connection, then waits for the
// accept/broadcast/connection goroutines to unwind.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		if conn := c.getConn(); conn != nil {
			conns = append(conns, conn)
		}
	}
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	return s.group.Wait()
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.groupCtx.Done():
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		s.group.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
}

// handleConn runs one connection's state machine: NEW -> HANDSHAKE ->
// CONNECTED <-> PROCESSING, until the connection is lost or closed.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := protocol.NewBufferedReader(conn)

	record, err := s.handshake(conn, reader)
	if err != nil {
		log.Printf("server: handshake from %s: %v", conn.RemoteAddr(), err)
		return
	}
	defer s.orphan(record, conn)

	for {
		opcode, payload, err := protocol.ReadFrame(reader, true)
		if err != nil {
			return // connection lost; owned agents/semaphores are orphaned, not removed
		}

		if err := s.sem.Acquire(s.groupCtx, 1); err != nil {
			return
		}
		respPayload, respOpcode, fatal := s.dispatch(record, opcode, payload)
		s.sem.Release(1)

		if respPayload != nil {
			if err := s.writeFrame(record, respOpcode, respPayload); err != nil {
				return
			}
		}
		if fatal {
			return
		}
	}
}

// orphan detaches conn from record without removing its owned agents or
// semaphores: spec.md §4.5's failure semantics say a broken socket orphans
// the connection's agents, leaving them "eligible for reconnection."
func (s *Server) orphan(record *clientRecord, conn net.Conn) {
	record.mu.Lock()
	if record.conn == conn {
		record.conn = nil
	}
	record.mu.Unlock()
}

// writeFrame serializes conn access behind record's send mutex: both this
// connection's own request loop and the server's broadcast goroutine write
// frames to the same socket.
func (s *Server) writeFrame(record *clientRecord, opcode protocol.Opcode, payload []byte) error {
	record.sendMu.Lock()
	defer record.sendMu.Unlock()
	conn := record.getConn()
	if conn == nil {
		return fmt.Errorf("server: client %d has no live connection", record.id)
	}
	return protocol.WriteFrame(conn, opcode, payload)
}

// RemoveClient implements spec.md §4.5's remove_client: cascading removal
// of every agent and semaphore the client owns, then closing its
// connection if one is still live. Exposed as a Go API rather than a wire
// opcode since spec.md's closed fifteen-opcode table (§6) never lists it;
// the prose introducing it in §4.5 reads as an administrative operation a
// deployment's control plane issues, not a per-turn client request.
func (s *Server) RemoveClient(id uint64) error {
	s.mu.Lock()
	record, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("server: unknown client %d", id)
	}

	for _, aid := range record.agentIDs() {
		s.sim.RemoveAgent(aid)
	}
	for _, sid := range record.semaphoreIDs() {
		s.sim.RemoveSemaphore(sid)
	}
	if conn := record.getConn(); conn != nil {
		conn.Close()
	}
	return nil
}
