// Package client implements spec.md §4.5's client-side connection runtime:
// a single TCP connection to a server package listener, a background
// response-listener goroutine that dispatches server-initiated STEP frames
// to a callback and fulfills one awaited response per opcode, and the
// client state machine DISCONNECTED -> CONNECTING -> READY <->
// AWAITING_RESPONSE(opcode) -> {READY | LOST}.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"

	"gridworld/agent"
	"gridworld/protocol"
)

// State is the client connection's coarse lifecycle state. The finer
// per-opcode AWAITING_RESPONSE state lives in pending, not here, since
// several distinct opcodes may be outstanding at once.
type State int

const (
	Disconnected State = iota
	Connecting
	Ready
	Lost
)

var (
	// ErrAlreadyAwaiting is returned when a second request for an opcode
	// already awaiting a response is issued: spec.md allows multiplexing
	// concurrent awaits only across distinct opcodes, one at a time each.
	ErrAlreadyAwaiting = errors.New("client: a request for this opcode is already awaiting a response")
	ErrLostConnection  = errors.New("client: connection lost")
	ErrClosed          = errors.New("client: closed")
)

// StepCallback is invoked once per STEP broadcast with the owning client's
// agent ids and their freshly-advanced states.
type StepCallback func(status protocol.Status, ownedIDs []agent.ID, states []protocol.AgentState)

// LostConnectionCallback is invoked once, the first time the connection is
// found to be broken (malformed frame, read/write error, or explicit Close).
type LostConnectionCallback func(err error)

// pendingResponse is the value delivered to a roundTrip call awaiting one
// opcode's response.
type pendingResponse struct {
	payload []byte
	err     error
}

// Client is one connection to a gridworld server.
type Client struct {
	conn     net.Conn
	reader   *bufio.Reader
	writeMu  sync.Mutex // serializes frame writes against concurrent requests
	clientID uint64

	mu    sync.Mutex
	state State

	pendingMu sync.Mutex
	pending   map[protocol.Opcode]chan pendingResponse

	onStep     StepCallback
	onLostConn LostConnectionCallback

	done chan struct{}
}

// Options configures Dial.
type Options struct {
	// Version is the protocol version advertised in the handshake.
	Version uint32
	// ClientID is 0 to request a fresh id, or a previously-assigned id to
	// attempt reconnection.
	ClientID uint64
	// Permission is the bitmask of opcodes this connection will ever issue.
	Permission protocol.Permission
	// AgentIDs is only meaningful on a reconnection attempt.
	AgentIDs []agent.ID

	OnStep           StepCallback
	OnLostConnection LostConnectionCallback
}

// Dial connects to addr, performs the handshake, and starts the
// response-listener goroutine. The returned Client's ClientID reflects
// either the freshly-allocated or reconnected id the server assigned.
func Dial(addr string, opts Options) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:       conn,
		reader:     protocol.NewBufferedReader(conn),
		state:      Connecting,
		pending:    make(map[protocol.Opcode]chan pendingResponse),
		onStep:     opts.OnStep,
		onLostConn: opts.OnLostConnection,
		done:       make(chan struct{}),
	}

	req := protocol.HandshakeRequest{
		Version:           opts.Version,
		ClientID:          opts.ClientID,
		PermissionRequest: opts.Permission,
		AgentIDs:          opts.AgentIDs,
	}
	if err := protocol.WriteFrame(conn, protocol.Handshake, protocol.EncodeHandshakeRequest(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: write handshake: %w", err)
	}
	opcode, payload, err := protocol.ReadFrame(c.reader, false)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: read handshake response: %w", err)
	}
	if opcode != protocol.Handshake {
		conn.Close()
		return nil, fmt.Errorf("client: expected handshake response, got opcode %d", opcode)
	}
	resp, err := protocol.DecodeHandshakeResponse(payload)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: decode handshake response: %w", err)
	}
	if resp.Status != protocol.OK {
		conn.Close()
		return nil, resp.Status
	}

	c.clientID = resp.ClientID
	c.mu.Lock()
	c.state = Ready
	c.mu.Unlock()

	go c.listen()
	return c, nil
}

// ClientID returns the id the server assigned on handshake, stable across
// reconnection.
func (c *Client) ClientID() uint64 { return c.clientID }

// State returns the client's current coarse lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears down the connection. The lost-connection callback is not
// invoked for a caller-initiated Close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Lost || c.state == Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = Disconnected
	c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return c.conn.Close()
}

// listen is the background response-listener: it reads every frame off the
// wire, routes STEP broadcasts to onStep, and fulfills pending per-opcode
// awaits with anything else.
func (c *Client) listen() {
	for {
		opcode, payload, err := protocol.ReadFrame(c.reader, false)
		if err != nil {
			c.transitionLost(err)
			return
		}
		if opcode == protocol.Step {
			status, ids, states, err := protocol.DecodeStepBroadcast(payload)
			if err != nil {
				c.transitionLost(err)
				return
			}
			if c.onStep != nil {
				c.onStep(status, ids, states)
			}
			continue
		}
		c.deliver(opcode, pendingResponse{payload: payload})
	}
}

func (c *Client) deliver(opcode protocol.Opcode, resp pendingResponse) {
	c.pendingMu.Lock()
	ch, ok := c.pending[opcode]
	if ok {
		delete(c.pending, opcode)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

// transitionLost moves the client to LOST, fails every outstanding await,
// and invokes the lost-connection callback exactly once. After a
// caller-initiated Close the client stays Disconnected and no callback runs.
func (c *Client) transitionLost(err error) {
	c.mu.Lock()
	alreadyLost := c.state == Lost
	closedByCaller := c.state == Disconnected
	if !closedByCaller {
		c.state = Lost
	}
	c.mu.Unlock()

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[protocol.Opcode]chan pendingResponse)
	c.pendingMu.Unlock()
	for _, ch := range pending {
		ch <- pendingResponse{err: ErrLostConnection}
	}

	if !alreadyLost && !closedByCaller && c.onLostConn != nil {
		c.onLostConn(err)
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
