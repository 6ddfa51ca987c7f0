// Command client is an interactive line-oriented client for a running
// gridworld server: it dials in, claims one agent, and reads movement
// commands from stdin until the connection is closed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gridworld/agent"
	"gridworld/client"
	"gridworld/protocol"
)

var (
	addr       *string
	clientID   *uint64
	permission *uint64
)

func init() {
	addr = flag.String("addr", "127.0.0.1:7777", "server address to dial")
	clientID = flag.Uint64("client-id", 0, "0 requests a fresh client id; nonzero attempts reconnection")
	permission = flag.Uint64("permission", uint64(protocol.PermAll), "permission bitmask to request")
	flag.Parse()
}

func onStep(status protocol.Status, ids []agent.ID, states []protocol.AgentState) {
	if status != protocol.OK {
		fmt.Printf("step broadcast: %v\n", status)
		return
	}
	for _, st := range states {
		fmt.Printf("agent %d now at (%d,%d) facing %v\n", st.ID, st.Position.X, st.Position.Y, st.Facing)
	}
}

func onLostConnection(err error) {
	fmt.Printf("connection lost: %v\n", err)
	os.Exit(1)
}

var directions = map[string]protocol.WireDirection{
	"up": protocol.Up, "down": protocol.Down, "left": protocol.Left, "right": protocol.Right,
}

var turns = map[string]protocol.WireTurn{
	"reverse": protocol.Reverse, "left": protocol.TurnLeft, "right": protocol.TurnRight, "none": protocol.NoChange,
}

func runCommand(c *client.Client, id agent.ID, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "move":
		if len(fields) < 2 {
			return fmt.Errorf("usage: move <up|down|left|right> [steps]")
		}
		dir, ok := directions[fields[1]]
		if !ok {
			return fmt.Errorf("unknown direction %q", fields[1])
		}
		steps := uint32(1)
		if len(fields) >= 3 {
			n, err := strconv.ParseUint(fields[2], 10, 32)
			if err != nil {
				return err
			}
			steps = uint32(n)
		}
		return c.Move(id, dir, steps)
	case "turn":
		if len(fields) < 2 {
			return fmt.Errorf("usage: turn <reverse|left|right>")
		}
		t, ok := turns[fields[1]]
		if !ok {
			return fmt.Errorf("unknown turn %q", fields[1])
		}
		return c.Turn(id, t)
	case "noop":
		return c.DoNothing(id)
	case "quit", "exit":
		return c.Close()
	default:
		return fmt.Errorf("unknown command %q (try move, turn, noop, quit)", fields[0])
	}
}

func runApp() error {
	c, err := client.Dial(*addr, client.Options{
		Version:          1,
		ClientID:         *clientID,
		Permission:       protocol.Permission(*permission),
		OnStep:           onStep,
		OnLostConnection: onLostConnection,
	})
	if err != nil {
		return fmt.Errorf("cmd/client: %w", err)
	}
	defer c.Close()
	fmt.Printf("connected as client %d\n", c.ClientID())

	ids, err := c.GetAgentIDs()
	if err != nil {
		return fmt.Errorf("cmd/client: %w", err)
	}
	var id agent.ID
	if len(ids) > 0 {
		id = ids[0]
		fmt.Printf("resuming owned agent %d\n", id)
	} else {
		state, err := c.AddAgent()
		if err != nil {
			return fmt.Errorf("cmd/client: %w", err)
		}
		id = state.ID
		fmt.Printf("added agent %d at (%d,%d)\n", id, state.Position.X, state.Position.Y)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "quit" || line == "exit" {
			break
		}
		if err := runCommand(c, id, line); err != nil {
			fmt.Println(err)
		}
	}
	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatal(err)
	}
}
