// Command server runs a standalone gridworld simulator behind the
// wire-protocol front end package server implements, optionally alongside
// the live visualization dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gridworld/config"
	"gridworld/dashboard"
	"gridworld/handle"
	"gridworld/persist"
	"gridworld/position"
	"gridworld/server"
	"gridworld/simulator"
)

// simulators/servers hold every simulator/server this process has started
// behind opaque handles, rather than raw pointers passed around ad hoc:
// the process itself is the first caller of the external adapter layer
// spec.md §9 describes for remote/administrative access.
var (
	simulators = handle.NewRegistry[*simulator.Simulator]()
	servers    = handle.NewRegistry[*server.Server]()
)

var (
	configPath  *string
	addr        *string
	dashAddr    *string
	loadPath    *string
	savePath    *string
	concurrency *int64
	seed        *uint64
)

func init() {
	configPath = flag.String("config", "./simulator_config.yaml", "path to the simulator_config YAML file")
	addr = flag.String("addr", ":7777", "wire-protocol listen address")
	dashAddr = flag.String("dashboard-addr", "", "dashboard listen address; empty disables the dashboard")
	loadPath = flag.String("load", "", "snapshot file to restore world state from; empty starts a fresh world")
	savePath = flag.String("save", "", "snapshot file to write world state to on shutdown; empty disables saving")
	concurrency = flag.Int64("max-concurrent-requests", 64, "max requests dispatched against the simulator at once")
	seed = flag.Uint64("seed", 1, "PRNG seed for a freshly started world (ignored when -load is set)")
	flag.Parse()
}

func buildSimulator(cfg *config.SimulatorConfig) (*simulator.Simulator, []persist.ClientRecord, uint64, error) {
	simCfg, err := config.ToSimulatorConfig(cfg)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("cmd/server: %w", err)
	}
	catalogue, err := config.ToCatalogue(cfg)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("cmd/server: %w", err)
	}

	if *loadPath == "" {
		sim, err := simulator.New(simCfg, catalogue, *seed)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("cmd/server: %w", err)
		}
		return sim, nil, 0, nil
	}

	f, err := os.Open(*loadPath)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("cmd/server: open snapshot: %w", err)
	}
	defer f.Close()
	world, err := persist.Load(f)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("cmd/server: load snapshot: %w", err)
	}
	sim, err := simulator.RestoreFrom(simCfg, world, catalogue)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("cmd/server: restore snapshot: %w", err)
	}
	return sim, world.ServerClients, world.ServerNextClientID, nil
}

func saveSnapshot(sim *simulator.Simulator, srv *server.Server, cfg *config.SimulatorConfig) error {
	tags, err := config.ToItemTypeTags(cfg)
	if err != nil {
		return fmt.Errorf("cmd/server: %w", err)
	}
	world := sim.Snapshot(tags)
	clients, nextID := srv.SnapshotClients()
	world.ServerClients = clients
	world.ServerNextClientID = nextID

	f, err := os.Create(*savePath)
	if err != nil {
		return fmt.Errorf("cmd/server: create snapshot: %w", err)
	}
	defer f.Close()
	if err := persist.Save(f, world); err != nil {
		return fmt.Errorf("cmd/server: save snapshot: %w", err)
	}
	return nil
}

func runApp() error {
	cfg, err := config.FromYAML(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sim, clients, nextClientID, err := buildSimulator(cfg)
	if err != nil {
		return err
	}
	simHandle := simulators.Register(sim)
	defer simulators.Release(simHandle)

	srv := server.New(sim, *concurrency)
	if clients != nil {
		srv.RestoreClients(clients, nextClientID)
	}
	srvHandle := servers.Register(srv)
	defer servers.Release(srvHandle)

	if *dashAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		// Center the viewed region on the origin, two patches wide in every
		// direction; spec.md leaves the dashboard's default viewport
		// unspecified.
		span := cfg.PatchSize * 2
		box := position.BoundingBox{
			BottomLeft: position.Position{X: -span, Y: -span},
			TopRight:   position.Position{X: span, Y: span},
		}
		dash := dashboard.New(ctx, sim, box, cfg.PatchSize, *dashAddr)
		go func() {
			if err := dash.ListenAndServe(); err != nil {
				log.Printf("cmd/server: dashboard: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("cmd/server: shutting down")
		liveSim, ok := simulators.Resolve(simHandle)
		if !ok {
			return
		}
		liveSrv, ok := servers.Resolve(srvHandle)
		if !ok {
			return
		}
		if *savePath != "" {
			if err := saveSnapshot(liveSim, liveSrv, cfg); err != nil {
				log.Printf("cmd/server: save on shutdown: %v", err)
			}
		}
		liveSrv.Stop()
	}()

	log.Printf("cmd/server: listening on %s", *addr)
	return srv.Serve(*addr)
}

func main() {
	if err := runApp(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
