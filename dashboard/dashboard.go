// Package dashboard serves the scent-field/agent visualization: a single
// HTML page bootstrapped with a websocket that streams incremental DOM
// patches as the simulator advances, replacing the teacher's single-client
// RL value-function viewer with a scent heatmap and isometric
// scent-surface view over a live Simulator.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"gridworld/dashboard/cell_views"
	"gridworld/dashboard/fastview"
	"gridworld/dashboard/root_view"
	"gridworld/position"
	"gridworld/simulator"
)

// Dashboard serves the live visualization for one simulator. Every request
// to /ws gets its own fastview.Client, but all of them read the same batched
// update channel, so each batch reaches only one of the connected tabs.
type Dashboard struct {
	addr     string
	rootView *root_view.RootView
	initial  [][]cell_views.Cell
}

// New builds a dashboard over sim, visualizing the world cells within box.
// n is the simulator's configured patch size, needed to locate cells within
// their owning patches.
func New(
	ctx context.Context,
	sim *simulator.Simulator,
	box position.BoundingBox,
	n int64,
	addr string,
) *Dashboard {
	snapshots := subscribeSnapshots(ctx, sim, box, n)
	rv := root_view.New(ctx, snapshots)

	initial := cell_views.Convert(cell_views.Snapshot{
		Time:    sim.CurrentTime(),
		N:       n,
		Box:     box,
		Patches: sim.GetMap(box),
		Agents:  sim.GetAgentStates(),
	})

	return &Dashboard{
		addr:     addr,
		rootView: rv,
		initial:  initial,
	}
}

// subscribeSnapshots converts the simulator's step-commit events into
// Snapshot view-model inputs, re-querying GetMap/GetAgentStates on every
// commit since the simulator owns no channel of world deltas, only of
// timestep-advanced signals.
func subscribeSnapshots(
	ctx context.Context,
	sim *simulator.Simulator,
	box position.BoundingBox,
	n int64,
) <-chan cell_views.Snapshot {
	steps := sim.Subscribe(ctx.Done(), 1)[0]
	out := make(chan cell_views.Snapshot)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-steps:
				if !ok {
					return
				}
				snap := cell_views.Snapshot{
					Time:    ev.Time,
					N:       n,
					Box:     box,
					Patches: sim.GetMap(box),
					Agents:  sim.GetAgentStates(),
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Router builds the dashboard's http.Handler: a single index page and a
// websocket endpoint, routed with gorilla/mux instead of the teacher's bare
// net/http.HandleFunc so the routes compose with a wider API surface later.
func (d *Dashboard) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", d.serveIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", d.serveWebsocket)
	return r
}

// ListenAndServe starts the dashboard's HTTP server and blocks until it
// returns an error. Cancelling the context passed to New does not stop it.
func (d *Dashboard) ListenAndServe() error {
	if err := http.ListenAndServe(d.addr, d.Router()); err != nil {
		return fmt.Errorf("dashboard: serve: %w", err)
	}
	return nil
}

func (d *Dashboard) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, d.rootView, d.initial); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// serveWebsocket upgrades the request and runs a dedicated fastview.Client
// publishing this dashboard's batched update stream until the connection is
// lost.
func (d *Dashboard) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	client, err := fastview.NewClient(d.rootView.Updates(), w, r)
	if err != nil {
		return
	}
	if err := client.Sync(); err != nil {
		fmt.Printf("dashboard: websocket closed: %v\n", err)
	}
}

func renderTemplate(w io.Writer, vc fastview.ViewComponent, data interface{}) error {
	t := template.New("index.html")
	tname, err := vc.Parse(t)
	if err != nil {
		return err
	}
	if _, err := t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return err
	}
	return t.Execute(w, data)
}
