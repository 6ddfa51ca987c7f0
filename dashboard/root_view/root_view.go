// Package root_view assembles the dashboard's index page: the container
// for every view component, the channel wiring between them, and the
// websocket bootstrap script the browser runs to receive live updates.
package root_view

import (
	"context"
	"html/template"
	"log"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"gridworld/dashboard/cell_views"
	"gridworld/dashboard/fastview"
)

// RootView is the dashboard's main page: the views it contains and the
// fanned-in, batched stream of DOM patches they produce.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// New builds the root view and its child views over a stream of
// simulator snapshots.
func New(
	ctx context.Context,
	snapshots <-chan cell_views.Snapshot,
) *RootView {
	views, err := fastview.NewViewBuilder[cell_views.Snapshot, [][]cell_views.Cell]().
		WithContext(ctx).
		WithModel(snapshots, cell_views.Convert).
		WithView(func(done <-chan struct{}, cells <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewHeatmap(done, cells)
		}).
		WithView(func(done <-chan struct{}, cells <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewScentSurface(done, cells)
		}).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	return &RootView{
		views:   views,
		updates: fanIn(ctx.Done(), views),
	}
}

// Updates returns the aggregated, rate-limited stream of DOM patches for
// every view this root view contains.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the page template: the shared arithmetic func-map every
// child view's template depends on, the websocket bootstrap script, and
// each child view's markup nested in registration order.
func (rv *RootView) Parse(parent *template.Template) (name string, err error) {
	rt := parent.Funcs(template.FuncMap{
		"add":  func(i, j int) int { return i + j },
		"sub":  func(i, j int) int { return i - j },
		"mult": func(i, j int) int { return i * j },
		"div":  func(i, j int) int { return i / j },
		"max": func(i, j int) int {
			if i > j {
				return i
			}
			return j
		},
	})

	var viewTemplates []string
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(rt)
		if parseErr != nil {
			return "", parseErr
		}
		viewTemplates = append(viewTemplates, tname)
	}

	var bodySpec string
	for _, tname := range viewTemplates {
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<script>
				const ws = new WebSocket("ws://" + window.location.host + "/ws");
				ws.onopen = function (event) {
					console.log("dashboard socket opened");
				};
				ws.onerror = function (event) {
					console.log("dashboard socket error: ", event);
				};
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data);
					for (const update of items) {
						const ele = document.getElementById(update.EleId);
						if (!ele) { continue; }
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value);
							}
						}
					}
				};
			</script>
		</head>
		<body>
		` + bodySpec + `
		</body>
	</html>
	{{ end }}
	`
	_, err = rt.Parse(indexTemplate)
	return
}

// fanIn merges every view's update stream into one and batches it at a
// fixed rate, so redundant updates to the same element within one window
// collapse to the latest value.
func fanIn(done <-chan struct{}, views []fastview.ViewComponent) <-chan []fastview.EleUpdate {
	inputs := make([]<-chan []fastview.EleUpdate, len(views))
	for i, view := range views {
		inputs[i] = view.Updates()
	}
	return batchify(done, channerics.Merge(done, inputs...), 20*time.Millisecond)
}

func batchify(
	done <-chan struct{},
	source <-chan []fastview.EleUpdate,
	rate time.Duration,
) <-chan []fastview.EleUpdate {
	output := make(chan []fastview.EleUpdate)

	go func() {
		defer close(output)

		batch := map[string]fastview.EleUpdate{}
		last := time.Now()
		for updates := range channerics.OrDone(done, source) {
			for _, update := range updates {
				batch[update.EleId] = update
			}
			if time.Since(last) > rate && len(updates) > 0 {
				select {
				case output <- valuesOf(batch):
					batch = map[string]fastview.EleUpdate{}
					last = time.Now()
				case <-done:
					return
				}
			}
		}
	}()

	return output
}

func valuesOf[K comparable, V any](m map[K]V) (vals []V) {
	for _, v := range m {
		vals = append(vals, v)
	}
	return
}
