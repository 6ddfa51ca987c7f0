package cell_views

import (
	"fmt"
	"html/template"
	"strings"

	channerics "github.com/niceyeti/channerics/channels"

	"gridworld/dashboard/fastview"
)

// Heatmap renders the scent grid as a flat svg of colored rects, one per
// world cell, with an arrow glyph overlaid on occupied agent cells.
type Heatmap struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewHeatmap(done <-chan struct{}, cells <-chan [][]Cell) *Heatmap {
	id := "heatmap"
	if strings.Contains(id, "-") {
		fmt.Println("WARNING: hyphenated ids interfere with html/template's `template` directive")
	}
	hm := &Heatmap{id: template.HTMLEscapeString(id)}
	hm.updates = channerics.Convert(done, cells, hm.onUpdate)
	return hm
}

func (hm *Heatmap) Updates() <-chan []fastview.EleUpdate {
	return hm.updates
}

func (hm *Heatmap) onUpdate(cells [][]Cell) (updates []fastview.EleUpdate) {
	for _, row := range cells {
		for _, cell := range row {
			rectID := fmt.Sprintf("%d-%d-rect", cell.X, cell.Y)
			updates = append(updates, fastview.EleUpdate{
				EleId: rectID,
				Ops: []fastview.Op{
					{Key: "fill", Value: cell.Fill},
				},
			})

			glyphID := fmt.Sprintf("%d-%d-glyph", cell.X, cell.Y)
			if !cell.HasAgent {
				updates = append(updates, fastview.EleUpdate{
					EleId: glyphID,
					Ops:   []fastview.Op{{Key: "opacity", Value: "0"}},
				})
				continue
			}
			updates = append(updates, fastview.EleUpdate{
				EleId: glyphID,
				Ops: []fastview.Op{
					{Key: "opacity", Value: "1"},
					{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.AgentRotation)},
				},
			})
		}
	}
	return
}

// Parse defines the heatmap's svg grid template: one rect plus one glyph
// text element per cell, addressable by the ids onUpdate patches.
func (hm *Heatmap) Parse(t *template.Template) (name string, err error) {
	name = hm.id
	const cellDim = 24
	_, err = t.Parse(
		`{{ define "` + name + `" }}
		<svg id="` + hm.id + `" xmlns='http://www.w3.org/2000/svg'
			style="shape-rendering: crispEdges;">
			{{ $cell_dim := ` + fmt.Sprintf("%d", cellDim) + ` }}
			{{ range $xi, $col := . }}
				{{ range $yi, $cell := $col }}
					<g transform="translate({{ mult $cell.X $cell_dim }} {{ mult $cell.Y $cell_dim }})">
						<rect id="{{$cell.X}}-{{$cell.Y}}-rect"
							width="{{ $cell_dim }}" height="{{ $cell_dim }}"
							fill="{{ $cell.Fill }}" stroke="lightgrey" />
						<text id="{{$cell.X}}-{{$cell.Y}}-glyph"
							x="{{ div $cell_dim 2 }}" y="{{ div $cell_dim 2 }}"
							text-anchor="middle" opacity="0">&#8593;</text>
					</g>
				{{ end }}
			{{ end }}
		</svg>
		{{ end }}`)
	return
}
