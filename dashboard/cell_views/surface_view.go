package cell_views

import (
	"fmt"
	"html/template"
	"math"
	"strings"
	"sync"

	channerics "github.com/niceyeti/channerics/channels"

	"gridworld/dashboard/fastview"
)

// ScentSurface renders the scent field as a 2d isometric projection of the
// 3d (x, y, scent) surface, the way the teacher's ValueFunction view
// projects a value function: scent takes the place of state value.
type ScentSurface struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewScentSurface(done <-chan struct{}, cells <-chan [][]Cell) *ScentSurface {
	id := "scentsurface"
	if strings.Contains(id, "-") {
		fmt.Println("WARNING: hyphenated ids interfere with html/template's `template` directive")
	}
	ss := &ScentSurface{id: template.HTMLEscapeString(id)}
	ss.updates = channerics.Convert(done, cells, ss.onUpdate)
	return ss
}

func (ss *ScentSurface) Updates() <-chan []fastview.EleUpdate {
	return ss.updates
}

var (
	surfaceWidth, surfaceHeight float64
	surfaceCellDim              float64 = 24
	surfaceXYScale              float64
	surfaceZScale               float64
	surfaceAngle                = math.Pi / 6
	setSurfaceParams            sync.Once
)

var surfaceSin, surfaceCos = math.Sin(surfaceAngle), math.Cos(surfaceAngle)

func setSurfaceViewParams(cells [][]Cell) {
	xCells := float64(len(cells))
	surfaceWidth = xCells * surfaceCellDim
	surfaceHeight = float64(len(cells[0])) * surfaceCellDim
	surfaceZScale = surfaceCellDim * 6 // scent magnitudes are small; exaggerate the relief
	surfaceXYScale = surfaceCellDim
}

// project applies an isometric projection to a (x, y, scent) point.
func project(x, y, z float64) (float64, float64) {
	sx := (x - y) * surfaceCos * surfaceXYScale
	sy := (x+y)*surfaceSin*surfaceXYScale - z*surfaceZScale
	return sx, sy
}

type scentPolygon struct {
	id             string
	ax, ay, bx, by float64
	cx, cy, dx, dy float64
}

func makeScentPolygon(id string, a, b, c, d Cell) *scentPolygon {
	sp := &scentPolygon{id: id}
	sp.ax, sp.ay = project(float64(a.X), float64(a.Y), a.Scent)
	sp.bx, sp.by = project(float64(b.X), float64(b.Y), b.Scent)
	sp.cx, sp.cy = project(float64(c.X), float64(c.Y), c.Scent)
	sp.dx, sp.dy = project(float64(d.X), float64(d.Y), d.Scent)
	return sp
}

func (sp *scentPolygon) points() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(sp.ax), int(sp.ay), int(sp.bx), int(sp.by),
		int(sp.cx), int(sp.cy), int(sp.dx), int(sp.dy))
}

func surfaceMin4(a, b, c, d float64) float64 {
	return math.Min(math.Min(a, b), math.Min(c, d))
}

func surfaceMax4(a, b, c, d float64) float64 {
	return math.Max(math.Max(a, b), math.Max(c, d))
}

func surfaceAvg4(a, b, c, d float64) float64 {
	return (a + b + c + d) / 4
}

// onUpdate returns the set of view updates needed for the surface to
// reflect the current scent field.
func (ss *ScentSurface) onUpdate(cells [][]Cell) (ops []fastview.EleUpdate) {
	setSurfaceParams.Do(func() { setSurfaceViewParams(cells) })

	minScent, maxScent := math.MaxFloat64, -math.MaxFloat64
	for _, row := range cells {
		for _, cell := range row {
			minScent = math.Min(minScent, cell.Scent)
			maxScent = math.Max(maxScent, cell.Scent)
		}
	}

	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for ri, row := range cells[:len(cells)-1] {
		for ci, cell := range row[:len(row)-1] {
			a := cells[ri+1][ci]
			b := cells[ri][ci]
			c := cells[ri][ci+1]
			d := cells[ri+1][ci+1]
			id := fmt.Sprintf("%d-%d-scent-polygon", cell.X, cell.Y)
			poly := makeScentPolygon(id, a, b, c, d)

			xmin = math.Min(xmin, surfaceMin4(poly.ax, poly.bx, poly.cx, poly.dx))
			xmax = math.Max(xmax, surfaceMax4(poly.ax, poly.bx, poly.cx, poly.dx))
			ymin = math.Min(ymin, surfaceMin4(poly.ay, poly.by, poly.cy, poly.dy))
			ymax = math.Max(ymax, surfaceMax4(poly.ay, poly.by, poly.cy, poly.dy))

			avgScent := surfaceAvg4(a.Scent, b.Scent, c.Scent, d.Scent)
			ops = append(ops, fastview.EleUpdate{
				EleId: poly.id,
				Ops: []fastview.Op{
					{Key: "points", Value: poly.points()},
					{Key: "fill", Value: scentFill(avgScent, minScent, maxScent)},
				},
			})
		}
	}

	scaler := math.Min(
		math.Min(math.Abs(surfaceWidth/(xmax-xmin)), math.Abs(surfaceHeight/(ymax-ymin))),
		1.0,
	)
	ops = append(ops, fastview.EleUpdate{
		EleId: ss.id + "-group",
		Ops: []fastview.Op{
			{Key: "transform", Value: fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin))},
		},
	})
	return
}

// Parse returns an svg of polygons plotting the scent field as a 2d
// isometric projection, following the teacher's ValueFunction.Parse layout.
func (ss *ScentSurface) Parse(t *template.Template) (name string, err error) {
	name = ss.id
	_, err = t.Parse(
		`{{ define "` + name + `" }}
		<div style="padding:40px;">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $num_x_polys := sub $x_cells 1 }}
			{{ $num_y_polys := sub $y_cells 1 }}
			{{ $cell_width := ` + fmt.Sprintf("%d", int(surfaceCellDim)) + ` }}
			{{ $cell_height := $cell_width }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_height $y_cells }}
			<svg id="` + ss.id + `" xmlns='http://www.w3.org/2000/svg'
				width="{{ mult $width 2 }}px"
				height="{{ mult $height 2 }}px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 2;">
				<g id="` + ss.id + "-group" + `" transform="translate(0 0)">
				{{ $cells := . }}
				{{ range $ri, $row := $cells }}
					{{ if lt $ri $num_x_polys }}
						{{ range $j, $unused := $row }}
							{{ $ci := sub (sub (len $row) $j) 1 }}
							{{ $cell := index $row $ci }}
							{{ if lt $ci $num_y_polys }}
								<polygon id="{{$cell.X}}-{{$cell.Y}}-scent-polygon"
									fill="white" fill-opacity="1.0" />
							{{ end }}
						{{ end }}
					{{ end }}
				{{ end }}
				</g>
			</svg>
		</div>
		{{ end }}`)
	return
}
