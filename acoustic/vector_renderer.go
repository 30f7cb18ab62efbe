package acoustic

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorRenderer renders the heatmap and sources as vector graphics. One
// canvas unit is one meter on the XZ plane.
type VectorRenderer struct {
	Grid        ColorGrid
	Sources     []NoiseSource
	Padding     float64           // Padding in world units
	Resolution  canvas.Resolution // Resolution for PNG output
	GridSpacing float64           // Grid line spacing in meters; 0 disables
	ShowRadius  bool              // Outline each source's audible radius
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(grid ColorGrid, sources []NoiseSource) *VectorRenderer {
	return &VectorRenderer{
		Grid:        grid,
		Sources:     sources,
		Padding:     10,
		Resolution:  canvas.DPMM(4),
		GridSpacing: 25,
		ShowRadius:  true,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() float64 {
	return r.Grid.AreaSize + 2*r.Padding
}

// RenderToSVG writes the heatmap as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	side := r.size()
	svgRenderer := svg.New(w, side, side, nil)
	r.renderToCanvas(svgRenderer, side)
	return svgRenderer.Close()
}

// RenderToPNG writes the heatmap as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	side := r.size()
	rast := rasterizer.New(side, side, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, side)
	return png.Encode(w, rast)
}

// toCanvas maps world XZ to canvas coordinates.
func (r *VectorRenderer) toCanvas(x, z float64) (float64, float64) {
	half := r.Grid.AreaSize / 2
	return x + half + r.Padding, z + half + r.Padding
}

// renderToCanvas draws cells, grid lines and sources (shared logic for SVG and PNG)
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, side float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(side, side), bgStyle, canvas.Identity)

	// Cells
	if r.Grid.Size > 0 {
		step := r.Grid.AreaSize / float64(r.Grid.Size)
		cellStyle := canvas.DefaultStyle
		cellStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		for j := 0; j < r.Grid.Size; j++ {
			for i := 0; i < r.Grid.Size; i++ {
				cellStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Grid.RGBA(i, j))}
				x, y := r.toCanvas(-r.Grid.AreaSize/2+float64(i)*step, -r.Grid.AreaSize/2+float64(j)*step)
				renderer.RenderPath(canvas.Rectangle(step, step).Translate(x, y), cellStyle, canvas.Identity)
			}
		}
	}

	// Grid lines
	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.2
		gridStyle.Dashes = []float64{1.0, 1.0}

		half := r.Grid.AreaSize / 2
		for v := math.Ceil(-half/r.GridSpacing) * r.GridSpacing; v <= half; v += r.GridSpacing {
			vertical := &canvas.Path{}
			x1, y1 := r.toCanvas(v, -half)
			x2, y2 := r.toCanvas(v, half)
			vertical.MoveTo(x1, y1)
			vertical.LineTo(x2, y2)
			renderer.RenderPath(vertical, gridStyle, canvas.Identity)

			horizontal := &canvas.Path{}
			x1, y1 = r.toCanvas(-half, v)
			x2, y2 = r.toCanvas(half, v)
			horizontal.MoveTo(x1, y1)
			horizontal.LineTo(x2, y2)
			renderer.RenderPath(horizontal, gridStyle, canvas.Identity)
		}
	}

	for _, src := range r.Sources {
		r.renderSource(renderer, src)
	}
}

// renderSource draws the radius ring, the cone wedge of directional sources
// and the marker.
func (r *VectorRenderer) renderSource(renderer canvasRenderer, src NoiseSource) {
	cx, cy := r.toCanvas(src.Position.X, src.Position.Z)
	srcColor := SourceColor(src.Type)
	if !src.IsActive {
		srcColor = color.RGBA{128, 128, 128, 255}
	}

	if r.ShowRadius && src.Radius > 0 {
		ringStyle := canvas.DefaultStyle
		ringStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		ringStyle.Stroke = canvas.Paint{Color: srcColor}
		ringStyle.StrokeWidth = 0.3
		ringStyle.Dashes = []float64{2.0, 1.0}
		renderer.RenderPath(canvas.Circle(src.Radius).Translate(cx, cy), ringStyle, canvas.Identity)
	}

	if src.Cone != nil {
		if wedge := coneWedge(src, cx, cy); wedge != nil {
			wedgeStyle := canvas.DefaultStyle
			wedgeStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(color.NRGBA{srcColor.R, srcColor.G, srcColor.B, 60})}
			wedgeStyle.Stroke = canvas.Paint{Color: srcColor}
			wedgeStyle.StrokeWidth = 0.3
			renderer.RenderPath(wedge, wedgeStyle, canvas.Identity)
		}
	}

	markerStyle := canvas.DefaultStyle
	markerStyle.Fill = canvas.Paint{Color: srcColor}
	markerStyle.Stroke = canvas.Paint{Color: canvas.Black}
	markerStyle.StrokeWidth = 0.4
	renderer.RenderPath(canvas.Circle(2.0).Translate(cx, cy), markerStyle, canvas.Identity)
}

// coneWedge approximates the full-level sector of a directional source as a
// polygon on the XZ plane. It returns nil when the direction has no XZ
// component.
func coneWedge(src NoiseSource, cx, cy float64) *canvas.Path {
	dir := src.Cone.Direction
	if math.Hypot(dir.X, dir.Z) == 0 {
		return nil
	}
	heading := math.Atan2(dir.Z, dir.X)
	half := src.Cone.ConeAngle / 2 * math.Pi / 180
	const segments = 24

	p := &canvas.Path{}
	p.MoveTo(cx, cy)
	for k := 0; k <= segments; k++ {
		a := heading - half + 2*half*float64(k)/segments
		p.LineTo(cx+src.Radius*math.Cos(a), cy+src.Radius*math.Sin(a))
	}
	p.Close()
	return p
}
