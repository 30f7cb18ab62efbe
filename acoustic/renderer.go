package acoustic

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// sourceColors assigns a marker color to each source type
var sourceColors = map[SourceType]string{
	TypeTraffic:      "#FF6B6B",
	TypeConstruction: "#FFA94D",
	TypeIndustrial:   "#845EF7",
	TypeResidential:  "#51CF66",
	TypeCustom:       "#339AF0",
}

// SourceColor returns the marker color for sources of type t.
func SourceColor(t SourceType) color.RGBA {
	return parseHexColor(sourceColors[t])
}

// HeatmapRenderer rasterizes a ColorGrid with source markers and a legend
type HeatmapRenderer struct {
	Grid       ColorGrid
	Sources    []NoiseSource
	CellPixels int  // Pixels per grid cell (default 8)
	Padding    int  // Padding around the heatmap
	ShowLegend bool // Draw band and source legend in the top-left corner
}

// NewHeatmapRenderer creates a renderer with default settings
func NewHeatmapRenderer(grid ColorGrid, sources []NoiseSource) *HeatmapRenderer {
	return &HeatmapRenderer{
		Grid:       grid,
		Sources:    sources,
		CellPixels: 8,
		Padding:    30,
		ShowLegend: true,
	}
}

// toImage maps a world XZ position to image pixels.
func (r *HeatmapRenderer) toImage(p Vec3) (int, int) {
	side := float64(r.Grid.Size * r.CellPixels)
	half := r.Grid.AreaSize / 2
	x := int((p.X+half)/r.Grid.AreaSize*side) + r.Padding
	y := int((p.Z+half)/r.Grid.AreaSize*side) + r.Padding
	return x, y
}

// Render creates the heatmap image
func (r *HeatmapRenderer) Render() *image.RGBA {
	if r.CellPixels <= 0 {
		r.CellPixels = 1
	}
	side := r.Grid.Size * r.CellPixels
	width := side + 2*r.Padding
	height := side + 2*r.Padding

	// Limit size
	if width > 4000 && r.Grid.Size > 0 {
		r.CellPixels = max(1, (4000-2*r.Padding)/r.Grid.Size)
		side = r.Grid.Size * r.CellPixels
		width = side + 2*r.Padding
		height = width
	}
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}

	// First pass: cells, blended over the background
	for j := 0; j < r.Grid.Size; j++ {
		for i := 0; i < r.Grid.Size; i++ {
			c := r.Grid.RGBA(i, j)
			x0 := r.Padding + i*r.CellPixels
			y0 := r.Padding + j*r.CellPixels
			for dy := 0; dy < r.CellPixels; dy++ {
				for dx := 0; dx < r.CellPixels; dx++ {
					img.Set(x0+dx, y0+dy, blendColors(img.RGBAAt(x0+dx, y0+dy), c))
				}
			}
		}
	}

	// Second pass: source markers. Directional sources are triangles.
	for _, src := range r.Sources {
		ix, iy := r.toImage(src.Position)
		c := SourceColor(src.Type)
		if !src.IsActive {
			c = color.RGBA{128, 128, 128, 255}
		}
		if src.IsDirectional() {
			drawTriangle(img, ix, iy, 14, c)
		} else {
			drawCircle(img, ix, iy, 6, c)
		}
		drawSquare(img, ix, iy, 2, color.RGBA{0, 0, 0, 255})
	}

	if r.ShowLegend {
		r.drawLegend(img)
	}
	return img
}

// Encode writes the rendered heatmap as PNG
func (r *HeatmapRenderer) Encode(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG saves the heatmap image to a file
func (r *HeatmapRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := r.Encode(f); err != nil {
		return fmt.Errorf("encoding heatmap png: %w", err)
	}
	return nil
}

// drawLegend lists the four bands followed by every source name
func (r *HeatmapRenderer) drawLegend(img *image.RGBA) {
	y := 15
	bands := []Band{BandExceeded, BandElevated, BandModerate, BandQuiet}
	for _, b := range bands {
		cr, cg, cb := bandColor(b, 100)
		swatch := color.RGBA{unit8(cr), unit8(cg), unit8(cb), 255}
		fillRect(img, 10, y-6, 12, 12, swatch)
		drawText(img, 28, y+4, b.String(), color.RGBA{0, 0, 0, 255})
		y += 18
	}

	for _, src := range r.Sources {
		fillRect(img, 10, y-6, 12, 12, SourceColor(src.Type))
		drawText(img, 28, y+4, src.Name, color.RGBA{0, 0, 0, 255})
		y += 18
	}
}

// blendColors performs alpha blending of a non-premultiplied color over an
// opaque background
func blendColors(bg color.RGBA, fg color.NRGBA) color.RGBA {
	alpha := float64(fg.A) / 255.0
	invAlpha := 1.0 - alpha

	return color.RGBA{
		R: uint8(float64(fg.R)*alpha + float64(bg.R)*invAlpha),
		G: uint8(float64(fg.G)*alpha + float64(bg.G)*invAlpha),
		B: uint8(float64(fg.B)*alpha + float64(bg.B)*invAlpha),
		A: 255,
	}
}

func fillRect(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			setClipped(img, x+dx, y+dy, c)
		}
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	b := img.Bounds()
	if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
		img.Set(x, y, c)
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setClipped(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			setClipped(img, cx+dx, cy+dy, c)
		}
	}
}

// drawTriangle draws a filled triangle pointing up
func drawTriangle(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		progress := float64(dy+half) / float64(size)
		width := int(progress * float64(half))
		for dx := -width; dx <= width; dx++ {
			setClipped(img, cx+dx, cy+dy, c)
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) color.RGBA {
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return defaultColor
	}
	return color.RGBA{r, g, b, 255}
}
