package acoustic

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Band is the display category of a heatmap cell relative to the threshold.
type Band uint8

const (
	BandQuiet    Band = iota // level <= 0.4T, blue
	BandModerate             // 0.4T < level <= 0.7T, green
	BandElevated             // 0.7T < level <= T, yellow
	BandExceeded             // level > T, red
)

func (b Band) String() string {
	switch b {
	case BandQuiet:
		return "quiet"
	case BandModerate:
		return "moderate"
	case BandElevated:
		return "elevated"
	case BandExceeded:
		return "exceeded"
	}
	return "unknown"
}

// MarshalText encodes the band by name so JSON carries readable labels.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Band) UnmarshalText(text []byte) error {
	switch string(text) {
	case "quiet":
		*b = BandQuiet
	case "moderate":
		*b = BandModerate
	case "elevated":
		*b = BandElevated
	case "exceeded":
		*b = BandExceeded
	default:
		return fmt.Errorf("unknown band %q", text)
	}
	return nil
}

// Classify buckets level into a band relative to threshold t.
func Classify(level, t float64) Band {
	switch {
	case level > t:
		return BandExceeded
	case level > t*0.7:
		return BandElevated
	case level > t*0.4:
		return BandModerate
	default:
		return BandQuiet
	}
}

// HeatmapOptions controls the heatmap sampling grid.
type HeatmapOptions struct {
	GridSize int     `json:"gridSize"` // cells per side
	AreaSize float64 `json:"areaSize"` // side of the square, centered on the origin
	Height   float64 `json:"height"`   // Y of the sampling plane
	Opacity  float64 `json:"opacity"`  // alpha applied to every cell
}

// DefaultHeatmapOptions returns a 50×50 grid over a 200 m square.
func DefaultHeatmapOptions() HeatmapOptions {
	return HeatmapOptions{
		GridSize: 50,
		AreaSize: 200,
		Opacity:  0.7,
	}
}

func (o HeatmapOptions) normalized() HeatmapOptions {
	d := DefaultHeatmapOptions()
	if o.GridSize <= 0 {
		o.GridSize = d.GridSize
	}
	if !(o.AreaSize > 0) {
		o.AreaSize = d.AreaSize
	}
	if !(o.Opacity > 0) {
		o.Opacity = d.Opacity
	}
	o.Opacity = clamp(o.Opacity, 0, 1)
	return o
}

// ColorGrid is the discretized heatmap. Cell (i, j) covers column i along X
// and row j along Z; data is stored row-major, index j*Size+i.
type ColorGrid struct {
	Size      int       `json:"size"`
	AreaSize  float64   `json:"areaSize"`
	Threshold float64   `json:"threshold"`
	Levels    []float64 `json:"levels"`
	Bands     []Band    `json:"bands"`
	Pixels    []float32 `json:"pixels"` // flat RGBA in [0,1]
}

// CellCenter returns the world position sampled for cell (i, j).
func (g ColorGrid) CellCenter(i, j int, height float64) Vec3 {
	return cellCenter(i, j, g.Size, g.AreaSize, height)
}

func cellCenter(i, j, n int, area, height float64) Vec3 {
	step := area / float64(n)
	return Vec3{
		X: -area/2 + (float64(i)+0.5)*step,
		Y: height,
		Z: -area/2 + (float64(j)+0.5)*step,
	}
}

// BuildGrid samples the summed level at the centre of every cell and maps
// each cell to a color band. It is a pure function of its inputs.
func BuildGrid(sources []NoiseSource, threshold float64, opts HeatmapOptions) ColorGrid {
	opts = opts.normalized()
	n := opts.GridSize
	prepared := prepareSources(sources)

	g := ColorGrid{
		Size:      n,
		AreaSize:  opts.AreaSize,
		Threshold: threshold,
		Levels:    make([]float64, n*n),
		Bands:     make([]Band, n*n),
		Pixels:    make([]float32, 4*n*n),
	}

	alpha := float32(opts.Opacity)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			level := levelAtBounded(prepared, cellCenter(i, j, n, opts.AreaSize, opts.Height))
			idx := j*n + i
			band := Classify(level, threshold)
			g.Levels[idx] = level
			g.Bands[idx] = band

			r, gr, b := bandColor(band, level)
			px := g.Pixels[idx*4 : idx*4+4]
			px[0], px[1], px[2], px[3] = r, gr, b, alpha
		}
	}
	return g
}

func bandColor(b Band, level float64) (r, g, bl float32) {
	switch b {
	case BandExceeded:
		return float32(math.Min(1, level/100)), 0, 0
	case BandElevated:
		return 1, 1, 0
	case BandModerate:
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}

// RGBA returns the color of cell (i, j).
func (g ColorGrid) RGBA(i, j int) color.NRGBA {
	idx := (j*g.Size + i) * 4
	return color.NRGBA{
		R: unit8(g.Pixels[idx]),
		G: unit8(g.Pixels[idx+1]),
		B: unit8(g.Pixels[idx+2]),
		A: unit8(g.Pixels[idx+3]),
	}
}

// Image converts the grid to an image with one pixel per cell. Row 0 of the
// image is the most negative Z.
func (g ColorGrid) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Size, g.Size))
	for j := 0; j < g.Size; j++ {
		for i := 0; i < g.Size; i++ {
			img.SetNRGBA(i, j, g.RGBA(i, j))
		}
	}
	return img
}

// BandCounts returns the number of cells in each band.
func (g ColorGrid) BandCounts() map[Band]int {
	counts := make(map[Band]int, 4)
	for _, b := range g.Bands {
		counts[b]++
	}
	return counts
}

func unit8(f float32) uint8 {
	return uint8(math.Round(clamp(float64(f), 0, 1) * 255))
}
