package acoustic

import "time"

// StatsOptions controls the coarse statistics sweep.
//
// SampleCount counts intervals, not samples: the sweep includes both edges
// of the area, so it takes (SampleCount+1)² samples spaced
// 2*AreaSize/SampleCount apart.
type StatsOptions struct {
	SampleCount int     `json:"sampleCount"` // intervals per axis, not samples
	AreaSize    float64 `json:"areaSize"`    // half-extent: samples cover [-AreaSize, AreaSize]²
	Height      float64 `json:"height"`      // Y of the sampling plane
}

// DefaultStatsOptions samples every 10 m over [-100, 100]².
func DefaultStatsOptions() StatsOptions {
	return StatsOptions{SampleCount: 20, AreaSize: 100}
}

func (o StatsOptions) normalized() StatsOptions {
	d := DefaultStatsOptions()
	if o.SampleCount <= 0 {
		o.SampleCount = d.SampleCount
	}
	if !(o.AreaSize > 0) {
		o.AreaSize = d.AreaSize
	}
	return o
}

// Summarize sweeps a coarse grid, summing all source contributions per
// sample. Samples whose level exceeds threshold are reported as affected and
// the largest level seen becomes TotalNoise.
func Summarize(sources []NoiseSource, threshold float64, opts StatsOptions) NoiseData {
	opts = opts.normalized()
	prepared := prepareSources(sources)

	data := NoiseData{
		Sources:       cloneSources(sources),
		AffectedAreas: make([]Vec3, 0),
		Threshold:     threshold,
		ComputedAt:    time.Now(),
	}

	n := opts.SampleCount
	step := 2 * opts.AreaSize / float64(n)
	for ix := 0; ix <= n; ix++ {
		x := -opts.AreaSize + float64(ix)*step
		for iz := 0; iz <= n; iz++ {
			p := Vec3{X: x, Y: opts.Height, Z: -opts.AreaSize + float64(iz)*step}
			level := levelAtBounded(prepared, p)
			if level > threshold {
				data.AffectedAreas = append(data.AffectedAreas, p)
			}
			if level > data.TotalNoise {
				data.TotalNoise = level
			}
		}
	}

	data.AffectedRegion = AffectedRegion(data.AffectedAreas, step)
	return data
}

func cloneSources(sources []NoiseSource) []NoiseSource {
	out := make([]NoiseSource, len(sources))
	for i, s := range sources {
		out[i] = s.clone()
	}
	return out
}
