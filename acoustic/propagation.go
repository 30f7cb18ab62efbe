package acoustic

import (
	"math"

	"github.com/paulmach/orb"
)

// LevelAt returns the noise level contributed by src at point p.
//
// The level is zero for inactive sources and beyond the source radius.
// Inside the radius it follows intensity / (1 + d²·attenuation), scaled by
// (1 - materialAbsorption), and by coneAttenuation when p lies outside a
// directional source's cone.
func LevelAt(src NoiseSource, p Vec3) float64 {
	offset := p.Sub(src.Position)
	distance := offset.Length()
	if !src.IsActive || !(distance <= src.Radius) {
		return 0
	}

	base := src.Intensity / (1 + distance*distance*src.Attenuation)
	level := base * (1 - src.MaterialAbsorption)

	// At distance 0 there is no direction to compare against, and a zero
	// direction vector disables the cone test.
	if src.Cone != nil && distance > 0 {
		if angle, ok := AngleBetween(src.Cone.Direction, offset); ok && angle > src.Cone.ConeAngle/2 {
			level *= src.Cone.ConeAttenuation
		}
	}

	if !isFinite(level) || level < 0 {
		return 0
	}
	return level
}

// TotalLevelAt sums the contributions of all sources at p.
func TotalLevelAt(sources []NoiseSource, p Vec3) float64 {
	total := 0.0
	for _, src := range sources {
		total += LevelAt(src, p)
	}
	return total
}

// SourceBound returns the square on the XZ sampling plane that encloses the
// source's effect radius. Points outside it receive no contribution.
func SourceBound(src NoiseSource) orb.Bound {
	r := src.Radius
	return orb.Bound{
		Min: orb.Point{src.Position.X - r, src.Position.Z - r},
		Max: orb.Point{src.Position.X + r, src.Position.Z + r},
	}
}

// boundedSource pairs an active source with its precomputed planar bound.
type boundedSource struct {
	src   NoiseSource
	bound orb.Bound
}

// prepareSources drops inactive sources and precomputes bounds for the
// early-reject test used by the sampling sweeps.
func prepareSources(sources []NoiseSource) []boundedSource {
	out := make([]boundedSource, 0, len(sources))
	for _, s := range sources {
		if !s.IsActive || s.Radius <= 0 {
			continue
		}
		out = append(out, boundedSource{src: s, bound: SourceBound(s)})
	}
	return out
}

// levelAtBounded sums contributions at p, skipping sources whose bound does
// not contain the point's planar projection.
func levelAtBounded(sources []boundedSource, p Vec3) float64 {
	pt := orb.Point{p.X, p.Z}
	total := 0.0
	for i := range sources {
		if !sources[i].bound.Contains(pt) {
			continue
		}
		total += LevelAt(sources[i].src, p)
	}
	if math.IsNaN(total) {
		return 0
	}
	return total
}
