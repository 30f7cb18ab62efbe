package acoustic

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// AffectedRegion outlines the affected sample points on the XZ plane.
// Each sample stands for a cell of side step, so the hull is built over the
// cell corners and a single affected sample still has area step².
func AffectedRegion(points []Vec3, step float64) RegionStats {
	if len(points) == 0 {
		return RegionStats{Hull: make([]Vec3, 0)}
	}

	half := step / 2
	corners := make([]orb.Point, 0, len(points)*4)
	for _, p := range points {
		corners = append(corners,
			orb.Point{p.X - half, p.Z - half},
			orb.Point{p.X + half, p.Z - half},
			orb.Point{p.X + half, p.Z + half},
			orb.Point{p.X - half, p.Z + half},
		)
	}

	hull := convexHull(corners)
	if len(hull) > 0 && hull[0] != hull[len(hull)-1] {
		hull = append(hull, hull[0])
	}

	height := points[0].Y
	out := RegionStats{Hull: make([]Vec3, len(hull))}
	for i, p := range hull {
		out.Hull[i] = Vec3{X: p[0], Y: height, Z: p[1]}
	}
	if len(hull) >= 4 {
		out.Area = math.Abs(planar.Area(orb.Polygon{orb.Ring(hull)}))
	}
	return out
}

// convexHull computes the convex hull of points using Andrew's monotone
// chain. The result is counter-clockwise and not closed.
func convexHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		result := make([]orb.Point, len(points))
		copy(result, points)
		return result
	}

	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	n := len(sorted)
	hull := make([]orb.Point, 0, 2*n)

	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// The last point repeats the first.
	return hull[:len(hull)-1]
}
