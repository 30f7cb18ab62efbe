package acoustic

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// Feature kinds written to the "kind" property.
const (
	FeatureSource   = "source"
	FeatureRadius   = "radius"
	FeatureCone     = "cone"
	FeatureAffected = "affected"
	FeatureRegion   = "region"
)

// circleSegments is the vertex count of exported radius rings before
// simplification.
const circleSegments = 64

// GeoJSONOptions controls which layers ExportGeoJSON emits.
type GeoJSONOptions struct {
	Radius    bool    // audible radius rings
	Affected  bool    // affected sample points
	Tolerance float64 // Douglas-Peucker tolerance for rings and wedges, meters; 0 keeps every vertex
}

// DefaultGeoJSONOptions exports every layer with 0.5 m simplification.
func DefaultGeoJSONOptions() GeoJSONOptions {
	return GeoJSONOptions{Radius: true, Affected: true, Tolerance: 0.5}
}

// planePoint projects a world position onto the XZ sampling plane.
func planePoint(p Vec3) orb.Point {
	return orb.Point{p.X, p.Z}
}

// ExportGeoJSON converts a snapshot into a FeatureCollection in local plane
// meters (x = X, y = Z).
func ExportGeoJSON(data NoiseData, opts GeoJSONOptions) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, src := range data.Sources {
		f := geojson.NewFeature(planePoint(src.Position))
		f.ID = src.ID
		f.Properties["kind"] = FeatureSource
		f.Properties["name"] = src.Name
		f.Properties["type"] = string(src.Type)
		f.Properties["height"] = src.Position.Y
		f.Properties["intensity"] = src.Intensity
		f.Properties["radius"] = src.Radius
		f.Properties["frequency"] = src.Frequency
		f.Properties["attenuation"] = src.Attenuation
		f.Properties["materialAbsorption"] = src.MaterialAbsorption
		f.Properties["isActive"] = src.IsActive
		f.Properties["directional"] = src.IsDirectional()
		fc.Append(f)

		if opts.Radius && src.Radius > 0 {
			ring := simplifyRing(circleRing(src.Position, src.Radius), opts.Tolerance)
			rf := geojson.NewFeature(orb.Polygon{ring})
			rf.Properties["kind"] = FeatureRadius
			rf.Properties["sourceId"] = src.ID
			fc.Append(rf)
		}

		if src.Cone != nil {
			if wedge, ok := coneRing(src); ok {
				cf := geojson.NewFeature(orb.Polygon{simplifyRing(wedge, opts.Tolerance)})
				cf.Properties["kind"] = FeatureCone
				cf.Properties["sourceId"] = src.ID
				cf.Properties["coneAngle"] = src.Cone.ConeAngle
				cf.Properties["coneAttenuation"] = src.Cone.ConeAttenuation
				fc.Append(cf)
			}
		}
	}

	if opts.Affected && len(data.AffectedAreas) > 0 {
		mp := make(orb.MultiPoint, len(data.AffectedAreas))
		for i, p := range data.AffectedAreas {
			mp[i] = planePoint(p)
		}
		af := geojson.NewFeature(mp)
		af.Properties["kind"] = FeatureAffected
		af.Properties["threshold"] = data.Threshold
		af.Properties["count"] = len(mp)
		fc.Append(af)
	}

	if len(data.AffectedRegion.Hull) >= 4 {
		ring := make(orb.Ring, len(data.AffectedRegion.Hull))
		for i, p := range data.AffectedRegion.Hull {
			ring[i] = planePoint(p)
		}
		rf := geojson.NewFeature(orb.Polygon{ring})
		rf.Properties["kind"] = FeatureRegion
		rf.Properties["area"] = data.AffectedRegion.Area
		rf.Properties["totalNoise"] = data.TotalNoise
		fc.Append(rf)
	}

	return fc
}

// circleRing approximates the audible radius as a closed ring.
func circleRing(center Vec3, radius float64) orb.Ring {
	ring := make(orb.Ring, 0, circleSegments+1)
	for k := 0; k < circleSegments; k++ {
		a := 2 * math.Pi * float64(k) / circleSegments
		ring = append(ring, orb.Point{center.X + radius*math.Cos(a), center.Z + radius*math.Sin(a)})
	}
	return append(ring, ring[0])
}

// coneRing outlines the full-level sector of a directional source on the XZ
// plane. ok is false when the cone direction is vertical.
func coneRing(src NoiseSource) (orb.Ring, bool) {
	dir := src.Cone.Direction
	if math.Hypot(dir.X, dir.Z) == 0 {
		return nil, false
	}
	heading := math.Atan2(dir.Z, dir.X)
	half := src.Cone.ConeAngle / 2 * math.Pi / 180
	const segments = 24

	apex := planePoint(src.Position)
	ring := orb.Ring{apex}
	for k := 0; k <= segments; k++ {
		a := heading - half + 2*half*float64(k)/segments
		ring = append(ring, orb.Point{apex[0] + src.Radius*math.Cos(a), apex[1] + src.Radius*math.Sin(a)})
	}
	return append(ring, apex), true
}

// simplifyRing reduces vertex count, keeping the ring closed and at least a
// triangle.
func simplifyRing(ring orb.Ring, tolerance float64) orb.Ring {
	if tolerance <= 0 {
		return ring
	}
	simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ring.Clone()).(orb.Ring)
	if !ok || len(simplified) < 4 {
		return ring
	}
	return simplified
}
