package geo

import "github.com/ctessum/geom"

// Part is one vertex sequence of a geometry: a ring, a line or a point set.
type Part struct {
	Points []geom.Point
	// Hole marks polygon rings wound opposite to the first ring of their polygon.
	Hole bool
	// Ring is true for polygon rings.
	Ring bool
}

// Parts decomposes g into its vertex sequences in source order.
// Unsupported or nil geometries yield no parts.
func Parts(g geom.Geom) []Part {
	switch t := g.(type) {
	case geom.Point:
		return []Part{{Points: []geom.Point{t}}}
	case *geom.Point:
		return []Part{{Points: []geom.Point{*t}}}
	case geom.MultiPoint:
		return []Part{{Points: []geom.Point(t)}}
	case geom.LineString:
		return []Part{{Points: []geom.Point(t)}}
	case geom.MultiLineString:
		parts := make([]Part, 0, len(t))
		for _, ls := range t {
			parts = append(parts, Part{Points: []geom.Point(ls)})
		}
		return parts
	case geom.Polygon:
		return polygonParts(t)
	case geom.MultiPolygon:
		var parts []Part
		for _, p := range t {
			parts = append(parts, polygonParts(p)...)
		}
		return parts
	}
	return nil
}

func polygonParts(p geom.Polygon) []Part {
	parts := make([]Part, 0, len(p))
	if len(p) == 0 {
		return parts
	}
	outer := SignedArea(p[0]) >= 0
	for i, ring := range p {
		hole := i > 0 && (SignedArea(ring) >= 0) != outer
		parts = append(parts, Part{Points: ring, Hole: hole, Ring: true})
	}
	return parts
}

// SignedArea returns the shoelace area of a ring; positive for counter-clockwise rings.
func SignedArea(ring []geom.Point) float64 {
	var a float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return a / 2
}

// Centroid returns the area-weighted centroid of the non-hole rings of g.
// Lines and points fall back to the mean of their vertices.
func Centroid(g geom.Geom) (x, y float64, ok bool) {
	var cx, cy, area float64
	var sx, sy float64
	var n int

	for _, p := range Parts(g) {
		for _, pt := range p.Points {
			sx += pt.X
			sy += pt.Y
			n++
		}
		if !p.Ring || p.Hole || len(p.Points) < 3 {
			continue
		}
		ring := p.Points
		for i := range ring {
			j := (i + 1) % len(ring)
			cross := ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
			cx += (ring[i].X + ring[j].X) * cross
			cy += (ring[i].Y + ring[j].Y) * cross
			area += cross
		}
	}

	if n == 0 {
		return 0, 0, false
	}
	if area == 0 {
		return sx / float64(n), sy / float64(n), true
	}
	return cx / (3 * area), cy / (3 * area), true
}
