// Package geo holds the geographic data model: features, attribute tables,
// coordinate reference systems and bounding boxes.
package geo

import (
	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToGeoJSON converts a collection and its attributes into a GeoJSON feature collection.
// Attributes may be nil. Feature identifiers become GeoJSON ids.
func ToGeoJSON(c *Collection, attrs *AttributeTable) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, f := range c.Features {
		g := toOrb(f.Geometry)
		if g == nil {
			continue
		}

		feature := geojson.NewFeature(g)
		feature.ID = f.ID
		if attrs != nil {
			if row, ok := attrs.Row(f.ID); ok {
				for i, col := range attrs.Columns {
					feature.Properties[col] = row[i]
				}
			}
		}
		fc.Append(feature)
	}

	return fc
}

func toOrb(g geom.Geom) orb.Geometry {
	parts := Parts(g)
	if len(parts) == 0 {
		return nil
	}

	switch g.(type) {
	case geom.Point, *geom.Point:
		p := parts[0].Points[0]
		return orb.Point{p.X, p.Y}
	case geom.MultiPoint:
		mp := make(orb.MultiPoint, 0, len(parts[0].Points))
		for _, p := range parts[0].Points {
			mp = append(mp, orb.Point{p.X, p.Y})
		}
		return mp
	case geom.LineString:
		return orbLine(parts[0].Points)
	case geom.MultiLineString:
		mls := make(orb.MultiLineString, 0, len(parts))
		for _, p := range parts {
			mls = append(mls, orbLine(p.Points))
		}
		return mls
	}

	// Polygons: every outer ring opens a new polygon, holes attach to the latest one.
	var mp orb.MultiPolygon
	for _, p := range parts {
		ring := orb.Ring(orbLine(p.Points))
		if p.Hole && len(mp) > 0 {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

func orbLine(pts []geom.Point) orb.LineString {
	ls := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		ls = append(ls, orb.Point{p.X, p.Y})
	}
	return ls
}
