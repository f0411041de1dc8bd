package geo

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// BBox is an axis-aligned bounding box in the units of its coordinate system.
type BBox struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
}

// EmptyBBox returns an inverted box that any Extend call replaces.
func EmptyBBox() BBox {
	return BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether the box contains no point.
func (b BBox) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

func (b BBox) Width() float64  { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Center returns the midpoint of the box.
func (b BBox) Center() (x, y float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

// ExtendPoint grows the box to contain (x, y).
func (b BBox) ExtendPoint(x, y float64) BBox {
	if x < b.MinX {
		b.MinX = x
	}
	if y < b.MinY {
		b.MinY = y
	}
	if x > b.MaxX {
		b.MaxX = x
	}
	if y > b.MaxY {
		b.MaxY = y
	}
	return b
}

// Extend grows the box to contain o.
func (b BBox) Extend(o BBox) BBox {
	if o.IsEmpty() {
		return b
	}
	b = b.ExtendPoint(o.MinX, o.MinY)
	return b.ExtendPoint(o.MaxX, o.MaxY)
}

// Intersects reports whether the boxes share at least one point.
func (b BBox) Intersects(o BBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether o lies entirely inside b.
func (b BBox) Contains(o BBox) bool {
	return b.MinX <= o.MinX && b.MinY <= o.MinY && b.MaxX >= o.MaxX && b.MaxY >= o.MaxY
}

// Pad expands every side by frac of the corresponding dimension.
func (b BBox) Pad(frac float64) BBox {
	dx, dy := b.Width()*frac, b.Height()*frac
	return BBox{MinX: b.MinX - dx, MinY: b.MinY - dy, MaxX: b.MaxX + dx, MaxY: b.MaxY + dy}
}

func (b BBox) String() string {
	return fmt.Sprintf("[%g,%g,%g,%g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// BBoxOf returns the bounds of g, or an empty box for empty geometries.
func BBoxOf(g geom.Geom) BBox {
	bb := EmptyBBox()
	for _, p := range Parts(g) {
		for _, pt := range p.Points {
			bb = bb.ExtendPoint(pt.X, pt.Y)
		}
	}
	return bb
}
