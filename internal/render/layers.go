package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/flatten"
	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/projection"

	"github.com/rs/zerolog/log"
)

// Layer is one drawing instruction of a figure.
type Layer interface {
	// Extent returns the area covered by the layer in crs, or an empty box.
	Extent(crs *geo.CRS) geo.BBox
	Draw(s Surface, v *Viewport) error
}

func checkCRS(t *flatten.Table, v *Viewport) error {
	if t.CRS != nil && v.CRS != nil && !t.CRS.Equal(v.CRS) {
		return fmt.Errorf("layer in %s cannot be drawn on a %s figure", t.CRS, v.CRS)
	}
	return nil
}

// visibleIDs returns the features of index inside the viewport, or nil when
// no index is set.
func visibleIDs(index *geo.Collection, v *Viewport) map[string]bool {
	if index == nil {
		return nil
	}
	ids := make(map[string]bool)
	for _, f := range index.Search(v.Extent) {
		ids[f.ID] = true
	}
	return ids
}

// featureParts splits the parts of t into runs sharing a feature ID.
func featureParts(t *flatten.Table) [][]flatten.Part {
	var out [][]flatten.Part
	for _, g := range t.Parts() {
		if n := len(out); n > 0 && out[n-1][0].ID == g.ID {
			out[n-1] = append(out[n-1], g)
			continue
		}
		out = append(out, []flatten.Part{g})
	}
	return out
}

func pixels(t *flatten.Table, g flatten.Part, v *Viewport) []Point {
	pts := make([]Point, 0, g.End-g.Start)
	for _, r := range t.Rows[g.Start:g.End] {
		pts = append(pts, v.ToPixel(r.X, r.Y))
	}
	return pts
}

// fillColor resolves a constant color or, with a column, a color scale.
type fillColor struct {
	Color  color.Color
	Column string
	// Domain fixes the scale range as [min, max].
	Domain []float64
}

func (f fillColor) resolve(t *flatten.Table, v *Viewport) (func(row int) color.Color, error) {
	if f.Column == "" {
		c := f.Color
		if c == nil {
			c = v.Theme.NA
		}
		return func(int) color.Color { return c }, nil
	}

	scale, err := NewColorScale(t, f.Column, v.Theme.Low, v.Theme.High, v.Theme.NA, f.Domain)
	if err != nil {
		return nil, err
	}
	ci := t.ColumnIndex(f.Column)
	return func(row int) color.Color {
		val, ok := t.Float(row, ci)
		if !ok {
			return scale.NA
		}
		return scale.At(val)
	}, nil
}

// FillLayer paints polygon interiors.
type FillLayer struct {
	Table  *flatten.Table
	Color  color.Color
	Column string
	Domain []float64
	Alpha  float64
	// Index, when set, skips features outside the figure extent.
	Index *geo.Collection
}

func (l *FillLayer) Extent(*geo.CRS) geo.BBox { return l.Table.Bounds() }

func (l *FillLayer) Draw(s Surface, v *Viewport) error {
	if err := checkCRS(l.Table, v); err != nil {
		return err
	}
	colorOf, err := fillColor{Color: l.Color, Column: l.Column, Domain: l.Domain}.resolve(l.Table, v)
	if err != nil {
		return err
	}
	visible := visibleIDs(l.Index, v)

	for _, groups := range featureParts(l.Table) {
		if visible != nil && !visible[groups[0].ID] {
			continue
		}
		rings := make([]Ring, 0, len(groups))
		for _, g := range groups {
			if g.Ring {
				rings = append(rings, Ring{Points: pixels(l.Table, g, v), Hole: g.Hole})
			}
		}
		if len(rings) > 0 {
			s.Polygon(rings, withAlpha(colorOf(groups[0].Start), l.Alpha))
		}
	}
	return nil
}

// OutlineLayer strokes every ring and line.
type OutlineLayer struct {
	Table *flatten.Table
	Color color.Color
	Width float64
	Index *geo.Collection
}

func (l *OutlineLayer) Extent(*geo.CRS) geo.BBox { return l.Table.Bounds() }

func (l *OutlineLayer) Draw(s Surface, v *Viewport) error {
	if err := checkCRS(l.Table, v); err != nil {
		return err
	}
	c := l.Color
	if c == nil {
		c = color.Black
	}
	width := l.Width
	if width <= 0 {
		width = 0.5
	}
	visible := visibleIDs(l.Index, v)

	for _, g := range l.Table.Parts() {
		if visible != nil && !visible[g.ID] {
			continue
		}
		s.Polyline(pixels(l.Table, g, v), g.Ring, width, c)
	}
	return nil
}

// PointLayer draws a marker per row.
type PointLayer struct {
	Table  *flatten.Table
	Color  color.Color
	Column string
	Domain []float64
	Radius float64
	Stroke color.Color
}

func (l *PointLayer) Extent(*geo.CRS) geo.BBox { return l.Table.Bounds() }

func (l *PointLayer) Draw(s Surface, v *Viewport) error {
	if err := checkCRS(l.Table, v); err != nil {
		return err
	}
	c := l.Color
	if c == nil && l.Column == "" {
		c = color.Black
	}
	colorOf, err := fillColor{Color: c, Column: l.Column, Domain: l.Domain}.resolve(l.Table, v)
	if err != nil {
		return err
	}
	radius := l.Radius
	if radius <= 0 {
		radius = 3
	}

	for i, r := range l.Table.Rows {
		s.Circle(v.ToPixel(r.X, r.Y), radius, colorOf(i), l.Stroke)
	}
	return nil
}

// RasterLayer draws a basemap image, reprojecting it when its CRS differs
// from the figure.
type RasterLayer struct {
	Tile    *basemap.Tile
	Opacity float64
}

func (l *RasterLayer) Extent(crs *geo.CRS) geo.BBox {
	if crs == nil || l.Tile.CRS.Equal(crs) {
		return l.Tile.Bounds
	}
	b, err := projection.TransformBBox(l.Tile.Bounds, l.Tile.CRS, crs)
	if err != nil {
		log.Warn().Err(err).Str("provider", l.Tile.Provider).Msg("Cannot place basemap extent")
		return geo.EmptyBBox()
	}
	return b
}

func (l *RasterLayer) Draw(s Surface, v *Viewport) error {
	img, err := Warp(l.Tile, v)
	if err != nil {
		return err
	}
	if l.Opacity > 0 && l.Opacity < 1 {
		fade(img, l.Opacity)
	}
	s.Image(img, v.Plot)
	return nil
}

// Warp resamples the tile onto the viewport panel, one panel pixel at a time,
// through the inverse transform from the figure CRS to the tile CRS.
func Warp(t *basemap.Tile, v *Viewport) (*image.RGBA, error) {
	out := image.NewRGBA(image.Rect(0, 0, v.Plot.Dx(), v.Plot.Dy()))

	same := v.CRS == nil || t.CRS == nil || t.CRS.Equal(v.CRS)
	var inverse func(x, y float64) (float64, float64, error)
	if !same {
		tr, err := projection.Transformer(v.CRS, t.CRS)
		if err != nil {
			return nil, err
		}
		inverse = tr
	}

	src := t.Image.Bounds()
	ux := float64(src.Dx()) / t.Bounds.Width()
	uy := float64(src.Dy()) / t.Bounds.Height()

	for py := 0; py < out.Bounds().Dy(); py++ {
		for px := 0; px < out.Bounds().Dx(); px++ {
			x, y := v.ToData(Point{
				X: float64(v.Plot.Min.X+px) + 0.5,
				Y: float64(v.Plot.Min.Y+py) + 0.5,
			})
			if inverse != nil {
				var err error
				if x, y, err = inverse(x, y); err != nil || math.IsNaN(x) || math.IsNaN(y) {
					continue
				}
			}
			sx := int(math.Floor((x - t.Bounds.MinX) * ux))
			sy := int(math.Floor((t.Bounds.MaxY - y) * uy))
			if sx < 0 || sy < 0 || sx >= src.Dx() || sy >= src.Dy() {
				continue
			}
			out.Set(px, py, t.Image.At(src.Min.X+sx, src.Min.Y+sy))
		}
	}
	return out, nil
}

func fade(img *image.RGBA, opacity float64) {
	for i := 3; i < len(img.Pix); i += 4 {
		// Premultiplied, so scale every channel.
		for k := i - 3; k <= i; k++ {
			img.Pix[k] = uint8(math.Round(float64(img.Pix[k]) * opacity))
		}
	}
}
