package render

import (
	"image"
	"math"

	"github.com/woozymasta/mapcomp/internal/geo"
)

// Viewport maps figure coordinates to pixels inside the plot panel.
type Viewport struct {
	CRS    *geo.CRS
	Extent geo.BBox
	// Plot is the pixel rectangle of the panel.
	Plot  image.Rectangle
	Theme *Theme

	sx, sy float64
	ox, oy float64
}

// NewViewport fits extent into a width x height figure. With a fixed aspect the
// panel shrinks along one axis and is centered in the available space.
func NewViewport(crs *geo.CRS, extent geo.BBox, width, height int, theme *Theme) *Viewport {
	if extent.Width() <= 0 {
		extent.MinX, extent.MaxX = extent.MinX-0.5, extent.MaxX+0.5
	}
	if extent.Height() <= 0 {
		extent.MinY, extent.MaxY = extent.MinY-0.5, extent.MaxY+0.5
	}

	top := theme.Margin
	if theme.Title != "" {
		top += titleHeight
	}
	avail := image.Rect(theme.Margin, top, width-theme.Margin, height-theme.Margin)
	if avail.Dx() <= 0 || avail.Dy() <= 0 {
		avail = image.Rect(0, 0, width, height)
	}

	sx := float64(avail.Dx()) / extent.Width()
	sy := float64(avail.Dy()) / extent.Height()
	pw, ph := float64(avail.Dx()), float64(avail.Dy())

	if theme.FixedAspect {
		ratio := aspectRatio(theme.AspectRatio, crs, extent)
		s := math.Min(sx, sy/ratio)
		sx, sy = s, s*ratio
		pw, ph = extent.Width()*sx, extent.Height()*sy
	}

	ox := float64(avail.Min.X) + (float64(avail.Dx())-pw)/2
	oy := float64(avail.Min.Y) + (float64(avail.Dy())-ph)/2

	return &Viewport{
		CRS:    crs,
		Extent: extent,
		Plot: image.Rect(
			int(math.Round(ox)), int(math.Round(oy)),
			int(math.Round(ox+pw)), int(math.Round(oy+ph)),
		),
		Theme: theme,
		sx:    sx,
		sy:    sy,
		ox:    ox,
		oy:    oy + ph,
	}
}

// aspectRatio is the y to x pixel-per-unit ratio. Geographic systems default to
// 1/cos(latitude) at the extent center.
func aspectRatio(ratio float64, crs *geo.CRS, extent geo.BBox) float64 {
	if ratio > 0 {
		return ratio
	}
	if crs.IsGeographic() {
		_, lat := extent.Center()
		if c := math.Cos(lat * math.Pi / 180); c > 1e-6 {
			return 1 / c
		}
	}
	return 1
}

// ToPixel converts figure coordinates to pixel coordinates.
func (v *Viewport) ToPixel(x, y float64) Point {
	return Point{
		X: v.ox + (x-v.Extent.MinX)*v.sx,
		Y: v.oy - (y-v.Extent.MinY)*v.sy,
	}
}

// ToData converts pixel coordinates back to figure coordinates.
func (v *Viewport) ToData(p Point) (x, y float64) {
	return v.Extent.MinX + (p.X-v.ox)/v.sx, v.Extent.MinY + (v.oy-p.Y)/v.sy
}

// Scale returns pixels per data unit on each axis.
func (v *Viewport) Scale() (sx, sy float64) { return v.sx, v.sy }
