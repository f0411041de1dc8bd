package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const circleSegments = 24

// rasterSurface draws anti-aliased shapes into an RGBA image.
//
// The rasterizer accumulates signed coverage and clamps its magnitude, so every
// shape is emitted with positive winding and holes with negative winding.
type rasterSurface struct {
	img *image.RGBA
}

func newRasterSurface(width, height int) *rasterSurface {
	return &rasterSurface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (s *rasterSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *rasterSurface) paint(c color.Color, build func(z *vector.Rasterizer)) {
	if isTransparent(c) {
		return
	}
	b := s.img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	build(z)
	z.Draw(s.img, b, image.NewUniform(c), image.Point{})
}

func path(z *vector.Rasterizer, pts []Point) {
	if len(pts) < 3 {
		return
	}
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
}

func (s *rasterSurface) Rect(r image.Rectangle, fill color.Color) {
	if isTransparent(fill) {
		return
	}
	draw.Draw(s.img, r, image.NewUniform(fill), image.Point{}, draw.Over)
}

func (s *rasterSurface) Polygon(rings []Ring, fill color.Color) {
	s.paint(fill, func(z *vector.Rasterizer) {
		for _, r := range rings {
			path(z, oriented(r.Points, !r.Hole))
		}
	})
}

func (s *rasterSurface) Polyline(pts []Point, closed bool, width float64, stroke color.Color) {
	if len(pts) < 2 || width <= 0 {
		return
	}
	if closed {
		pts = append(pts[:len(pts):len(pts)], pts[0])
	}

	half := width / 2
	s.paint(stroke, func(z *vector.Rasterizer) {
		for i := 1; i < len(pts); i++ {
			a, b := pts[i-1], pts[i]
			dx, dy := b.X-a.X, b.Y-a.Y
			l := math.Hypot(dx, dy)
			if l == 0 {
				continue
			}
			nx, ny := -dy/l*half, dx/l*half
			path(z, oriented([]Point{
				{a.X + nx, a.Y + ny},
				{b.X + nx, b.Y + ny},
				{b.X - nx, b.Y - ny},
				{a.X - nx, a.Y - ny},
			}, true))
		}
		// Round joins.
		if width > 1.5 {
			for _, p := range pts {
				path(z, circlePoints(p, half))
			}
		}
	})
}

// circlePoints approximates a circle with positive winding.
func circlePoints(c Point, r float64) []Point {
	pts := make([]Point, circleSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = Point{c.X + r*math.Cos(a), c.Y + r*math.Sin(a)}
	}
	return oriented(pts, true)
}

func (s *rasterSurface) Circle(center Point, radius float64, fill, stroke color.Color) {
	pts := circlePoints(center, radius)
	s.paint(fill, func(z *vector.Rasterizer) { path(z, pts) })
	if !isTransparent(stroke) {
		s.Polyline(pts, true, 1, stroke)
	}
}

func (s *rasterSurface) Image(img image.Image, dst image.Rectangle) {
	if img.Bounds().Size() == dst.Size() {
		draw.Draw(s.img, dst, img, img.Bounds().Min, draw.Over)
		return
	}
	xdraw.CatmullRom.Scale(s.img, dst, img, img.Bounds(), draw.Over, nil)
}

var face = basicfont.Face7x13

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

func (s *rasterSurface) Text(at Point, str string, c color.Color, anchor Anchor) {
	x := at.X
	switch anchor {
	case AnchorMiddle:
		x -= float64(textWidth(str)) / 2
	case AnchorEnd:
		x -= float64(textWidth(str))
	}

	d := &font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(int(math.Round(x)), int(math.Round(at.Y))),
	}
	d.DrawString(str)
}
