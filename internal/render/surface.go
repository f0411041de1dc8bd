package render

import (
	"image"
	"image/color"
)

// Point is a position in pixels, y growing downwards.
type Point struct {
	X, Y float64
}

// Ring is a closed pixel path; holes are cut out of the rings before them.
type Ring struct {
	Points []Point
	Hole   bool
}

// Anchor aligns text horizontally around its position.
type Anchor int

const (
	AnchorStart Anchor = iota
	AnchorMiddle
	AnchorEnd
)

// Surface is a drawing target. Later calls paint over earlier ones.
type Surface interface {
	Size() (width, height int)
	Rect(r image.Rectangle, fill color.Color)
	Polygon(rings []Ring, fill color.Color)
	Polyline(pts []Point, closed bool, width float64, stroke color.Color)
	Circle(center Point, radius float64, fill, stroke color.Color)
	Image(img image.Image, dst image.Rectangle)
	Text(at Point, s string, c color.Color, anchor Anchor)
}

func signedArea(pts []Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}

func reversed(pts []Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// oriented returns pts wound so that its signed area has the sign of positive.
func oriented(pts []Point, positive bool) []Point {
	if (signedArea(pts) >= 0) != positive {
		return reversed(pts)
	}
	return pts
}

func isTransparent(c color.Color) bool {
	if c == nil {
		return true
	}
	_, _, _, a := c.RGBA()
	return a == 0
}
