package render

import (
	"image"
	"math"
	"strconv"

	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/projection"

	"github.com/golang/geo/s2"
)

const (
	titleHeight = 20
	tickLength  = 4
)

// PrettyTicks returns about n round values covering [lo, hi], stepping by
// 1, 2 or 5 times a power of ten.
func PrettyTicks(lo, hi float64, n int) []float64 {
	if hi <= lo || n < 1 {
		return nil
	}
	raw := (hi - lo) / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	step := mag
	for _, m := range []float64{1, 2, 5, 10} {
		step = m * mag
		if step >= raw {
			break
		}
	}

	var ticks []float64
	for v := math.Ceil(lo/step) * step; v <= hi+step*1e-9; v += step {
		// Snap away floating point drift such as 0.30000000000000004.
		ticks = append(ticks, math.Round(v/step)*step)
	}
	return ticks
}

func tickLabel(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func drawGrid(s Surface, v *Viewport) {
	t := v.Theme
	for _, x := range PrettyTicks(v.Extent.MinX, v.Extent.MaxX, 5) {
		p := v.ToPixel(x, v.Extent.MinY)
		s.Polyline([]Point{{p.X, float64(v.Plot.Min.Y)}, {p.X, float64(v.Plot.Max.Y)}}, false, 1, t.GridColor)
	}
	for _, y := range PrettyTicks(v.Extent.MinY, v.Extent.MaxY, 5) {
		p := v.ToPixel(v.Extent.MinX, y)
		s.Polyline([]Point{{float64(v.Plot.Min.X), p.Y}, {float64(v.Plot.Max.X), p.Y}}, false, 1, t.GridColor)
	}
}

func drawAxes(s Surface, v *Viewport) {
	t := v.Theme
	bottom := float64(v.Plot.Max.Y)
	left := float64(v.Plot.Min.X)

	for _, x := range PrettyTicks(v.Extent.MinX, v.Extent.MaxX, 5) {
		p := v.ToPixel(x, v.Extent.MinY)
		s.Polyline([]Point{{p.X, bottom}, {p.X, bottom + tickLength}}, false, 1, t.TextColor)
		s.Text(Point{p.X, bottom + tickLength + 13}, tickLabel(x), t.TextColor, AnchorMiddle)
	}
	for _, y := range PrettyTicks(v.Extent.MinY, v.Extent.MaxY, 5) {
		p := v.ToPixel(v.Extent.MinX, y)
		s.Polyline([]Point{{left - tickLength, p.Y}, {left, p.Y}}, false, 1, t.TextColor)
		s.Text(Point{left - tickLength - 2, p.Y + 4}, tickLabel(y), t.TextColor, AnchorEnd)
	}
}

func drawTitle(s Surface, v *Viewport) {
	w, _ := s.Size()
	s.Text(Point{float64(w) / 2, float64(v.Theme.Margin) + 12}, v.Theme.Title, v.Theme.TextColor, AnchorMiddle)
}

func drawCaption(s Surface, v *Viewport) {
	w, h := s.Size()
	s.Text(Point{float64(w) - 4, float64(h) - 4}, v.Theme.Caption, v.Theme.TextColor, AnchorEnd)
}

// earthRadiusKm is the mean radius used for scale bar distances.
const earthRadiusKm = 6371.0088

// ScaleBarLength picks a round distance close to a quarter of the panel width and
// returns it with its length in pixels, measured along the bottom edge of the panel.
func ScaleBarLength(v *Viewport) (km float64, px float64, err error) {
	toLonLat := func(x, y float64) (float64, float64, error) { return x, y, nil }
	if !v.CRS.IsGeographic() {
		tr, err := projection.Transformer(v.CRS, geo.WGS84())
		if err != nil {
			return 0, 0, err
		}
		toLonLat = tr
	}

	y := v.Extent.MinY + v.Extent.Height()*0.05
	x0 := v.Extent.MinX
	x1 := x0 + v.Extent.Width()/4
	lon0, lat0, err := toLonLat(x0, y)
	if err != nil {
		return 0, 0, err
	}
	lon1, lat1, err := toLonLat(x1, y)
	if err != nil {
		return 0, 0, err
	}

	a := s2.LatLngFromDegrees(lat0, lon0)
	b := s2.LatLngFromDegrees(lat1, lon1)
	quarter := a.Distance(b).Radians() * earthRadiusKm
	if quarter <= 0 {
		return 0, 0, nil
	}

	km = niceFloor(quarter)
	sx, _ := v.Scale()
	px = km / quarter * (x1 - x0) * sx
	return km, px, nil
}

// niceFloor returns the largest 1, 2 or 5 times a power of ten not above v.
func niceFloor(v float64) float64 {
	mag := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{5, 2, 1} {
		if m*mag <= v {
			return m * mag
		}
	}
	return mag
}

func drawScaleBar(s Surface, v *Viewport) error {
	km, px, err := ScaleBarLength(v)
	if err != nil || px <= 0 {
		return err
	}

	x := float64(v.Plot.Min.X) + 10
	y := float64(v.Plot.Max.Y) - 12
	s.Rect(image.Rect(int(x), int(y), int(x+px), int(y)+4), v.Theme.TextColor)
	s.Text(Point{x + px/2, y - 3}, strconv.FormatFloat(km, 'g', 4, 64)+" km", v.Theme.TextColor, AnchorMiddle)
	return nil
}
