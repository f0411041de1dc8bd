package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/flatten"
	"github.com/woozymasta/mapcomp/internal/geo"

	"github.com/ctessum/geom"
)

func square(x0, y0, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}, {X: x0, Y: y0},
	}}
}

func plainTheme(w, h int) Theme {
	t := DefaultTheme()
	t.Width, t.Height = w, h
	t.Margin = 0
	t.ShowAxes = false
	t.Grid = false
	return t
}

func table(t *testing.T, attrs *geo.AttributeTable, polys ...geom.Polygon) *flatten.Table {
	t.Helper()
	features := make([]geo.Feature, len(polys))
	for i, p := range polys {
		features[i] = geo.Feature{ID: string(rune('1' + i)), Geometry: p}
	}
	coll, err := geo.NewCollection(nil, features)
	if err != nil {
		t.Fatal(err)
	}
	tab, err := flatten.Flatten(coll, attrs)
	if err != nil {
		t.Fatal(err)
	}
	return tab
}

func rgba(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func TestLayeringOrder(t *testing.T) {
	a := &FillLayer{Table: table(t, nil, square(0, 0, 2)), Color: red}
	b := &FillLayer{Table: table(t, nil, square(1, -1, 2)), Color: blue}
	c := &Compositor{Theme: plainTheme(300, 100), Extent: geo.BBox{MinX: 0, MinY: 0, MaxX: 3, MaxY: 1}}

	tests := []struct {
		name   string
		layers []Layer
		want   color.RGBA
	}{
		{"blue on top", []Layer{a, b}, blue},
		{"red on top", []Layer{b, a}, red},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := c.Render(tt.layers)
			if err != nil {
				t.Fatal(err)
			}
			if got := rgba(img, 150, 50); got != tt.want {
				t.Errorf("overlap pixel = %v, want %v", got, tt.want)
			}
			if got := rgba(img, 50, 50); got != red {
				t.Errorf("red-only pixel = %v", got)
			}
		})
	}
}

func rates(t *testing.T) *geo.AttributeTable {
	t.Helper()
	attrs := geo.NewAttributeTable([]string{"rate", "name"})
	for id, v := range map[string]float64{"1": 10, "2": 90} {
		if err := attrs.Add(id, []any{v, "n" + id}); err != nil {
			t.Fatal(err)
		}
	}
	return attrs
}

func TestFillColorScale(t *testing.T) {
	tab := table(t, rates(t), square(0, 0, 1), square(2, 0, 1))
	c := &Compositor{Theme: plainTheme(300, 100)}

	img, err := c.Render([]Layer{&FillLayer{Table: tab, Column: "rate"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := rgba(img, 50, 50); got != (color.RGBA{G: 128, A: 255}) {
		t.Errorf("low feature = %v, want green", got)
	}
	if got := rgba(img, 250, 50); got != red {
		t.Errorf("high feature = %v, want red", got)
	}
}

func TestDomainError(t *testing.T) {
	tab := table(t, rates(t), square(0, 0, 1))
	for _, col := range []string{"missing", "name"} {
		t.Run(col, func(t *testing.T) {
			c := &Compositor{Theme: plainTheme(100, 100)}
			_, err := c.Render([]Layer{&FillLayer{Table: tab, Column: col}})
			var de *DomainError
			if !errors.As(err, &de) || de.Column != col {
				t.Fatalf("err = %v, want DomainError for %s", err, col)
			}
		})
	}
}

func TestColorScaleAt(t *testing.T) {
	s := &ColorScale{Low: color.Black, High: color.White, NA: blue, Min: 0, Max: 10}
	tests := []struct {
		v    float64
		want uint8
	}{
		{0, 0}, {5, 128}, {10, 255}, {-3, 0}, {42, 255},
	}
	for _, tt := range tests {
		got := color.NRGBAModel.Convert(s.At(tt.v)).(color.NRGBA)
		if got.R != tt.want {
			t.Errorf("At(%v) = %v, want grey %d", tt.v, got, tt.want)
		}
	}
	if s.At(math.NaN()) != color.Color(blue) {
		t.Error("NaN not mapped to NA")
	}
}

func TestViewportAspect(t *testing.T) {
	theme := plainTheme(400, 400)
	v := NewViewport(nil, geo.BBox{MaxX: 10, MaxY: 5}, 400, 400, &theme)
	sx, sy := v.Scale()
	if sx != 40 || sy != 40 {
		t.Errorf("scale = %v, %v, want 40", sx, sy)
	}
	if v.Plot.Dx() != 400 || v.Plot.Dy() != 200 {
		t.Errorf("plot = %v", v.Plot)
	}
	p := v.ToPixel(10, 5)
	if x, y := v.ToData(p); x != 10 || y != 5 {
		t.Errorf("round trip = %v, %v", x, y)
	}

	theme.FixedAspect = false
	v = NewViewport(nil, geo.BBox{MaxX: 10, MaxY: 5}, 400, 400, &theme)
	if sx, sy := v.Scale(); sx != 40 || sy != 80 {
		t.Errorf("free scale = %v, %v", sx, sy)
	}
}

func TestPrettyTicks(t *testing.T) {
	tests := []struct {
		lo, hi float64
		want   []float64
	}{
		{0, 10, []float64{0, 2, 4, 6, 8, 10}},
		{-97.3, -80.1, []float64{-95, -90, -85}},
		{0.1, 0.45, []float64{0.1, 0.2, 0.3, 0.4}},
	}
	for _, tt := range tests {
		got := PrettyTicks(tt.lo, tt.hi, 5)
		if len(got) != len(tt.want) {
			t.Errorf("PrettyTicks(%v, %v) = %v, want %v", tt.lo, tt.hi, got, tt.want)
			continue
		}
		for i := range got {
			if math.Abs(got[i]-tt.want[i]) > 1e-9 {
				t.Errorf("PrettyTicks(%v, %v) = %v, want %v", tt.lo, tt.hi, got, tt.want)
				break
			}
		}
	}
}

func TestRasterReprojection(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range src.Pix {
		if i%4 == 0 || i%4 == 3 {
			src.Pix[i] = 255
		}
	}
	x0, y0 := geo.LonLatToMercator(-10, -10)
	x1, y1 := geo.LonLatToMercator(10, 10)
	tile := &basemap.Tile{
		Image:  src,
		Bounds: geo.BBox{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1},
		CRS:    geo.WebMercator(),
	}

	c := &Compositor{
		Theme:  plainTheme(100, 100),
		CRS:    geo.WGS84(),
		Extent: geo.BBox{MinX: -20, MinY: -20, MaxX: 20, MaxY: 20},
	}
	img, err := c.Render([]Layer{&RasterLayer{Tile: tile}})
	if err != nil {
		t.Fatal(err)
	}
	if got := rgba(img, 50, 50); got != red {
		t.Errorf("center = %v, want red", got)
	}
	if got := rgba(img, 5, 5); got == red {
		t.Error("corner outside the tile painted")
	}
}

func TestScaleBar(t *testing.T) {
	theme := plainTheme(400, 100)
	v := NewViewport(geo.WGS84(), geo.BBox{MinX: 0, MinY: -5, MaxX: 40, MaxY: 5}, 400, 100, &theme)
	km, px, err := ScaleBarLength(v)
	if err != nil {
		t.Fatal(err)
	}
	if km != 1000 {
		t.Errorf("km = %v, want 1000", km)
	}
	if px <= 0 || px > 100 {
		t.Errorf("px = %v", px)
	}
}

func TestRenderSVG(t *testing.T) {
	tab := table(t, rates(t), square(0, 0, 1), square(2, 0, 1))
	theme := DefaultTheme()
	theme.Title = "Rates & <counts>"
	c := &Compositor{Theme: theme}

	var buf bytes.Buffer
	err := c.RenderSVG(&buf, []Layer{
		&FillLayer{Table: tab, Column: "rate"},
		&OutlineLayer{Table: tab, Width: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"<svg", "<path", "&lt;counts"} {
		if !strings.Contains(out, want) {
			t.Errorf("svg missing %q", want)
		}
	}
}

func TestEncode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := Encode(&buf, img, "png"); err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("png round trip: %v", err)
	}
	if err := Encode(&buf, img, "gif"); err == nil {
		t.Error("gif accepted")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		err  bool
	}{
		{"#f00", color.NRGBA{R: 255, A: 255}, false},
		{"#00ff0080", color.NRGBA{G: 255, A: 128}, false},
		{"Red", color.NRGBA{R: 255, A: 255}, false},
		{"#12345", color.NRGBA{}, true},
		{"#zzzzzz", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err != nil) != tt.err || (!tt.err && got.NRGBA != tt.want) {
			t.Errorf("ParseColor(%q) = %v, %v", tt.in, got, err)
		}
	}
}
