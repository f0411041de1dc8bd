package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

// svgSurface records drawing calls as SVG elements.
type svgSurface struct {
	width, height int
	buf           bytes.Buffer
	err           error
}

func newSVGSurface(width, height int) *svgSurface {
	return &svgSurface{width: width, height: height}
}

func (s *svgSurface) Size() (int, int) { return s.width, s.height }

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// paint returns fill/stroke attributes for c, or "none".
func paint(attr string, c color.Color) string {
	if isTransparent(c) {
		return fmt.Sprintf(` %s="none"`, attr)
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	out := fmt.Sprintf(` %s="#%02x%02x%02x"`, attr, n.R, n.G, n.B)
	if n.A < 255 {
		out += fmt.Sprintf(` %s-opacity="%s"`, attr, strconv.FormatFloat(float64(n.A)/255, 'f', 3, 64))
	}
	return out
}

func pathData(pts []Point, closed bool) string {
	var b strings.Builder
	for i, p := range pts {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString("L")
		}
		b.WriteString(num(p.X) + " " + num(p.Y))
	}
	if closed {
		b.WriteString("Z")
	}
	return b.String()
}

func (s *svgSurface) Rect(r image.Rectangle, fill color.Color) {
	if isTransparent(fill) {
		return
	}
	fmt.Fprintf(&s.buf, `<rect x="%d" y="%d" width="%d" height="%d"%s/>`,
		r.Min.X, r.Min.Y, r.Dx(), r.Dy(), paint("fill", fill))
}

func (s *svgSurface) Polygon(rings []Ring, fill color.Color) {
	if isTransparent(fill) || len(rings) == 0 {
		return
	}
	var d strings.Builder
	for _, r := range rings {
		if len(r.Points) >= 3 {
			d.WriteString(pathData(r.Points, true))
		}
	}
	fmt.Fprintf(&s.buf, `<path d="%s" fill-rule="evenodd"%s/>`, d.String(), paint("fill", fill))
}

func (s *svgSurface) Polyline(pts []Point, closed bool, width float64, stroke color.Color) {
	if isTransparent(stroke) || len(pts) < 2 || width <= 0 {
		return
	}
	fmt.Fprintf(&s.buf, `<path d="%s" fill="none" stroke-width="%s" stroke-linejoin="round"%s/>`,
		pathData(pts, closed), num(width), paint("stroke", stroke))
}

func (s *svgSurface) Circle(center Point, radius float64, fill, stroke color.Color) {
	fmt.Fprintf(&s.buf, `<circle cx="%s" cy="%s" r="%s"%s%s/>`,
		num(center.X), num(center.Y), num(radius), paint("fill", fill), paint("stroke", stroke))
}

func (s *svgSurface) Image(img image.Image, dst image.Rectangle) {
	var data bytes.Buffer
	if err := png.Encode(&data, img); err != nil {
		s.err = err
		return
	}
	fmt.Fprintf(&s.buf, `<image x="%d" y="%d" width="%d" height="%d" preserveAspectRatio="none" href="data:image/png;base64,%s"/>`,
		dst.Min.X, dst.Min.Y, dst.Dx(), dst.Dy(), base64.StdEncoding.EncodeToString(data.Bytes()))
}

func (s *svgSurface) Text(at Point, str string, c color.Color, anchor Anchor) {
	a := "start"
	switch anchor {
	case AnchorMiddle:
		a = "middle"
	case AnchorEnd:
		a = "end"
	}
	fmt.Fprintf(&s.buf, `<text x="%s" y="%s" font-family="monospace" font-size="12" text-anchor="%s"%s>%s</text>`,
		num(at.X), num(at.Y), a, paint("fill", c), html.EscapeString(str))
}

// WriteTo emits the minified document.
func (s *svgSurface) WriteTo(w io.Writer) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}

	var doc bytes.Buffer
	fmt.Fprintf(&doc, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		s.width, s.height, s.width, s.height)
	doc.Write(s.buf.Bytes())
	doc.WriteString(`</svg>`)

	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)

	cw := &countingWriter{w: w}
	if err := m.Minify("image/svg+xml", cw, &doc); err != nil {
		return cw.n, fmt.Errorf("minify svg: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
