package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/woozymasta/mapcomp/internal/flatten"
)

// DomainError reports a styling attribute that is absent or not numeric.
type DomainError struct {
	Column string
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("attribute %q: %s", e.Column, e.Reason)
}

// ColorScale maps values linearly between two colors.
type ColorScale struct {
	Low, High color.Color
	NA        color.Color
	Min, Max  float64
}

// NewColorScale builds a scale over the values of column in t. A two-element
// domain fixes the range instead of deriving it from the data.
func NewColorScale(t *flatten.Table, column string, low, high, na color.Color, domain []float64) (*ColorScale, error) {
	ci := t.ColumnIndex(column)
	if ci < 0 {
		return nil, &DomainError{Column: column, Reason: "column not found"}
	}

	s := &ColorScale{Low: low, High: high, NA: na, Min: math.Inf(1), Max: math.Inf(-1)}
	numeric := 0
	for i := range t.Rows {
		v, ok := t.Float(i, ci)
		if !ok {
			if attrs := t.Rows[i].Attrs; ci < len(attrs) && attrs[ci] != nil {
				return nil, &DomainError{Column: column, Reason: fmt.Sprintf("non-numeric value %v", attrs[ci])}
			}
			continue
		}
		numeric++
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}

	if len(domain) == 2 {
		s.Min, s.Max = domain[0], domain[1]
	} else if numeric == 0 {
		return nil, &DomainError{Column: column, Reason: "no numeric values"}
	}

	return s, nil
}

// At returns the color for v. Values outside the range are clamped.
func (s *ColorScale) At(v float64) color.Color {
	if math.IsNaN(v) {
		return s.NA
	}
	t := 0.0
	if s.Max > s.Min {
		t = (v - s.Min) / (s.Max - s.Min)
	}
	t = math.Max(0, math.Min(1, t))
	return lerp(s.Low, s.High, t)
}

func lerp(a, b color.Color, t float64) color.Color {
	ca := color.NRGBAModel.Convert(a).(color.NRGBA)
	cb := color.NRGBAModel.Convert(b).(color.NRGBA)
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{R: mix(ca.R, cb.R), G: mix(ca.G, cb.G), B: mix(ca.B, cb.B), A: mix(ca.A, cb.A)}
}

// withAlpha scales the opacity of c by alpha in [0, 1].
func withAlpha(c color.Color, alpha float64) color.Color {
	if alpha <= 0 || alpha >= 1 {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(math.Round(float64(n.A) * alpha))
	return n
}
