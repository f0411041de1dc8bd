package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Color is an RGBA color read from hex notation ("#rgb", "#rrggbb", "#rrggbbaa")
// or one of a few names.
type Color struct {
	color.NRGBA
}

var namedColors = map[string]color.NRGBA{
	"white":       {255, 255, 255, 255},
	"black":       {0, 0, 0, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"grey":        {127, 127, 127, 255},
	"gray":        {127, 127, 127, 255},
	"grey50":      {127, 127, 127, 255},
	"grey92":      {235, 235, 235, 255},
	"transparent": {},
	"none":        {},
}

// ParseColor reads a color descriptor.
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return Color{c}, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	return Color{color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}}, nil
}

// MustColor is ParseColor for literals.
func MustColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex formats the color as #rrggbb or #rrggbbaa.
func (c Color) Hex() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func (c *Color) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := ParseColor(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*c = parsed
	return nil
}

func (c Color) MarshalYAML() (any, error) { return c.Hex(), nil }

// Theme holds the visual options of a figure.
type Theme struct {
	Width           int   `yaml:"width"`
	Height          int   `yaml:"height"`
	Margin          int   `yaml:"margin"`
	Background      Color `yaml:"background"`
	PanelBackground Color `yaml:"panel_background"`
	TextColor       Color `yaml:"text_color"`
	GridColor       Color `yaml:"grid_color"`

	ShowAxes bool `yaml:"axes"`
	Grid     bool `yaml:"grid"`

	// FixedAspect keeps one data unit equally long on both axes, scaled by AspectRatio
	// (y over x). A zero ratio means 1, or 1/cos(latitude) for geographic systems.
	FixedAspect bool    `yaml:"fixed_aspect"`
	AspectRatio float64 `yaml:"aspect_ratio"`

	// Low and High are the endpoints of continuous color scales; NA colors missing values.
	Low  Color `yaml:"low"`
	High Color `yaml:"high"`
	NA   Color `yaml:"na"`

	Title    string `yaml:"title"`
	Caption  string `yaml:"caption"`
	ScaleBar bool   `yaml:"scale_bar"`
}

// DefaultTheme resembles the default ggplot2 look with a green to red scale.
func DefaultTheme() Theme {
	return Theme{
		Width:           800,
		Height:          600,
		Margin:          40,
		Background:      MustColor("white"),
		PanelBackground: MustColor("grey92"),
		TextColor:       MustColor("#4d4d4d"),
		GridColor:       MustColor("white"),
		ShowAxes:        true,
		Grid:            true,
		FixedAspect:     true,
		Low:             MustColor("green"),
		High:            MustColor("red"),
		NA:              MustColor("grey50"),
	}
}

// UnmarshalYAML fills keys absent from the document with DefaultTheme values.
func (t *Theme) UnmarshalYAML(n *yaml.Node) error {
	type plain Theme
	p := plain(DefaultTheme())
	if err := n.Decode(&p); err != nil {
		return err
	}
	*t = Theme(p)
	return nil
}

func (t Theme) size() (int, int) {
	w, h := t.Width, t.Height
	if w <= 0 {
		w = 800
	}
	if h <= 0 {
		h = 600
	}
	return w, h
}
