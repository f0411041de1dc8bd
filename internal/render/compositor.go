// Package render composites vector layers and basemaps into map figures.
package render

import (
	"errors"
	"image"
	"io"

	"github.com/woozymasta/mapcomp/internal/geo"

	"github.com/rs/zerolog/log"
)

// ErrEmptyExtent is returned when no layer contributes an extent and none is set.
var ErrEmptyExtent = errors.New("render: nothing to draw")

// Compositor draws layers in order onto one figure.
type Compositor struct {
	Theme Theme
	// CRS of every vector layer; raster layers are reprojected into it.
	CRS *geo.CRS
	// Extent fixes the visible area. The zero box fits all layers.
	Extent geo.BBox
}

func (c *Compositor) extent(layers []Layer) (geo.BBox, error) {
	if c.Extent != (geo.BBox{}) && !c.Extent.IsEmpty() {
		return c.Extent, nil
	}
	bb := geo.EmptyBBox()
	for _, l := range layers {
		bb = bb.Extend(l.Extent(c.CRS))
	}
	if bb.IsEmpty() {
		return bb, ErrEmptyExtent
	}
	return bb, nil
}

// Viewport returns the pixel mapping Render would use for layers.
func (c *Compositor) Viewport(layers []Layer) (*Viewport, error) {
	extent, err := c.extent(layers)
	if err != nil {
		return nil, err
	}
	theme := c.Theme
	w, h := theme.size()
	return NewViewport(c.CRS, extent, w, h, &theme), nil
}

func (c *Compositor) draw(s Surface, layers []Layer) error {
	v, err := c.Viewport(layers)
	if err != nil {
		return err
	}
	w, h := s.Size()
	t := v.Theme

	s.Rect(image.Rect(0, 0, w, h), t.Background)
	s.Rect(v.Plot, t.PanelBackground)
	if t.Grid {
		drawGrid(s, v)
	}

	for i, l := range layers {
		if err := l.Draw(s, v); err != nil {
			log.Debug().Err(err).Int("layer", i).Msg("Layer failed")
			return err
		}
	}

	if t.ShowAxes {
		drawAxes(s, v)
	}
	if t.ScaleBar {
		if err := drawScaleBar(s, v); err != nil {
			log.Warn().Err(err).Msg("Cannot draw scale bar")
		}
	}
	if t.Title != "" {
		drawTitle(s, v)
	}
	if t.Caption != "" {
		drawCaption(s, v)
	}
	return nil
}

// Render rasterizes the layers. Later layers draw on top of earlier ones.
func (c *Compositor) Render(layers []Layer) (*image.RGBA, error) {
	s := newRasterSurface(c.Theme.size())
	if err := c.draw(s, layers); err != nil {
		return nil, err
	}
	return s.img, nil
}

// RenderSVG writes the layers as a minified SVG document.
func (c *Compositor) RenderSVG(w io.Writer, layers []Layer) error {
	s := newSVGSurface(c.Theme.size())
	if err := c.draw(s, layers); err != nil {
		return err
	}
	_, err := s.WriteTo(w)
	return err
}
