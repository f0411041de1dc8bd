package basemap

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/metrics"
	"github.com/woozymasta/mapcomp/internal/projection"

	"github.com/rs/zerolog/log"
)

// Static serves a single image rendered for the requested box, like a WMS GetMap
// endpoint. It has no zoom levels.
type Static struct {
	ID string
	// URL is a template with {minx} {miny} {maxx} {maxy} {width} {height} and optionally {style}.
	URL    string
	Width  int
	Height int
	// Style is the default for {style}.
	Style string
	// CRS of the box sent to the server and of the returned image. Defaults to EPSG:4326.
	CRS      *geo.CRS
	Coverage geo.BBox

	Fetcher *fetch.Fetcher
}

func (p *Static) Name() string { return p.ID }

// Fetch requests one image for req.BBox. Any explicit zoom is rejected.
func (p *Static) Fetch(ctx context.Context, req Request) (*Tile, error) {
	if req.Zoom != nil {
		return nil, &UnsupportedZoomError{Provider: p.ID, Zoom: *req.Zoom, Reason: "provider serves a single fixed-resolution image"}
	}
	if req.BBox.IsEmpty() || (p.Coverage != (geo.BBox{}) && !p.Coverage.Intersects(req.BBox)) {
		return nil, &NoCoverageError{Provider: p.ID, BBox: req.BBox}
	}

	crs := p.CRS
	if crs == nil {
		crs = geo.WGS84()
	}

	box := req.BBox
	if !crs.IsGeographic() {
		var err error
		if box, err = projection.TransformBBox(req.BBox, geo.WGS84(), crs); err != nil {
			return nil, err
		}
	}

	width, height := p.size(box)
	url := buildStaticURL(p.URL, box, width, height, cmp.Or(req.Style, p.Style))

	body, err := p.Fetcher.Get(ctx, url)
	if err != nil {
		var ne *fetch.NetworkError
		if errors.As(err, &ne) && ne.NotFound() {
			return nil, &NoCoverageError{Provider: p.ID, BBox: req.BBox}
		}
		metrics.TilesTotal.WithLabelValues(p.ID, "failed").Inc()
		return nil, err
	}

	img, format, err := decodeImage(body)
	if err != nil || img.Bounds().Dx() <= 1 {
		metrics.TilesTotal.WithLabelValues(p.ID, "missing").Inc()
		return nil, &NoCoverageError{Provider: p.ID, BBox: req.BBox}
	}
	metrics.TilesTotal.WithLabelValues(p.ID, "fetched").Inc()

	log.Info().
		Str("provider", p.ID).
		Str("format", format).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Basemap image fetched")

	return &Tile{Image: img, Bounds: box, CRS: crs, Provider: p.ID}, nil
}

// size keeps the box aspect when only one dimension is configured.
func (p *Static) size(b geo.BBox) (int, int) {
	w, h := p.Width, p.Height
	if w <= 0 && h <= 0 {
		w = 1024
	}
	switch {
	case h <= 0:
		h = int(math.Round(float64(w) * b.Height() / b.Width()))
	case w <= 0:
		w = int(math.Round(float64(h) * b.Width() / b.Height()))
	}
	return max(1, w), max(1, h)
}

func buildStaticURL(tpl string, b geo.BBox, width, height int, style string) string {
	r := strings.NewReplacer(
		"{minx}", fmt.Sprintf("%g", b.MinX),
		"{miny}", fmt.Sprintf("%g", b.MinY),
		"{maxx}", fmt.Sprintf("%g", b.MaxX),
		"{maxy}", fmt.Sprintf("%g", b.MaxY),
		"{width}", fmt.Sprintf("%d", width),
		"{height}", fmt.Sprintf("%d", height),
		"{style}", style,
	)
	return r.Replace(tpl)
}
