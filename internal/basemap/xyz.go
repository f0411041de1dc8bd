package basemap

import (
	"cmp"
	"context"
	"errors"
	"image"
	"image/draw"
	"math"
	"sync"

	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/metrics"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
)

// XYZ serves imagery from a slippy-map tile server.
type XYZ struct {
	ID string
	// URL is a template with {z} {x} {y} and optionally {tms_y} {s} {style}.
	URL        string
	Subdomains []string
	MinZoom    int
	MaxZoom    int
	TileSize   int
	// Style is the default for {style}.
	Style string
	// Coverage limits the served region, in lon/lat. The zero box means worldwide.
	Coverage    geo.BBox
	MaxTiles    int
	Concurrency int

	Fetcher *fetch.Fetcher
	Cache   Cache
}

type job struct {
	Coord TileCoordinate
	URL   string
}

type result struct {
	Coord TileCoordinate
	Image image.Image
	Err   error
}

func (p *XYZ) Name() string { return p.ID }

func (p *XYZ) tileSize() int {
	if p.TileSize <= 0 {
		return 256
	}
	return p.TileSize
}

func (p *XYZ) maxTiles() int {
	if p.MaxTiles <= 0 {
		return 64
	}
	return p.MaxTiles
}

func (p *XYZ) maxZoom() int {
	if p.MaxZoom <= 0 {
		return MaxZoom
	}
	return p.MaxZoom
}

// Fetch assembles the tiles covering req.BBox into one web-mercator image.
func (p *XYZ) Fetch(ctx context.Context, req Request) (*Tile, error) {
	box := req.BBox
	box.MinY = max(box.MinY, -geo.MaxLatitude)
	box.MaxY = min(box.MaxY, geo.MaxLatitude)
	if box.IsEmpty() {
		return nil, &NoCoverageError{Provider: p.ID, BBox: req.BBox}
	}
	if p.Coverage != (geo.BBox{}) && !p.Coverage.Intersects(box) {
		return nil, &NoCoverageError{Provider: p.ID, BBox: req.BBox}
	}

	var zoom int
	if req.Zoom == nil {
		zoom = max(p.MinZoom, min(p.maxZoom(), AutoZoom(box, p.maxTiles())))
	} else if zoom = *req.Zoom; zoom < p.MinZoom || zoom > p.maxZoom() {
		return nil, &UnsupportedZoomError{Provider: p.ID, Zoom: zoom, Reason: "outside provider range"}
	}

	coords := TileRange(box, zoom)
	if len(coords) > p.maxTiles() {
		return nil, &UnsupportedZoomError{Provider: p.ID, Zoom: zoom, Reason: "too many tiles for the region"}
	}

	log.Debug().
		Str("provider", p.ID).
		Int("zoom", zoom).
		Int("count", len(coords)).
		Msg("Fetching basemap tiles")

	images, err := p.processBatch(ctx, coords, cmp.Or(req.Style, p.Style))
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, &NoCoverageError{Provider: p.ID, BBox: req.BBox}
	}

	tile := p.mosaic(coords, images)
	if req.Crop {
		x0, y0 := geo.LonLatToMercator(box.MinX, box.MinY)
		x1, y1 := geo.LonLatToMercator(box.MaxX, box.MaxY)
		tile = crop(tile, geo.BBox{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1})
	}
	tile.Zoom = zoom

	log.Info().
		Str("provider", p.ID).
		Int("zoom", zoom).
		Int("tiles", len(images)).
		Int("missing", len(coords)-len(images)).
		Msg("Basemap assembled")

	return tile, nil
}

// processBatch downloads every tile with a bounded worker pool. Missing tiles are
// left out of the result; the first hard failure is returned.
func (p *XYZ) processBatch(ctx context.Context, tiles []TileCoordinate, style string) (map[TileCoordinate]image.Image, error) {
	concurrency := max(1, p.Concurrency)

	jobs := make(chan job, len(tiles))
	results := make(chan result, len(tiles))

	go func() {
		for _, t := range tiles {
			jobs <- job{Coord: t, URL: buildURL(p.URL, t, style, p.Subdomains)}
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				img, err := p.downloadTile(ctx, j)
				if err != nil {
					log.Trace().Err(err).Str("url", j.URL).Msg("Failed to download tile")
				}
				results <- result{Coord: j.Coord, Image: img, Err: err}
			}
		}()
	}
	wg.Wait()
	close(results)

	images := make(map[TileCoordinate]image.Image, len(tiles))
	var firstErr error
	for res := range results {
		switch {
		case res.Err != nil:
			if firstErr == nil {
				firstErr = res.Err
			}
		case res.Image != nil:
			images[res.Coord] = res.Image
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return images, nil
}

// downloadTile returns nil without error for tiles the server does not have.
func (p *XYZ) downloadTile(ctx context.Context, j job) (image.Image, error) {
	if p.Cache != nil {
		if img, ok := p.Cache.Get(ctx, p.ID, j.Coord); ok {
			metrics.TilesTotal.WithLabelValues(p.ID, "cached").Inc()
			return img, nil
		}
	}

	body, err := p.Fetcher.Get(ctx, j.URL)
	if err != nil {
		var ne *fetch.NetworkError
		if errors.As(err, &ne) && ne.NotFound() {
			log.Trace().Str("url", j.URL).Msg("Tile not found (404)")
			metrics.TilesTotal.WithLabelValues(p.ID, "missing").Inc()
			return nil, nil
		}
		metrics.TilesTotal.WithLabelValues(p.ID, "failed").Inc()
		return nil, err
	}

	img, _, err := decodeImage(body)
	if err != nil {
		log.Trace().Err(err).Str("url", j.URL).Msg("Failed to decode image")
		metrics.TilesTotal.WithLabelValues(p.ID, "missing").Inc()
		return nil, nil
	}

	// Filter out empty/1px tiles often returned by map servers for OOB areas
	if img.Bounds().Dx() <= 1 {
		log.Trace().Str("url", j.URL).Msg("Filtered empty tile")
		metrics.TilesTotal.WithLabelValues(p.ID, "missing").Inc()
		return nil, nil
	}

	if size := p.tileSize(); img.Bounds().Dx() != size || img.Bounds().Dy() != size {
		scaled := image.NewRGBA(image.Rect(0, 0, size, size))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)
		img = scaled
	}

	if p.Cache != nil {
		if err := p.Cache.Put(ctx, p.ID, j.Coord, img); err != nil {
			log.Warn().Err(err).Str("tile", j.Coord.String()).Msg("Failed to cache tile")
		}
	}
	metrics.TilesTotal.WithLabelValues(p.ID, "fetched").Inc()

	return img, nil
}

func (p *XYZ) mosaic(coords []TileCoordinate, images map[TileCoordinate]image.Image) *Tile {
	first, last := coords[0], coords[len(coords)-1]
	size := p.tileSize()

	cols := last.X - first.X + 1
	rows := last.Y - first.Y + 1
	dst := image.NewRGBA(image.Rect(0, 0, cols*size, rows*size))

	for c, img := range images {
		at := image.Pt((c.X-first.X)*size, (c.Y-first.Y)*size)
		draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(image.Pt(size, size))}, img, img.Bounds().Min, draw.Src)
	}

	bounds := geo.TileMercatorBounds(first.X, first.Y, first.Z).
		Extend(geo.TileMercatorBounds(last.X, last.Y, last.Z))

	return &Tile{Image: dst, Bounds: bounds, CRS: geo.WebMercator(), Zoom: first.Z, Provider: p.ID}
}

// crop trims t to the pixels covering b, which is in t's CRS.
// The resulting bounds snap to whole pixels.
func crop(t *Tile, b geo.BBox) *Tile {
	r := t.Image.Bounds()
	sx := float64(r.Dx()) / t.Bounds.Width()
	sy := float64(r.Dy()) / t.Bounds.Height()

	px0 := max(0, int((b.MinX-t.Bounds.MinX)*sx))
	px1 := min(r.Dx(), int(math.Ceil((b.MaxX-t.Bounds.MinX)*sx)))
	py0 := max(0, int((t.Bounds.MaxY-b.MaxY)*sy))
	py1 := min(r.Dy(), int(math.Ceil((t.Bounds.MaxY-b.MinY)*sy)))
	if px1 <= px0 || py1 <= py0 {
		return t
	}

	dst := image.NewRGBA(image.Rect(0, 0, px1-px0, py1-py0))
	draw.Draw(dst, dst.Bounds(), t.Image, r.Min.Add(image.Pt(px0, py0)), draw.Src)

	return &Tile{
		Image: dst,
		Bounds: geo.BBox{
			MinX: t.Bounds.MinX + float64(px0)/sx,
			MaxX: t.Bounds.MinX + float64(px1)/sx,
			MaxY: t.Bounds.MaxY - float64(py0)/sy,
			MinY: t.Bounds.MaxY - float64(py1)/sy,
		},
		CRS:      t.CRS,
		Zoom:     t.Zoom,
		Provider: t.Provider,
	}
}
