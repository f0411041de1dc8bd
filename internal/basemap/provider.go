// Package basemap fetches raster imagery covering a bounding box.
package basemap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/woozymasta/mapcomp/internal/geo"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxZoom is the deepest level of the web-mercator tile grid we request.
const MaxZoom = 19

// Provider returns imagery for a region.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Tile, error)
}

// Request describes the imagery wanted.
type Request struct {
	// BBox is in longitude/latitude degrees.
	BBox geo.BBox
	// Zoom selects the tile level; nil picks one automatically.
	Zoom *int
	// Style is substituted for {style} in URL templates.
	Style string
	// Crop trims the result to BBox instead of whole tiles.
	Crop bool
}

// Tile is an image with the extent it covers.
type Tile struct {
	Image image.Image
	// Bounds is expressed in CRS units.
	Bounds   geo.BBox
	CRS      *geo.CRS
	Zoom     int
	Provider string
}

// TileCoordinate represents a specific tile.
type TileCoordinate struct {
	Z, X, Y int
}

func (c TileCoordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// TileRange returns every tile of zoom z intersecting the lon/lat box, row by row.
func TileRange(b geo.BBox, z int) []TileCoordinate {
	x0, y0, x1, y1 := tileSpan(b, z)
	tiles := make([]TileCoordinate, 0, (x1-x0+1)*(y1-y0+1))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			tiles = append(tiles, TileCoordinate{Z: z, X: x, Y: y})
		}
	}
	return tiles
}

func tileSpan(b geo.BBox, z int) (x0, y0, x1, y1 int) {
	n := 1 << z
	fx0, fy0 := geo.LonLatToTile(b.MinX, b.MaxY, z)
	fx1, fy1 := geo.LonLatToTile(b.MaxX, b.MinY, z)

	clamp := func(v int) int { return max(0, min(n-1, v)) }
	x0, y0 = clamp(int(math.Floor(fx0))), clamp(int(math.Floor(fy0)))
	x1, y1 = clamp(int(math.Ceil(fx1))-1), clamp(int(math.Ceil(fy1))-1)
	return x0, y0, max(x0, x1), max(y0, y1)
}

// AutoZoom picks the deepest zoom whose tile count for the box stays within maxTiles.
// The starting estimate fits the box extent into a single tile span.
func AutoZoom(b geo.BBox, maxTiles int) int {
	if maxTiles <= 0 {
		maxTiles = 1
	}

	lonSpan := math.Max(b.Width(), 1e-9)
	latSpan := math.Max(b.Height(), 1e-9)
	z := int(math.Min(math.Ceil(math.Log2(720/lonSpan)), math.Ceil(math.Log2(360/latSpan))))
	z = max(0, min(MaxZoom, z))

	for z > 0 && len(TileRange(b, z)) > maxTiles {
		z--
	}
	return z
}

func buildURL(tpl string, c TileCoordinate, style string, subdomains []string) string {
	s := strings.ReplaceAll(tpl, "{z}", fmt.Sprintf("%d", c.Z))
	s = strings.ReplaceAll(s, "{x}", fmt.Sprintf("%d", c.X))
	s = strings.ReplaceAll(s, "{y}", fmt.Sprintf("%d", c.Y))
	s = strings.ReplaceAll(s, "{style}", style)

	if strings.Contains(s, "{tms_y}") {
		maxCoord := (1 << c.Z) - 1
		tmsY := maxCoord - c.Y
		s = strings.ReplaceAll(s, "{tms_y}", fmt.Sprintf("%d", tmsY))
	}

	if len(subdomains) > 0 {
		s = strings.ReplaceAll(s, "{s}", subdomains[(c.X+c.Y)%len(subdomains)])
	}

	return s
}

func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode failed: %w", err)
	}
	return img, format, nil
}
